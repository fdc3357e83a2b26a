package eval

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Evaluation spawns the pkl binary; skip where it is not installed.
func requirePkl(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("pkl"); err != nil {
		t.Skipf("pkl binary not available: %v", err)
	}
}

func TestLoadState_Standalone(t *testing.T) {
	requirePkl(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "state.pkl")
	content := `version = 1
serial = 4
lineage = "test-lineage"
resources = new Listing {}
outputs = new Mapping {}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	state, err := NewEvaluator(dir).LoadState(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Version)
	assert.Equal(t, 4, state.Serial)
	assert.Equal(t, "test-lineage", state.Lineage)
	assert.Empty(t, state.Resources)
}

func TestLoadState_MissingFile(t *testing.T) {
	requirePkl(t)
	dir := t.TempDir()

	_, err := NewEvaluator(dir).LoadState(context.Background(), filepath.Join(dir, "absent.pkl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to evaluate state")
}
