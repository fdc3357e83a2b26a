package local

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moat-io/moat/pkg/provider"
)

func fileConfigJSON(t *testing.T, cfg FileConfig) []byte {
	t.Helper()
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	return b
}

func TestFileLifecycle(t *testing.T) {
	p := New()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "connect.sh")

	cfg := FileConfig{Path: path, Content: "#!/bin/sh\nssh deploy@host\n", Mode: "0755"}
	desired := fileConfigJSON(t, cfg)

	resp, err := p.Plan(ctx, &provider.PlanRequest{Type: "local:File", Name: "script", DesiredConfigJSON: desired})
	require.NoError(t, err)
	assert.Equal(t, provider.ActionCreate, resp.Action)

	applied, err := p.Apply(ctx, &provider.ApplyRequest{Type: "local:File", Name: "script", DesiredConfigJSON: desired})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Content, string(content))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	// Converged file plans as a no-op.
	resp, err = p.Plan(ctx, &provider.PlanRequest{
		Type: "local:File", Name: "script",
		DesiredConfigJSON: desired,
		PriorStateJSON:    applied.NewStateJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, provider.ActionNoOp, resp.Action)

	require.NoError(t, p.Delete(ctx, &provider.DeleteRequest{Type: "local:File", ID: path}))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPlanDetectsExternalDrift(t *testing.T) {
	p := New()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "drift.txt")

	desired := fileConfigJSON(t, FileConfig{Path: path, Content: "managed"})
	applied, err := p.Apply(ctx, &provider.ApplyRequest{Type: "local:File", Name: "f", DesiredConfigJSON: desired})
	require.NoError(t, err)

	// Someone edits the file behind the engine's back.
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0644))

	resp, err := p.Plan(ctx, &provider.PlanRequest{
		Type: "local:File", Name: "f",
		DesiredConfigJSON: desired,
		PriorStateJSON:    applied.NewStateJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, provider.ActionUpdate, resp.Action)
	assert.Equal(t, []string{"content"}, resp.ChangedAttributes)
}

func TestPlanReplacesOnMove(t *testing.T) {
	p := New()
	ctx := context.Background()
	dir := t.TempDir()

	oldPath := filepath.Join(dir, "old.txt")
	applied, err := p.Apply(ctx, &provider.ApplyRequest{
		Type: "local:File", Name: "f",
		DesiredConfigJSON: fileConfigJSON(t, FileConfig{Path: oldPath, Content: "x"}),
	})
	require.NoError(t, err)

	resp, err := p.Plan(ctx, &provider.PlanRequest{
		Type: "local:File", Name: "f",
		DesiredConfigJSON: fileConfigJSON(t, FileConfig{Path: filepath.Join(dir, "new.txt"), Content: "x"}),
		PriorStateJSON:    applied.NewStateJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, provider.ActionReplace, resp.Action)
}

func TestApplyRejectsBadMode(t *testing.T) {
	p := New()
	_, err := p.Apply(context.Background(), &provider.ApplyRequest{
		Type: "local:File", Name: "f",
		DesiredConfigJSON: fileConfigJSON(t, FileConfig{
			Path: filepath.Join(t.TempDir(), "f.txt"), Content: "x", Mode: "rwx",
		}),
	})
	require.Error(t, err)

	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.CodeInvalidParameter, perr.Code)
}

func TestDeleteMissingFileIsIdempotent(t *testing.T) {
	p := New()
	err := p.Delete(context.Background(), &provider.DeleteRequest{
		Type: "local:File",
		ID:   filepath.Join(t.TempDir(), "never-existed.txt"),
	})
	require.NoError(t, err)
}
