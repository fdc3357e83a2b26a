// Package state persists the recorded infrastructure state. Local files are
// the default backend; S3 with DynamoDB locking is available for shared
// use. State is Pkl text, optionally encrypted at rest.
package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/moat-io/moat/internal/eval"
	"github.com/moat-io/moat/internal/ir"
)

// Manager reads and writes state at a local path.
type Manager struct {
	path      string
	evaluator *eval.Evaluator
}

func NewManager(path string, evaluator *eval.Evaluator) *Manager {
	return &Manager{
		path:      path,
		evaluator: evaluator,
	}
}

// Read loads the state from the configured path. A missing file is an
// empty state, not an error. Encrypted files are transparently decrypted.
func (m *Manager) Read(ctx context.Context) (*ir.State, error) {
	if _, err := os.Stat(m.path); os.IsNotExist(err) {
		return &ir.State{Version: 1, Serial: 0}, nil
	}

	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", m.path, err)
	}

	if IsEncrypted(raw) {
		decrypted, err := DecryptState(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt state: %w", err)
		}
		// The Pkl evaluator only reads files, so the plaintext makes a
		// brief appearance on disk.
		tmpFile := m.path + ".dec"
		if err := os.WriteFile(tmpFile, decrypted, 0600); err != nil {
			return nil, fmt.Errorf("failed to write decrypted state: %w", err)
		}
		defer os.Remove(tmpFile)

		return m.evaluator.LoadState(ctx, tmpFile)
	}

	state, err := m.evaluator.LoadState(ctx, m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to load state from %s: %w", m.path, err)
	}
	return state, nil
}

// Write saves the state to the configured path, encrypting when
// MOAT_STATE_KEY is set.
func (m *Manager) Write(ctx context.Context, state *ir.State) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	encrypted, err := EncryptState([]byte(SerializeState(state)))
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	if err := os.WriteFile(m.path, encrypted, 0644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", m.path, err)
	}
	return nil
}

// SerializeState renders a State as Pkl text.
func SerializeState(state *ir.State) string {
	var b strings.Builder

	fmt.Fprintf(&b, "// Moat state file\n")
	fmt.Fprintf(&b, "amends \"../../pkg/schemas/State.pkl\"\n\n")
	fmt.Fprintf(&b, "version = %d\n", state.Version)
	fmt.Fprintf(&b, "serial = %d\n", state.Serial)
	fmt.Fprintf(&b, "lineage = %q\n\n", state.Lineage)

	if len(state.Outputs) > 0 {
		fmt.Fprintf(&b, "outputs {\n")
		for k, v := range state.Outputs {
			fmt.Fprintf(&b, "  [%q] = %s\n", k, serializePklValue(v, 1))
		}
		fmt.Fprintf(&b, "}\n\n")
	} else {
		fmt.Fprintf(&b, "outputs = new {}\n\n")
	}

	fmt.Fprintf(&b, "resources {\n")
	for _, res := range state.Resources {
		fmt.Fprintf(&b, "  new {\n")
		fmt.Fprintf(&b, "    type = %q\n", res.Type)
		fmt.Fprintf(&b, "    name = %q\n", res.Name)
		fmt.Fprintf(&b, "    provider = %q\n", res.Provider)

		if len(res.Inputs) > 0 {
			fmt.Fprintf(&b, "    inputs {\n")
			for k, v := range res.Inputs {
				fmt.Fprintf(&b, "      [%q] = %s\n", k, serializePklValue(v, 3))
			}
			fmt.Fprintf(&b, "    }\n")
		} else {
			fmt.Fprintf(&b, "    inputs = new {}\n")
		}

		if len(res.Outputs) > 0 {
			fmt.Fprintf(&b, "    outputs {\n")
			for k, v := range res.Outputs {
				fmt.Fprintf(&b, "      [%q] = %s\n", k, serializePklValue(v, 3))
			}
			fmt.Fprintf(&b, "    }\n")
		} else {
			fmt.Fprintf(&b, "    outputs = new {}\n")
		}

		if len(res.Dependencies) > 0 {
			fmt.Fprintf(&b, "    dependencies {\n")
			for _, dep := range res.Dependencies {
				fmt.Fprintf(&b, "      %q\n", dep)
			}
			fmt.Fprintf(&b, "    }\n")
		} else {
			fmt.Fprintf(&b, "    dependencies = new {}\n")
		}

		fmt.Fprintf(&b, "  }\n")
	}
	fmt.Fprintf(&b, "}\n")

	return b.String()
}

// serializePklValue recursively renders a Go value as Pkl syntax.
func serializePklValue(v any, indentLevel int) string {
	indent := strings.Repeat("  ", indentLevel)

	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case nil:
		return "null"
	case map[string]any:
		if len(val) == 0 {
			return "new {}"
		}
		var b strings.Builder
		b.WriteString("new {\n")
		for k, v := range val {
			b.WriteString(fmt.Sprintf("%s  [%q] = %s\n", indent, k, serializePklValue(v, indentLevel+1)))
		}
		b.WriteString(indent + "}")
		return b.String()
	case map[any]any:
		if len(val) == 0 {
			return "new {}"
		}
		var b strings.Builder
		b.WriteString("new {\n")
		for k, v := range val {
			b.WriteString(fmt.Sprintf("%s  [%q] = %s\n", indent, fmt.Sprintf("%v", k), serializePklValue(v, indentLevel+1)))
		}
		b.WriteString(indent + "}")
		return b.String()
	case []any:
		if len(val) == 0 {
			return "new Listing {}"
		}
		var b strings.Builder
		b.WriteString("new Listing {\n")
		for _, v := range val {
			b.WriteString(fmt.Sprintf("%s  %s\n", indent, serializePklValue(v, indentLevel+1)))
		}
		b.WriteString(indent + "}")
		return b.String()
	default:
		return fmt.Sprintf("%q", fmt.Sprintf("%v", val))
	}
}
