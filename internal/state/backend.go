package state

import (
	"context"
	"fmt"

	"github.com/moat-io/moat/internal/eval"
	"github.com/moat-io/moat/internal/ir"
)

// Backend is a state storage location.
type Backend interface {
	Read(ctx context.Context) (*ir.State, error)
	Write(ctx context.Context, state *ir.State) error

	// Lock takes an exclusive lock on the state.
	Lock() error
	Unlock() error
}

// BackendConfig selects and configures a state backend.
type BackendConfig struct {
	Type   string            `json:"type"` // "local" or "s3"
	Config map[string]string `json:"config"`
}

// NewBackend creates a state backend from configuration.
func NewBackend(cfg *BackendConfig, evaluator *eval.Evaluator) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backend configuration is nil")
	}

	switch cfg.Type {
	case "local", "":
		path := cfg.Config["path"]
		if path == "" {
			return nil, fmt.Errorf("local backend requires 'path' configuration")
		}
		return NewManager(path, evaluator), nil
	case "s3":
		return newS3Backend(cfg.Config, evaluator)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
