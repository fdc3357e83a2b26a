// Package eval turns Pkl sources into the engine's in-memory types.
package eval

import (
	"context"
	"fmt"
	"net/url"

	"github.com/apple/pkl-go/pkl"

	"github.com/moat-io/moat/internal/ir"
)

// Evaluator evaluates Pkl modules into IR types.
type Evaluator struct {
	projectDir string
}

func NewEvaluator(projectDir string) *Evaluator {
	return &Evaluator{projectDir: projectDir}
}

// LoadConfig evaluates the main configuration module.
func (e *Evaluator) LoadConfig(ctx context.Context, entryPoint string, properties map[string]string) (*ir.Config, error) {
	var cfg ir.Config
	if err := e.evaluate(ctx, pkl.FileSource(entryPoint), &cfg, properties, true); err != nil {
		return nil, fmt.Errorf("failed to evaluate config: %w", err)
	}
	return &cfg, nil
}

// LoadState evaluates a state file.
func (e *Evaluator) LoadState(ctx context.Context, stateFile string) (*ir.State, error) {
	var state ir.State
	if err := e.evaluate(ctx, pkl.FileSource(stateFile), &state, nil, false); err != nil {
		return nil, fmt.Errorf("failed to evaluate state: %w", err)
	}
	return &state, nil
}

// evaluate runs one Pkl evaluation into out. Configuration modules are
// evaluated project-aware so local amends resolve; state files stand alone.
func (e *Evaluator) evaluate(ctx context.Context, source *pkl.ModuleSource, out any, properties map[string]string, inProject bool) error {
	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range properties {
				o.Properties[k] = v
			}
		})
	}

	var (
		evaluator pkl.Evaluator
		err       error
	)
	if inProject {
		u, perr := url.Parse("file://" + e.projectDir + "/")
		if perr != nil {
			return fmt.Errorf("failed to parse project directory URL: %w", perr)
		}
		evaluator, err = pkl.NewProjectEvaluator(ctx, u, opts...)
	} else {
		evaluator, err = pkl.NewEvaluator(ctx, opts...)
	}
	if err != nil {
		return fmt.Errorf("failed to create Pkl evaluator: %w", err)
	}
	defer evaluator.Close()

	return evaluator.EvaluateModule(ctx, source, out)
}
