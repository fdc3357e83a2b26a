package engine

import (
	"context"
	"time"

	"github.com/moat-io/moat/internal/ir"
	pv "github.com/moat-io/moat/pkg/provider"
)

// CreateDestroyPlan builds a plan that deletes everything in state,
// dependents before their dependencies. Configuration is not consulted;
// the recorded dependency edges drive the ordering.
func (e *Engine) CreateDestroyPlan(ctx context.Context, state *ir.State) (*ir.Plan, error) {
	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Changes: []*ir.ResourceChange{},
		Summary: &ir.PlanSummary{},
	}

	for _, res := range state.Resources {
		if err := e.registry.LoadProvider(res.Provider); err != nil {
			return nil, err
		}
	}

	dag, err := BuildDAGFromState(state.Resources)
	if err != nil {
		return nil, err
	}

	byAddr := make(map[string]*ir.ResourceState)
	for _, res := range state.Resources {
		byAddr[ir.StateAddr(res)] = res
	}

	for _, addr := range dag.DestructionOrder() {
		res := byAddr[addr]
		plan.Changes = append(plan.Changes, &ir.ResourceChange{
			Address: addr,
			Action:  string(pv.ActionDelete),
			Prior:   priorResource(res),
			Diff:    buildDeleteDiff(res.Inputs),
		})
		plan.Summary.Delete++
	}

	return plan, nil
}
