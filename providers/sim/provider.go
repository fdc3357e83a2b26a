// Package sim implements an in-memory provider. It converges nothing real:
// applied state is held in a map, and plan decisions follow the kind schema,
// which makes it the reference provider for engine and CLI tests.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/moat-io/moat/internal/schema"
	"github.com/moat-io/moat/pkg/provider"
)

type Provider struct {
	mu      sync.Mutex
	applied map[string]map[string]any // address -> last applied state

	// FailOn makes Apply fail for the named addresses; used to exercise
	// partial-failure paths.
	FailOn map[string]error

	// FailDeleteOn makes Delete fail for the named resource ids.
	FailDeleteOn map[string]error
}

func New() *Provider {
	return &Provider{
		applied: make(map[string]map[string]any),
	}
}

func (p *Provider) Configure(ctx context.Context) error { return nil }

func (p *Provider) Plan(ctx context.Context, req *provider.PlanRequest) (*provider.PlanResponse, error) {
	if req.DesiredConfigJSON == nil && req.PriorStateJSON != nil {
		return &provider.PlanResponse{Action: provider.ActionDelete}, nil
	}
	if req.PriorStateJSON == nil {
		return &provider.PlanResponse{Action: provider.ActionCreate}, nil
	}

	var desired, prior map[string]any
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}
	if err := json.Unmarshal(req.PriorStateJSON, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	changed := changedAttributes(desired, prior)
	if len(changed) == 0 {
		return &provider.PlanResponse{Action: provider.ActionNoOp}, nil
	}

	// Any changed attribute outside the kind's updatable set forces
	// replacement.
	action := provider.ActionUpdate
	for _, attr := range changed {
		if !schema.IsUpdatable(req.Type, attr) {
			action = provider.ActionReplace
			break
		}
	}
	return &provider.PlanResponse{Action: action, ChangedAttributes: changed}, nil
}

func (p *Provider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	addr := fmt.Sprintf("%s.%s", req.Type, req.Name)

	p.mu.Lock()
	failErr := p.FailOn[addr]
	p.mu.Unlock()
	if failErr != nil {
		return nil, failErr
	}

	// Delete path
	if req.DesiredConfigJSON == nil {
		p.mu.Lock()
		delete(p.applied, addr)
		p.mu.Unlock()
		return &provider.ApplyResponse{}, nil
	}

	var desired map[string]any
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	state := make(map[string]any, len(desired)+1)
	for k, v := range desired {
		state[k] = v
	}
	state["id"] = fmt.Sprintf("sim-%s", req.Name)
	if req.Type == "aws:EC2.Instance" {
		// Instances get an address so provisioner paths are exercisable.
		state["public_ip"] = "192.0.2.10"
	}

	p.mu.Lock()
	p.applied[addr] = state
	p.mu.Unlock()

	stateJSON, _ := json.Marshal(state)
	return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.FailDeleteOn[req.ID]; err != nil {
		return err
	}
	for addr := range p.applied {
		if s := p.applied[addr]; s != nil && fmt.Sprintf("%v", s["id"]) == req.ID {
			delete(p.applied, addr)
		}
	}
	return nil
}

// Applied returns the last applied state for an address; test helper.
func (p *Provider) Applied(addr string) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applied[addr]
}

// Prior state carries provider-assigned outputs the declaration never
// names, so only declared attributes are compared.
func changedAttributes(desired, prior map[string]any) []string {
	var changed []string
	for k, v := range desired {
		pv, ok := prior[k]
		if !ok || fmt.Sprintf("%v", v) != fmt.Sprintf("%v", pv) {
			changed = append(changed, k)
		}
	}
	return changed
}
