package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/moat-io/moat/internal/ir"
	"github.com/moat-io/moat/internal/logging"
	pv "github.com/moat-io/moat/pkg/provider"
)

const defaultParallelism = 10

// ApplyEvent is a progress notification during apply.
type ApplyEvent struct {
	Address  string
	Action   string
	Status   string // "started", "completed", "failed", "blocked"
	Duration time.Duration
	Error    error
}

// ApplyPlan executes a plan, updating state as each resource converges.
// Resources run in parallel where the dependency graph allows. A failed
// resource stops nothing but its own dependents: those are recorded as
// blocked, every independent branch keeps going, and nothing is rolled
// back. The report carries the terminal status of every change; the error
// return is reserved for cancellation and other whole-run failures.
func (e *Engine) ApplyPlan(ctx context.Context, plan *ir.Plan, state *ir.State) (*ir.State, *ir.ApplyReport, error) {
	report := &ir.ApplyReport{}

	stateIndex := make(map[string]int)
	for i, res := range state.Resources {
		stateIndex[ir.StateAddr(res)] = i
	}

	var creates, deletes []*ir.ResourceChange
	for _, change := range plan.Changes {
		if change.Action == string(pv.ActionDelete) {
			deletes = append(deletes, change)
		} else {
			creates = append(creates, change)
		}
	}

	run := &applyRun{
		engine:     e,
		state:      state,
		stateIndex: stateIndex,
		report:     report,
	}

	// Creates and updates first; their dependencies come from the desired
	// configuration.
	run.execute(ctx, creates, desiredDeps(creates))

	// Deletes wait on their dependents: a subnet goes before its network.
	run.execute(ctx, deletes, deleteDeps(deletes, state))

	state.Outputs = plan.Outputs

	if err := ctx.Err(); err != nil {
		return state, report, fmt.Errorf("apply cancelled: %w", err)
	}
	// The serial counts converged applies; a partial run keeps the old one.
	if !report.HasFailures() {
		state.Serial++
	}
	return state, report, nil
}

// desiredDeps maps each change to the other in-plan changes it must wait
// for, derived from DependsOn and ptr:// references.
func desiredDeps(changes []*ir.ResourceChange) map[string]map[string]bool {
	inPlan := make(map[string]bool)
	for _, c := range changes {
		inPlan[c.Address] = true
	}

	deps := make(map[string]map[string]bool)
	for _, c := range changes {
		deps[c.Address] = make(map[string]bool)
		if c.Desired == nil {
			continue
		}
		for _, d := range c.Desired.DependsOn {
			if inPlan[d] {
				deps[c.Address][d] = true
			}
		}
		for _, ref := range ir.ExtractRefs(c.Desired.Properties) {
			if depAddr := ir.RefToAddr(ref); inPlan[depAddr] {
				deps[c.Address][depAddr] = true
			}
		}
	}
	return deps
}

// deleteDeps inverts the recorded dependency edges: the delete of a
// resource waits until every in-plan dependent has been deleted.
func deleteDeps(changes []*ir.ResourceChange, state *ir.State) map[string]map[string]bool {
	inPlan := make(map[string]bool)
	for _, c := range changes {
		inPlan[c.Address] = true
	}

	deps := make(map[string]map[string]bool)
	for _, c := range changes {
		deps[c.Address] = make(map[string]bool)
	}
	for _, res := range state.Resources {
		addr := ir.StateAddr(res)
		if !inPlan[addr] {
			continue
		}
		for _, dep := range res.Dependencies {
			if inPlan[dep] {
				deps[dep][addr] = true
			}
		}
	}
	return deps
}

// applyRun carries the shared mutable pieces of one apply walk.
type applyRun struct {
	engine     *Engine
	state      *ir.State
	stateIndex map[string]int
	report     *ir.ApplyReport

	stateMu  sync.Mutex
	reportMu sync.Mutex
}

func (r *applyRun) record(res *ir.OperationResult) {
	r.reportMu.Lock()
	r.report.Results = append(r.report.Results, res)
	r.reportMu.Unlock()
}

func (r *applyRun) warn(msg string) {
	r.reportMu.Lock()
	r.report.Warnings = append(r.report.Warnings, msg)
	r.reportMu.Unlock()
}

func (r *applyRun) emit(event ApplyEvent) {
	if r.engine.OnEvent != nil {
		r.engine.OnEvent(event)
	}
}

// execute walks one group of changes concurrently. Workers wait on a
// condition variable until every dependency has settled; a semaphore caps
// how many providers run at once.
func (r *applyRun) execute(ctx context.Context, changes []*ir.ResourceChange, deps map[string]map[string]bool) {
	if len(changes) == 0 {
		return
	}

	parallelism := r.engine.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	done := make(map[string]bool)   // settled, successfully
	broken := make(map[string]bool) // failed or blocked
	settledMu := sync.Mutex{}
	settledCond := sync.NewCond(&settledMu)
	sem := make(chan struct{}, parallelism)

	var wg sync.WaitGroup
	for _, change := range changes {
		wg.Add(1)
		go func(c *ir.ResourceChange) {
			defer wg.Done()

			settledMu.Lock()
			for {
				if ctx.Err() != nil {
					settledMu.Unlock()
					settledCond.Broadcast()
					return
				}
				ready, blockedBy := depState(deps[c.Address], done, broken)
				if blockedBy != "" {
					broken[c.Address] = true
					settledMu.Unlock()
					settledCond.Broadcast()
					r.record(&ir.OperationResult{
						Address: c.Address,
						Action:  c.Action,
						Status:  ir.StatusBlocked,
						Error:   fmt.Sprintf("dependency %s did not complete", blockedBy),
					})
					r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "blocked"})
					return
				}
				if ready {
					break
				}
				settledCond.Wait()
			}
			settledMu.Unlock()

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "started"})

			err := r.applyChange(ctx, c)
			elapsed := time.Since(start)

			settledMu.Lock()
			if err != nil {
				broken[c.Address] = true
			} else {
				done[c.Address] = true
			}
			settledMu.Unlock()
			settledCond.Broadcast()

			if err != nil {
				r.record(&ir.OperationResult{
					Address:  c.Address,
					Action:   c.Action,
					Status:   ir.StatusFailed,
					Error:    err.Error(),
					Duration: elapsed,
				})
				r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "failed", Duration: elapsed, Error: err})
				return
			}
			r.record(&ir.OperationResult{
				Address:  c.Address,
				Action:   c.Action,
				Status:   ir.StatusSucceeded,
				Duration: elapsed,
			})
			r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "completed", Duration: elapsed})
		}(change)
	}
	wg.Wait()
}

// depState reports whether every dependency settled successfully, or names
// one that failed or was blocked.
func depState(deps map[string]bool, done, broken map[string]bool) (ready bool, blockedBy string) {
	for dep := range deps {
		if broken[dep] {
			return false, dep
		}
		if !done[dep] {
			return false, ""
		}
	}
	return true, ""
}

func (r *applyRun) applyChange(ctx context.Context, change *ir.ResourceChange) error {
	addr := change.Address
	logging.Debug("applying change", "address", addr, "action", change.Action)

	ctx, cancel := WithTimeout(ctx, 0)
	defer cancel()

	res := change.Desired
	if res == nil {
		res = change.Prior
	}
	prov, err := r.engine.registry.Get(res.Provider)
	if err != nil {
		return fmt.Errorf("provider not found: %s", res.Provider)
	}

	var priorJSON []byte
	r.stateMu.Lock()
	if idx, ok := r.stateIndex[addr]; ok {
		if outputs := r.state.Resources[idx].Outputs; outputs != nil {
			priorJSON, _ = json.Marshal(outputs)
		}
	}
	r.stateMu.Unlock()

	if change.Action == string(pv.ActionDelete) {
		return r.deleteResource(ctx, prov, change, priorJSON)
	}

	// Replacements are delete-then-create under a single change.
	if change.Action == string(pv.ActionReplace) && priorJSON != nil {
		if err := r.deleteResource(ctx, prov, change, priorJSON); err != nil {
			return err
		}
		priorJSON = nil
	}

	props := normalizeValue(change.Desired.Properties).(map[string]any)
	r.stateMu.Lock()
	props = resolveReferences(props, r.state).(map[string]any)
	r.stateMu.Unlock()

	if generated, err := r.engine.prepareKeyPair(addr, change.Desired, props, r.warn); err != nil {
		return err
	} else if generated != nil {
		props = generated
	}

	desiredJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to marshal properties for %s: %w", addr, err)
	}

	var resp *pv.ApplyResponse
	err = RetryWithBackoff(ctx, DefaultRetryPolicy(), func() error {
		var applyErr error
		resp, applyErr = prov.Apply(ctx, &pv.ApplyRequest{
			Type:              change.Desired.Type,
			Name:              change.Desired.Name,
			DesiredConfigJSON: desiredJSON,
			PriorStateJSON:    priorJSON,
		})
		return applyErr
	}, IsRetryable)
	if err != nil {
		return fmt.Errorf("apply failed for %s: %w", addr, err)
	}

	var outputs map[string]any
	if len(resp.NewStateJSON) > 0 {
		if err := json.Unmarshal(resp.NewStateJSON, &outputs); err != nil {
			return fmt.Errorf("failed to unmarshal state for %s: %w", addr, err)
		}
	}

	newResState := &ir.ResourceState{
		Type:         change.Desired.Type,
		Name:         change.Desired.Name,
		Provider:     change.Desired.Provider,
		Inputs:       change.Desired.Properties,
		Outputs:      outputs,
		Dependencies: recordedDeps(change.Desired),
	}

	r.stateMu.Lock()
	if idx, ok := r.stateIndex[addr]; ok {
		r.state.Resources[idx] = newResState
	} else {
		r.stateIndex[addr] = len(r.state.Resources)
		r.state.Resources = append(r.state.Resources, newResState)
	}
	r.stateMu.Unlock()

	// Provisioning is a post-creation step; in-place updates leave the
	// machine alone.
	created := change.Action == string(pv.ActionCreate) || change.Action == string(pv.ActionReplace)
	if created && change.Desired.Provisioner != nil {
		if err := r.runProvisioner(ctx, change, outputs); err != nil {
			if change.Desired.Provisioner.TeardownOnFailure {
				if tderr := r.deleteResource(ctx, prov, change, resp.NewStateJSON); tderr != nil {
					r.warn(fmt.Sprintf("teardown of %s after provisioning failure also failed: %v", addr, tderr))
				} else {
					r.removeFromState(addr)
				}
			} else {
				// The machine exists but is not configured; taint it
				// so the next cycle recreates it.
				r.taintInState(addr)
			}
			return fmt.Errorf("provisioning failed for %s: %w", addr, err)
		}
	}

	return nil
}

func (r *applyRun) deleteResource(ctx context.Context, prov pv.Interface, change *ir.ResourceChange, priorJSON []byte) error {
	addr := change.Address

	var resourceID string
	r.stateMu.Lock()
	if idx, ok := r.stateIndex[addr]; ok {
		if id, exists := r.state.Resources[idx].Outputs["id"]; exists {
			resourceID = fmt.Sprintf("%v", id)
		}
	}
	r.stateMu.Unlock()

	var typ string
	if change.Prior != nil {
		typ = change.Prior.Type
	} else if change.Desired != nil {
		typ = change.Desired.Type
	}

	err := RetryWithBackoff(ctx, DefaultRetryPolicy(), func() error {
		return prov.Delete(ctx, &pv.DeleteRequest{
			Type:             typ,
			ID:               resourceID,
			CurrentStateJSON: priorJSON,
		})
	}, IsRetryable)
	if err != nil {
		// Already gone, typically after a partial replace in an earlier
		// cycle. The goal state is reached either way.
		if !pv.IsNotFound(err) {
			return fmt.Errorf("delete failed for %s: %w", addr, err)
		}
		logging.Debug("resource already absent on delete", "address", addr)
	}

	if change.Action == string(pv.ActionDelete) {
		r.removeFromState(addr)
	}
	return nil
}

func (r *applyRun) taintInState(addr string) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if idx, ok := r.stateIndex[addr]; ok {
		r.state.Resources[idx].SetTainted(true)
	}
}

func (r *applyRun) removeFromState(addr string) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	idx, ok := r.stateIndex[addr]
	if !ok {
		return
	}
	r.state.Resources = append(r.state.Resources[:idx], r.state.Resources[idx+1:]...)
	r.stateIndex = make(map[string]int)
	for i, res := range r.state.Resources {
		r.stateIndex[ir.StateAddr(res)] = i
	}
}

// recordedDeps captures the dependency edges of a resource so destroys can
// order deletions without the original configuration.
func recordedDeps(res *ir.Resource) []string {
	seen := make(map[string]bool)
	var deps []string
	add := func(addr string) {
		if addr != "" && !seen[addr] {
			seen[addr] = true
			deps = append(deps, addr)
		}
	}
	for _, d := range res.DependsOn {
		add(d)
	}
	for _, ref := range ir.ExtractRefs(res.Properties) {
		add(ir.RefToAddr(ref))
	}
	return deps
}

func resolveReferences(val any, state *ir.State) any {
	switch v := val.(type) {
	case string:
		if len(v) > len(ir.RefScheme) && v[:len(ir.RefScheme)] == ir.RefScheme {
			addr := ir.RefToAddr(v)
			attr := ir.RefAttribute(v)
			if res := state.Lookup(addr); res != nil {
				if out, ok := res.Outputs[attr]; ok {
					return out
				}
				if in, ok := res.Inputs[attr]; ok {
					return in
				}
			}
		}
		return v
	case map[string]any:
		newMap := make(map[string]any)
		for k, v := range v {
			newMap[k] = resolveReferences(v, state)
		}
		return newMap
	case []any:
		newSlice := make([]any, len(v))
		for i, v := range v {
			newSlice[i] = resolveReferences(v, state)
		}
		return newSlice
	default:
		return v
	}
}
