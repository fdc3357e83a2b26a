package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/moat-io/moat/internal/ir"
	"github.com/moat-io/moat/internal/keygen"
	"github.com/moat-io/moat/internal/logging"
	"github.com/moat-io/moat/internal/provider"
	"github.com/moat-io/moat/internal/provision"
	"github.com/moat-io/moat/internal/schema"
	pv "github.com/moat-io/moat/pkg/provider"
)

// Engine orchestrates the lifecycle of resources.
type Engine struct {
	registry *provider.Registry

	// Parallelism caps concurrent resource operations during apply.
	// Zero means defaultParallelism.
	Parallelism int

	// OnEvent, when set, receives progress notifications during apply.
	OnEvent func(ApplyEvent)

	// Provisioner runs post-create file pushes. Nil means a default
	// SSH-backed runner.
	Provisioner *provision.Runner

	keys *keygen.Store
}

func NewEngine(registry *provider.Registry) *Engine {
	return &Engine{
		registry: registry,
		keys:     keygen.NewStore(),
	}
}

// CreatePlan generates an execution plan by comparing desired configuration
// with current state.
func (e *Engine) CreatePlan(ctx context.Context, cfg *ir.Config, state *ir.State) (*ir.Plan, error) {
	return e.CreatePlanWithTargets(ctx, cfg, state, nil)
}

// CreatePlanWithTargets generates a plan filtered to specific resource
// addresses. Targeted resources pull in their transitive dependencies. If
// targets is empty, all resources are planned.
func (e *Engine) CreatePlanWithTargets(ctx context.Context, cfg *ir.Config, state *ir.State, targets []string) (*ir.Plan, error) {
	logging.Debug("creating plan", "resources", len(cfg.Resources), "state_resources", len(state.Resources), "targets", len(targets))

	if err := schema.Validate(cfg); err != nil {
		return nil, err
	}

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Changes: []*ir.ResourceChange{},
		Summary: &ir.PlanSummary{},
		Outputs: cfg.Outputs,
	}

	for _, res := range cfg.Resources {
		if err := e.registry.LoadProvider(res.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
	}

	cfg.Resources = ExpandForEach(cfg.Resources)

	dag, err := BuildDAG(cfg.Resources)
	if err != nil {
		return nil, err
	}

	stateMap := make(map[string]*ir.ResourceState)
	for _, res := range state.Resources {
		stateMap[ir.StateAddr(res)] = res
	}
	configByAddr := make(map[string]*ir.Resource)
	for _, res := range cfg.Resources {
		configByAddr[ir.Addr(res)] = res
	}

	var targetSet map[string]bool
	if len(targets) > 0 {
		targetSet = make(map[string]bool)
		for _, t := range targets {
			targetSet[t] = true
			for _, dep := range dag.TransitiveDeps(t) {
				targetSet[dep] = true
			}
		}
	}

	// First pass: ask each provider what it would do.
	actions := make(map[string]pv.Action)
	changedAttrs := make(map[string][]string)
	for _, addr := range dag.CreationOrder() {
		res := configByAddr[addr]

		if targetSet != nil && !targetSet[addr] {
			actions[addr] = pv.ActionNoOp
			continue
		}

		prov, err := e.registry.Get(res.Provider)
		if err != nil {
			return nil, err
		}

		desiredJSON, err := json.Marshal(normalizeValue(planProperties(res)))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal properties for %s: %w", addr, err)
		}
		var priorJSON []byte
		if prior, ok := stateMap[addr]; ok {
			priorJSON, _ = json.Marshal(prior.Outputs)
		}

		resp, err := prov.Plan(ctx, &pv.PlanRequest{
			Type:              res.Type,
			Name:              res.Name,
			DesiredConfigJSON: desiredJSON,
			PriorStateJSON:    priorJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("plan failed for %s: %w", addr, err)
		}

		action := resp.Action
		if action == pv.ActionUpdate && res.Lifecycle != nil && len(res.Lifecycle.IgnoreChanges) > 0 {
			action = filterIgnoredChanges(res, resp)
		}
		// A taint mark, whether set by the taint command or by a failed
		// provisioning run, forces recreation.
		if prior, ok := stateMap[addr]; ok && prior.Tainted() {
			action = pv.ActionReplace
		}
		actions[addr] = action
		changedAttrs[addr] = resp.ChangedAttributes
	}

	// Second pass: replacement taints dependents. A dependent whose kind
	// cannot be re-pointed at the successor object must be replaced too;
	// one that can is merely updated. Creation order makes the walk
	// transitive.
	tainted := make(map[string]bool)
	for _, addr := range dag.CreationOrder() {
		res := configByAddr[addr]
		if _, exists := stateMap[addr]; !exists {
			continue
		}
		for _, dep := range dag.Dependencies(addr) {
			if actions[dep] != pv.ActionReplace {
				continue
			}
			if schema.Repointable(res.Type) {
				if actions[addr] == pv.ActionNoOp {
					actions[addr] = pv.ActionUpdate
					changedAttrs[addr] = nil
				}
			} else if actions[addr] != pv.ActionReplace {
				actions[addr] = pv.ActionReplace
				tainted[addr] = true
			}
			break
		}
	}

	// Third pass: enforce lifecycle and emit changes in creation order.
	for _, addr := range dag.CreationOrder() {
		res := configByAddr[addr]
		action := actions[addr]

		if action == pv.ActionNoOp {
			plan.Summary.NoOp++
			continue
		}
		if err := enforceLifecycle(res, action, addr); err != nil {
			return nil, err
		}

		change := &ir.ResourceChange{
			Address: addr,
			Action:  string(action),
			Desired: res,
			Tainted: tainted[addr],
		}
		if prior, ok := stateMap[addr]; ok {
			change.Prior = priorResource(prior)
			change.Diff = buildPropertyDiff(prior.Inputs, res.Properties)
		} else {
			change.Diff = buildCreateDiff(res.Properties)
		}
		plan.Changes = append(plan.Changes, change)

		switch action {
		case pv.ActionCreate:
			plan.Summary.Create++
		case pv.ActionUpdate:
			plan.Summary.Update++
		case pv.ActionReplace:
			plan.Summary.Replace++
		case pv.ActionDelete:
			plan.Summary.Delete++
		}
	}

	// Resources present in state but gone from configuration are deleted,
	// dependents before dependencies.
	var orphans []*ir.ResourceState
	for _, res := range state.Resources {
		addr := ir.StateAddr(res)
		if _, ok := configByAddr[addr]; ok {
			continue
		}
		if targetSet != nil && !targetSet[addr] {
			continue
		}
		orphans = append(orphans, res)
	}
	if len(orphans) > 0 {
		stateDAG, err := BuildDAGFromState(orphans)
		if err != nil {
			return nil, err
		}
		orphanByAddr := make(map[string]*ir.ResourceState)
		for _, res := range orphans {
			orphanByAddr[ir.StateAddr(res)] = res
		}
		for _, addr := range stateDAG.DestructionOrder() {
			res := orphanByAddr[addr]
			plan.Changes = append(plan.Changes, &ir.ResourceChange{
				Address: addr,
				Action:  string(pv.ActionDelete),
				Prior:   priorResource(res),
				Diff:    buildDeleteDiff(res.Inputs),
			})
			plan.Summary.Delete++
		}
	}

	return plan, nil
}

func priorResource(rs *ir.ResourceState) *ir.Resource {
	return &ir.Resource{
		Type:       rs.Type,
		Name:       rs.Name,
		Provider:   rs.Provider,
		Properties: rs.Inputs,
	}
}

func enforceLifecycle(res *ir.Resource, action pv.Action, addr string) error {
	if res.Lifecycle == nil {
		return nil
	}
	if res.Lifecycle.PreventDestroy && (action == pv.ActionDelete || action == pv.ActionReplace) {
		return fmt.Errorf("resource %s has preventDestroy set but plan requires destruction", addr)
	}
	return nil
}

// filterIgnoredChanges downgrades an update to a no-op when every changed
// attribute is listed in lifecycle.ignoreChanges.
func filterIgnoredChanges(res *ir.Resource, resp *pv.PlanResponse) pv.Action {
	if len(resp.ChangedAttributes) == 0 {
		return resp.Action
	}
	ignoreSet := make(map[string]bool)
	for _, attr := range res.Lifecycle.IgnoreChanges {
		ignoreSet[attr] = true
	}
	for _, attr := range resp.ChangedAttributes {
		if !ignoreSet[attr] {
			return resp.Action
		}
	}
	return pv.ActionNoOp
}

var sensitiveAttrs = map[string]bool{
	"publicKey":  true,
	"privateKey": true,
	"password":   true,
}

// buildPropertyDiff compares prior and desired properties attribute by
// attribute.
func buildPropertyDiff(prior, desired map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)

	allKeys := make(map[string]bool)
	for k := range prior {
		allKeys[k] = true
	}
	for k := range desired {
		allKeys[k] = true
	}

	for k := range allKeys {
		priorVal, inPrior := prior[k]
		desiredVal, inDesired := desired[k]

		switch {
		case !inPrior:
			diff[k] = &ir.PropertyDiff{After: desiredVal, Action: "create", Sensitive: sensitiveAttrs[k]}
		case !inDesired:
			diff[k] = &ir.PropertyDiff{Before: priorVal, Action: "delete", Sensitive: sensitiveAttrs[k]}
		case fmt.Sprintf("%v", priorVal) != fmt.Sprintf("%v", desiredVal):
			diff[k] = &ir.PropertyDiff{Before: priorVal, After: desiredVal, Action: "update", Sensitive: sensitiveAttrs[k]}
		}
	}

	return diff
}

func buildCreateDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{After: v, Action: "create", Sensitive: sensitiveAttrs[k]}
	}
	return diff
}

func buildDeleteDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{Before: v, Action: "delete", Sensitive: sensitiveAttrs[k]}
	}
	return diff
}

// normalizeValue rewrites pkl map types into JSON-friendly shapes.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[any]any:
		newMap := make(map[string]any)
		for k, v := range val {
			newMap[fmt.Sprintf("%v", k)] = normalizeValue(v)
		}
		return newMap
	case map[string]any:
		newMap := make(map[string]any)
		for k, v := range val {
			newMap[k] = normalizeValue(v)
		}
		return newMap
	case []any:
		newSlice := make([]any, len(val))
		for i, v := range val {
			newSlice[i] = normalizeValue(v)
		}
		return newSlice
	default:
		return val
	}
}
