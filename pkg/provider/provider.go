package provider

import "context"

// Action is the change a provider proposes for one resource.
type Action string

const (
	ActionNoOp    Action = "NOOP"
	ActionCreate  Action = "CREATE"
	ActionUpdate  Action = "UPDATE"
	ActionReplace Action = "REPLACE"
	ActionDelete  Action = "DELETE"
)

// PlanRequest asks a provider to compare desired configuration against the
// prior recorded state for one resource.
type PlanRequest struct {
	Type              string
	Name              string
	DesiredConfigJSON []byte
	PriorStateJSON    []byte
}

type PlanResponse struct {
	Action Action
	// ChangedAttributes names the attributes that differ, when known.
	ChangedAttributes []string
}

// ApplyRequest asks a provider to converge one resource. A nil
// DesiredConfigJSON means delete.
type ApplyRequest struct {
	Type              string
	Name              string
	DesiredConfigJSON []byte
	PriorStateJSON    []byte
}

type ApplyResponse struct {
	NewStateJSON []byte
}

// DeleteRequest asks a provider to remove a resource it previously created.
type DeleteRequest struct {
	Type             string
	ID               string
	CurrentStateJSON []byte
}

// Interface is the contract every provider implements. Resource
// configuration and state cross the boundary as JSON so the engine stays
// ignorant of per-kind attribute shapes.
type Interface interface {
	Configure(ctx context.Context) error
	Plan(ctx context.Context, req *PlanRequest) (*PlanResponse, error)
	Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error)
	Delete(ctx context.Context, req *DeleteRequest) error
}
