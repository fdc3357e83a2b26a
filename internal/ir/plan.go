package ir

// Plan represents a calculated execution plan.
type Plan struct {
	Metadata *PlanMetadata     `pkl:"metadata"`
	Changes  []*ResourceChange `pkl:"changes"`
	Summary  *PlanSummary      `pkl:"summary"`
	Outputs  map[string]any    `pkl:"outputs"`
}

// Change returns the planned change for addr, or nil when the plan does
// not touch that resource.
func (p *Plan) Change(addr string) *ResourceChange {
	for _, c := range p.Changes {
		if c.Address == addr {
			return c
		}
	}
	return nil
}

type PlanMetadata struct {
	Timestamp string `pkl:"timestamp"`
}

type ResourceChange struct {
	Address string                   `pkl:"address"`
	Action  string                   `pkl:"action"` // "CREATE", "UPDATE", "REPLACE", "DELETE"
	Desired *Resource                `pkl:"resource"`
	Prior   *Resource                `pkl:"prior"`
	Diff    map[string]*PropertyDiff `pkl:"diff"`

	// Tainted marks a change that was upgraded to REPLACE because a
	// dependency is being replaced and this kind cannot be re-pointed.
	Tainted bool `pkl:"tainted"`
}

type PropertyDiff struct {
	Before    any    `pkl:"before"`
	After     any    `pkl:"after"`
	Sensitive bool   `pkl:"sensitive"`
	Action    string `pkl:"action"` // "create", "update", "delete"
}

type PlanSummary struct {
	Create  int `pkl:"create"`
	Update  int `pkl:"update"`
	Delete  int `pkl:"delete"`
	Replace int `pkl:"replace"`
	NoOp    int `pkl:"noop"`
}
