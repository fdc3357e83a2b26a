package ir

// State represents the last known state of managed resources.
type State struct {
	Version   int              `pkl:"version"`
	Serial    int              `pkl:"serial"`
	Lineage   string           `pkl:"lineage"`
	Resources []*ResourceState `pkl:"resources"`
	Outputs   map[string]any   `pkl:"outputs"`
}

type ResourceState struct {
	Type         string         `pkl:"type"`
	Name         string         `pkl:"name"`
	Provider     string         `pkl:"provider"`
	Inputs       map[string]any `pkl:"inputs"`  // User provided
	Outputs      map[string]any `pkl:"outputs"` // Provider returned
	Dependencies []string       `pkl:"dependencies"`
}

// TaintKey marks a recorded resource for forced recreation. It lives in
// Outputs so it survives state round trips without a schema change.
const TaintKey = "_tainted"

// Tainted reports whether the resource is marked for recreation.
func (r *ResourceState) Tainted() bool {
	v, ok := r.Outputs[TaintKey]
	return ok && v == true
}

// SetTainted adds or removes the recreation mark.
func (r *ResourceState) SetTainted(tainted bool) {
	if tainted {
		if r.Outputs == nil {
			r.Outputs = make(map[string]any)
		}
		r.Outputs[TaintKey] = true
		return
	}
	delete(r.Outputs, TaintKey)
}

// Lookup returns the state entry for an address, or nil.
func (s *State) Lookup(addr string) *ResourceState {
	for _, res := range s.Resources {
		if res.Type+"."+res.Name == addr {
			return res
		}
	}
	return nil
}
