package schema

import (
	"github.com/moat-io/moat/internal/ir"
)

// Validate checks a declared configuration against the kind registry before
// any graph construction or provider call happens. It rejects duplicate
// addresses, unknown kinds, missing required attributes, and references that
// do not resolve within the declared set.
func Validate(cfg *ir.Config) error {
	declared := make(map[string]bool, len(cfg.Resources))
	for _, res := range cfg.Resources {
		addr := ir.Addr(res)
		if declared[addr] {
			return &SchemaError{Address: addr, Detail: "duplicate resource address"}
		}
		declared[addr] = true
	}

	for _, res := range cfg.Resources {
		addr := ir.Addr(res)

		kind, ok := Lookup(res.Type)
		if !ok {
			return &SchemaError{Address: addr, Detail: "unknown resource kind " + res.Type}
		}
		if res.Name == "" {
			return &SchemaError{Address: addr, Detail: "resource name must not be empty"}
		}

		for _, attr := range kind.Required {
			if v, ok := res.Properties[attr]; !ok || v == nil || v == "" {
				return &SchemaError{Address: addr, Detail: "missing required attribute " + attr}
			}
		}

		// Explicit dependencies must name declared resources.
		for _, dep := range res.DependsOn {
			if !declared[dep] {
				return &UnresolvedReferenceError{Address: addr, Target: dep}
			}
		}

		// Implicit references must resolve within the declared set. This is
		// what catches removing a resource that others still point at: the
		// dangling reference fails here, before anything is attempted
		// remotely.
		for _, ref := range ir.ExtractRefs(res.Properties) {
			target := ir.RefToAddr(ref)
			if target == "" {
				return &SchemaError{Address: addr, Detail: "malformed reference " + ref}
			}
			if !declared[target] {
				return &UnresolvedReferenceError{Address: addr, Target: target}
			}
		}
	}

	return nil
}
