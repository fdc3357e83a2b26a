package schema

import (
	"fmt"
	"strings"
)

// SchemaError reports a declaration that is structurally invalid: an unknown
// kind, a duplicate address, or a missing required attribute.
type SchemaError struct {
	Address string
	Detail  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid resource %s: %s", e.Address, e.Detail)
}

// UnresolvedReferenceError reports a reference whose target is not part of
// the declared set.
type UnresolvedReferenceError struct {
	Address string // referencing resource
	Target  string // missing target address
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("resource %s references %s, which is not declared", e.Address, e.Target)
}

// CycleError reports a reference cycle among the named resources.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Members, " -> "))
}
