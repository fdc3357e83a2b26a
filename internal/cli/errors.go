package cli

import (
	"fmt"

	"github.com/moat-io/moat/internal/ir"
)

// PartialApplyError reports an apply that finished with failed or blocked
// resources. State for the successful portion was persisted.
type PartialApplyError struct {
	Report *ir.ApplyReport
}

func (e *PartialApplyError) Error() string {
	return fmt.Sprintf("apply finished with %d failed and %d blocked resource(s)",
		e.Report.Failed(), e.Report.Blocked())
}

// FatalProviderError reports a provider that could not operate at all, as
// opposed to an individual resource operation failing.
type FatalProviderError struct {
	Err error
}

func (e *FatalProviderError) Error() string { return e.Err.Error() }
func (e *FatalProviderError) Unwrap() error { return e.Err }
