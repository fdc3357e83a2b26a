package ir

import "time"

// OperationStatus is the terminal status of one applied change.
type OperationStatus string

const (
	StatusSucceeded OperationStatus = "succeeded"
	StatusFailed    OperationStatus = "failed"
	// StatusBlocked marks an operation that was never attempted because a
	// predecessor failed.
	StatusBlocked OperationStatus = "blocked"
)

// ApplyReport enumerates the terminal status of every operation in an apply
// cycle. Partial application is visible here and corrected by a later
// plan/apply cycle, never rolled back.
type ApplyReport struct {
	Results  []*OperationResult
	Warnings []string
}

type OperationResult struct {
	Address  string
	Action   string
	Status   OperationStatus
	Error    string
	Duration time.Duration
}

func (r *ApplyReport) count(status OperationStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

func (r *ApplyReport) Succeeded() int { return r.count(StatusSucceeded) }
func (r *ApplyReport) Failed() int    { return r.count(StatusFailed) }
func (r *ApplyReport) Blocked() int   { return r.count(StatusBlocked) }

// HasFailures reports whether any operation failed or was blocked.
func (r *ApplyReport) HasFailures() bool {
	return r.Failed() > 0 || r.Blocked() > 0
}

// Result returns the result recorded for an address, or nil.
func (r *ApplyReport) Result(addr string) *OperationResult {
	for _, res := range r.Results {
		if res.Address == addr {
			return res
		}
	}
	return nil
}
