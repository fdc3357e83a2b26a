package provider

import (
	"errors"
	"fmt"
)

// ErrorCode classifies provider API failures.
type ErrorCode string

const (
	CodeRateLimited      ErrorCode = "RateLimited"
	CodeConflict         ErrorCode = "Conflict"
	CodeNotFound         ErrorCode = "NotFound"
	CodeInvalidParameter ErrorCode = "InvalidParameter"
	CodeUnknown          ErrorCode = "Unknown"
)

// Error is a typed provider API failure. Rate-limited errors are retried by
// the executor; everything else propagates as an operation failure.
type Error struct {
	Code ErrorCode
	Op   string // provider operation, e.g. "CreateVpc"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is a throttling failure.
func IsRateLimited(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == CodeRateLimited
}

// IsNotFound reports whether err indicates the resource no longer exists.
func IsNotFound(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == CodeNotFound
}
