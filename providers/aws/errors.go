package aws

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/moat-io/moat/pkg/provider"
)

// wrapErr classifies an EC2 API error into the engine's provider error
// taxonomy so the executor can decide whether to retry.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	code := provider.CodeUnknown
	var ae smithy.APIError
	if errors.As(err, &ae) {
		code = classify(ae.ErrorCode())
	}
	return &provider.Error{Code: code, Op: op, Err: err}
}

func classify(apiCode string) provider.ErrorCode {
	switch {
	case apiCode == "RequestLimitExceeded",
		apiCode == "Throttling",
		apiCode == "ThrottlingException",
		apiCode == "TooManyRequestsException":
		return provider.CodeRateLimited
	case strings.Contains(apiCode, "NotFound"),
		apiCode == "InvalidAllocationID.NotFound":
		return provider.CodeNotFound
	case strings.Contains(apiCode, "Duplicate"),
		apiCode == "DependencyViolation",
		apiCode == "ResourceAlreadyAssociated",
		apiCode == "IncorrectInstanceState":
		return provider.CodeConflict
	case strings.HasPrefix(apiCode, "InvalidParameter"),
		strings.HasPrefix(apiCode, "Malformed"),
		apiCode == "InvalidVpcID.Malformed":
		return provider.CodeInvalidParameter
	default:
		return provider.CodeUnknown
	}
}
