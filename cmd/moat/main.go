package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/moat-io/moat/internal/cli"
)

// Exit codes distinguish how a run went wrong: 1 for configuration and
// planning errors, 2 for an apply that left some resources failed or
// blocked, 3 for a provider that could not operate at all.
const (
	exitPlanError    = 1
	exitPartialApply = 2
	exitProviderDown = 3
)

func main() {
	err := cli.Execute()
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, err)

	var partial *cli.PartialApplyError
	var fatal *cli.FatalProviderError
	switch {
	case errors.As(err, &partial):
		os.Exit(exitPartialApply)
	case errors.As(err, &fatal):
		os.Exit(exitProviderDown)
	default:
		os.Exit(exitPlanError)
	}
}
