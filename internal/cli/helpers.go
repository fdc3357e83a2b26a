package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/moat-io/moat/internal/ir"
	"github.com/moat-io/moat/internal/provider"
)

const stateDir = ".moat"

// resolveTarget turns an optional path argument into a working directory
// and Pkl entry point.
func resolveTarget(args []string) (wd, entryPoint string, err error) {
	wd, err = os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}
	entryPoint = "main.pkl"

	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
		}
		if info.IsDir() {
			wd = absPath
		} else {
			wd = filepath.Dir(absPath)
			entryPoint = filepath.Base(absPath)
		}
	}
	return wd, entryPoint, nil
}

func statePath(wd string) string {
	return filepath.Join(wd, stateDir, "state.pkl")
}

// loadRequiredProviders loads every provider the configuration references.
func loadRequiredProviders(registry *provider.Registry, cfg *ir.Config) error {
	seen := make(map[string]bool)
	for _, res := range cfg.Resources {
		if res.Provider != "" && !seen[res.Provider] {
			seen[res.Provider] = true
			if err := registry.LoadProvider(res.Provider); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
			}
		}
	}
	return nil
}

// loadStateProviders loads every provider the state references, needed so
// orphaned resources can still be deleted.
func loadStateProviders(registry *provider.Registry, state *ir.State) error {
	seen := make(map[string]bool)
	for _, res := range state.Resources {
		if res.Provider != "" && !seen[res.Provider] {
			seen[res.Provider] = true
			if err := registry.LoadProvider(res.Provider); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
			}
		}
	}
	return nil
}

// renderPlanChanges prints the detailed change list for a plan.
func renderPlanChanges(plan *ir.Plan) {
	for _, change := range plan.Changes {
		symbol := "~"
		switch change.Action {
		case "CREATE":
			symbol = "+"
		case "DELETE":
			symbol = "-"
		case "REPLACE":
			symbol = "-/+"
		}

		color := "\033[0m"
		switch change.Action {
		case "CREATE":
			color = "\033[32m"
		case "DELETE":
			color = "\033[31m"
		case "UPDATE", "REPLACE":
			color = "\033[33m"
		}

		var resourceType, resourceName string
		if change.Desired != nil {
			resourceType = change.Desired.Type
			resourceName = change.Desired.Name
		} else if change.Prior != nil {
			resourceType = change.Prior.Type
			resourceName = change.Prior.Name
		}

		reason := ""
		if change.Tainted {
			reason = " (dependency replaced)"
		}

		fmt.Printf("\n%s  # %s will be %s%s%s\n", color, change.Address, change.Action, reason, "\033[0m")
		fmt.Printf("%s  %s resource \"%s\" \"%s\" {\n", color, symbol, resourceType, resourceName)
		renderPropertyDiff(change, color)
		fmt.Printf("%s    }%s\n", color, "\033[0m")
	}
}

// renderPropertyDiff prints per-attribute changes, masking sensitive
// values.
func renderPropertyDiff(change *ir.ResourceChange, color string) {
	keys := make([]string, 0, len(change.Diff))
	for k := range change.Diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		diff := change.Diff[key]
		before := formatValue(diff.Before, diff.Sensitive)
		after := formatValue(diff.After, diff.Sensitive)
		switch diff.Action {
		case "create":
			fmt.Printf("\033[32m      + %s = %s\033[0m\n", key, after)
		case "delete":
			fmt.Printf("\033[31m      - %s = %s\033[0m\n", key, before)
		case "update":
			fmt.Printf("\033[33m      ~ %s = %s -> %s\033[0m\n", key, before, after)
		default:
			fmt.Printf("%s        %s = %s\n", color, key, after)
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any, sensitive bool) string {
	if sensitive {
		return "(sensitive)"
	}
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *ir.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create:  %d\n", plan.Summary.Create)
	fmt.Printf("  Update:  %d\n", plan.Summary.Update)
	fmt.Printf("  Delete:  %d\n", plan.Summary.Delete)
	fmt.Printf("  Replace: %d\n", plan.Summary.Replace)
	fmt.Printf("  NoOp:    %d\n", plan.Summary.NoOp)
}

// renderApplyReport prints the terminal status of every operation plus any
// warnings collected along the way.
func renderApplyReport(report *ir.ApplyReport) {
	fmt.Println()
	for _, res := range report.Results {
		switch res.Status {
		case ir.StatusSucceeded:
			fmt.Printf("\033[32m  ✓ %s %s (%s)\033[0m\n", res.Address, res.Action, res.Duration.Round(1e6))
		case ir.StatusFailed:
			fmt.Printf("\033[31m  ✗ %s %s: %s\033[0m\n", res.Address, res.Action, res.Error)
		case ir.StatusBlocked:
			fmt.Printf("\033[33m  ⊘ %s %s: %s\033[0m\n", res.Address, res.Action, res.Error)
		}
	}
	for _, warning := range report.Warnings {
		fmt.Printf("\033[33m  warning: %s\033[0m\n", warning)
	}
	fmt.Printf("\n%d succeeded, %d failed, %d blocked.\n",
		report.Succeeded(), report.Failed(), report.Blocked())
}
