package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moat-io/moat/internal/engine"
	"github.com/moat-io/moat/internal/eval"
	"github.com/moat-io/moat/internal/provider"
	"github.com/moat-io/moat/internal/state"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy [path]",
	Short: "Delete all managed infrastructure",
	Long: `Deletes every resource tracked in state, dependents before their
dependencies. Configuration is not consulted; the recorded dependency
edges drive the ordering.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveTarget(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	evaluator := eval.NewEvaluator(wd)
	stateMgr := state.NewManager(statePath(wd), evaluator)
	registry := provider.NewRegistry()
	eng := engine.NewEngine(registry)

	if err := stateMgr.Lock(); err != nil {
		return err
	}
	defer stateMgr.Unlock()

	currentState, err := stateMgr.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if len(currentState.Resources) == 0 {
		fmt.Println("Nothing to destroy. State is empty.")
		return nil
	}

	if err := loadStateProviders(registry, currentState); err != nil {
		return &FatalProviderError{Err: err}
	}

	plan, err := eng.CreateDestroyPlan(ctx, currentState)
	if err != nil {
		return err
	}

	fmt.Printf("Moat will destroy %d resource(s):\n", len(plan.Changes))
	renderPlanChanges(plan)

	if !destroyAutoApprove {
		fmt.Print("\nDo you really want to destroy all resources? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	newState, report, err := eng.ApplyPlan(ctx, plan, currentState)

	if writeErr := stateMgr.Write(ctx, newState); writeErr != nil {
		return fmt.Errorf("failed to write state: %w", writeErr)
	}

	renderApplyReport(report)

	if err != nil {
		return err
	}
	if report.HasFailures() {
		return &PartialApplyError{Report: report}
	}

	fmt.Printf("\nDestroy complete! %d resource(s) deleted.\n", plan.Summary.Delete)
	return nil
}
