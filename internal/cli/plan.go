package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moat-io/moat/internal/engine"
	"github.com/moat-io/moat/internal/eval"
	"github.com/moat-io/moat/internal/provider"
	"github.com/moat-io/moat/internal/state"
)

var planTargets []string

var planCmd = &cobra.Command{
	Use:   "plan [path]",
	Short: "Show what an apply would change",
	Long: `Compares the declared configuration against recorded state and prints
the changes an apply would make.

The plan shows:
  - resources to be created
  - resources to be updated, with a per-attribute diff
  - resources to be replaced, including those tainted by a replaced dependency
  - resources to be deleted`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringSliceVar(&planTargets, "target", nil, "Limit the plan to the given resource addresses")
}

func runPlan(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveTarget(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	evaluator := eval.NewEvaluator(wd)
	stateMgr := state.NewManager(statePath(wd), evaluator)
	registry := provider.NewRegistry()
	eng := engine.NewEngine(registry)

	fmt.Print("Loading configuration... ")
	cfg, err := evaluator.LoadConfig(ctx, entryPoint, nil)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Println("OK")

	if err := loadRequiredProviders(registry, cfg); err != nil {
		return &FatalProviderError{Err: err}
	}

	currentState, err := stateMgr.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if err := loadStateProviders(registry, currentState); err != nil {
		return &FatalProviderError{Err: err}
	}

	fmt.Print("Calculating plan... ")
	plan, err := eng.CreatePlanWithTargets(ctx, cfg, currentState, planTargets)
	if err != nil {
		fmt.Println("FAILED")
		return err
	}
	fmt.Println("OK")

	if len(plan.Changes) == 0 {
		fmt.Println("\nNo changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("\nMoat will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)
	return nil
}
