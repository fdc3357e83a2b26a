package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moat-io/moat/internal/engine"
	"github.com/moat-io/moat/internal/eval"
	"github.com/moat-io/moat/internal/provider"
	"github.com/moat-io/moat/internal/state"
)

var (
	applyAutoApprove bool
	applyProperties  map[string]string
	applyParallelism int
)

var applyCmd = &cobra.Command{
	Use:   "apply [path]",
	Short: "Converge infrastructure onto the declared configuration",
	Long: `Plans and applies changes so real infrastructure matches the declared
configuration. Independent resources are applied in parallel; a failed
resource blocks only its own dependents and nothing is rolled back.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of the plan")
	applyCmd.Flags().StringToStringVarP(&applyProperties, "prop", "D", nil, "Set external properties (format: key=value)")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", 0, "Maximum concurrent resource operations (default 10)")
}

func runApply(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveTarget(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	evaluator := eval.NewEvaluator(wd)
	stateMgr := state.NewManager(statePath(wd), evaluator)
	registry := provider.NewRegistry()
	eng := engine.NewEngine(registry)
	eng.Parallelism = applyParallelism

	if err := stateMgr.Lock(); err != nil {
		return err
	}
	defer stateMgr.Unlock()

	fmt.Print("Loading configuration... ")
	cfg, err := evaluator.LoadConfig(ctx, entryPoint, applyProperties)
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
	plan, err := eng.CreatePlan(ctx, cfg, currentState)
	if err != nil {
		fmt.Println("FAILED")
		return err
	}
	fmt.Println("OK")

	if len(plan.Changes) == 0 {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("\nMoat will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !applyAutoApprove {
		fmt.Print("\nDo you want to perform these actions? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Printf("\nApplying %d changes...\n", len(plan.Changes))

	newState, report, err := eng.ApplyPlan(ctx, plan, currentState)

	// Whatever happened, persist what converged so the next cycle can
	// correct the remainder.
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

	fmt.Printf("\nApply complete! Resources: %d added, %d changed, %d destroyed.\n",
		plan.Summary.Create, plan.Summary.Update+plan.Summary.Replace, plan.Summary.Delete)

	if len(newState.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for k, v := range newState.Outputs {
			fmt.Printf("  %s = %v\n", k, v)
		}
	}
	return nil
}
