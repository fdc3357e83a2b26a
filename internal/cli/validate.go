package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moat-io/moat/internal/eval"
	"github.com/moat-io/moat/internal/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate the configuration",
	Long: `Evaluates the Pkl configuration and checks it against the resource
schemas: required attributes, reference targets, and declared kinds.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveTarget(args)
	if err != nil {
		return err
	}

	evaluator := eval.NewEvaluator(wd)

	fmt.Printf("Checking %s... ", entryPoint)
	cfg, err := evaluator.LoadConfig(cmd.Context(), entryPoint, nil)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("validation failed: %w", err)
	}

	if err := schema.Validate(cfg); err != nil {
		fmt.Println("FAILED")
		return err
	}
	fmt.Println("OK")

	fmt.Println("\nConfiguration is valid.")
	return nil
}
