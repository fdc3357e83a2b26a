// Package cli wires the moat commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/moat-io/moat/internal/logging"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "moat",
	Short: "Declarative infrastructure provisioning",
	Long: `Moat converges declared infrastructure onto real systems.

Resources are declared in Pkl, planned against recorded state, and applied
in dependency order with bounded parallelism. Failures never roll back;
the next plan/apply cycle picks up where the last one stopped.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(taintCmd)
	rootCmd.AddCommand(untaintCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(versionCmd)
}
