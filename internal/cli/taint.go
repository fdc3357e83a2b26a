package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moat-io/moat/internal/eval"
	"github.com/moat-io/moat/internal/state"
)

var taintCmd = &cobra.Command{
	Use:   "taint <address>",
	Short: "Mark a resource for recreation",
	Long: `Marks a resource as tainted, forcing it to be destroyed and recreated
on the next apply. The engine also taints a resource itself when its
provisioner fails after a successful create.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaint,
}

var untaintCmd = &cobra.Command{
	Use:   "untaint <address>",
	Short: "Remove taint from a resource",
	Long:  `Removes the taint mark from a resource, preventing forced recreation.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runUntaint,
}

func runTaint(cmd *cobra.Command, args []string) error {
	return setTaint(cmd, args[0], true)
}

func runUntaint(cmd *cobra.Command, args []string) error {
	return setTaint(cmd, args[0], false)
}

func setTaint(cmd *cobra.Command, target string, tainted bool) error {
	wd, _, err := resolveTarget(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	evaluator := eval.NewEvaluator(wd)
	stateMgr := state.NewManager(statePath(wd), evaluator)

	if err := stateMgr.Lock(); err != nil {
		return err
	}
	defer stateMgr.Unlock()

	s, err := stateMgr.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	res := s.Lookup(target)
	if res == nil {
		return fmt.Errorf("resource %s not found in state", target)
	}
	res.SetTainted(tainted)

	if err := stateMgr.Write(ctx, s); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	if tainted {
		fmt.Printf("Resource %s has been tainted. It will be recreated on the next apply.\n", target)
	} else {
		fmt.Printf("Resource %s is no longer tainted.\n", target)
	}
	return nil
}
