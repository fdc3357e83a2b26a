package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moat-io/moat/internal/engine"
	"github.com/moat-io/moat/internal/eval"
	"github.com/moat-io/moat/internal/ir"
)

var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Output the dependency graph in DOT format",
	Long: `Generates the resource dependency graph in Graphviz DOT format. Pipe
the output to 'dot' to render an image:

  moat graph | dot -Tpng > graph.png`,
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveTarget(args)
	if err != nil {
		return err
	}

	evaluator := eval.NewEvaluator(wd)
	cfg, err := evaluator.LoadConfig(cmd.Context(), entryPoint, nil)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	resources := engine.ExpandForEach(cfg.Resources)
	dag, err := engine.BuildDAG(resources)
	if err != nil {
		return err
	}

	fmt.Println("digraph moat {")
	fmt.Println("  rankdir = \"BT\";")
	fmt.Println("  node [shape = rect];")
	fmt.Println()

	for _, res := range resources {
		fmt.Printf("  %q;\n", ir.Addr(res))
	}
	fmt.Println()

	for _, res := range resources {
		addr := ir.Addr(res)
		for _, dep := range dag.Dependencies(addr) {
			fmt.Printf("  %q -> %q;\n", addr, dep)
		}
	}

	fmt.Println("}")
	return nil
}
