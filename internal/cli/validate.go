package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudseed-io/seedctl/pkg/deployment"
	"github.com/cloudseed-io/seedctl/pkg/engine/scheduler"
	"github.com/cloudseed-io/seedctl/pkg/graph"
)

func newValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a deployment declaration",
		Long: `Validate a deployment declaration without applying it.

Parses the file, checks every expression, builds the dependency graph,
rejects cycles and dangling references, and prints the batch plan.

Examples:
  seedctl validate deploy.yml
  seedctl validate -f deploy.hcl`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" && len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				return &ExitError{Code: exitBuildError, Err: fmt.Errorf("no declaration file given")}
			}

			dep, err := deployment.Load(path)
			if err != nil {
				return &ExitError{Code: exitBuildError, Err: err}
			}

			g, err := graph.Build(dep)
			if err != nil {
				return &ExitError{Code: exitBuildError, Err: err}
			}

			batches, err := scheduler.Schedule(g)
			if err != nil {
				return &ExitError{Code: exitBuildError, Err: err}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Deployment %q is valid: %d resources in %d batches\n",
				dep.Name, len(g.Nodes), len(batches))
			for i, batch := range batches {
				fmt.Fprintf(out, "  batch %d:", i+1)
				for _, node := range batch {
					fmt.Fprintf(out, " %s", node.Name)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the declaration file")

	return cmd
}
