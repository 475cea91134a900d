package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored run records",
	}

	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsShowCmd())

	return cmd
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <deployment>",
		Short: "List runs for a deployment, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backendType, _ := cmd.Flags().GetString("backend")
			backendConfig, _ := cmd.Flags().GetStringArray("backend-config")
			stateManager, err := createStateManagerWithConfig(backendType, backendConfig)
			if err != nil {
				return err
			}

			refs, err := stateManager.ListRuns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(refs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No runs recorded for %q.\n", args[0])
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION")
			for _, ref := range refs {
				duration := ""
				if !ref.FinishedAt.IsZero() {
					duration = ref.FinishedAt.Sub(ref.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					ref.ID, ref.Status, ref.StartedAt.Format(time.RFC3339), duration)
			}
			return w.Flush()
		},
	}
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <deployment> [run-id]",
		Short: "Show one run record as JSON; omit the id for the latest",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			backendType, _ := cmd.Flags().GetString("backend")
			backendConfig, _ := cmd.Flags().GetStringArray("backend-config")
			stateManager, err := createStateManagerWithConfig(backendType, backendConfig)
			if err != nil {
				return err
			}

			deploymentName := args[0]
			var record interface{}
			if len(args) == 2 {
				record, err = stateManager.GetRun(cmd.Context(), deploymentName, args[1])
			} else {
				record, err = stateManager.LatestRun(cmd.Context(), deploymentName)
			}
			if err != nil {
				return err
			}

			encoded, err := json.MarshalIndent(record, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
	return cmd
}
