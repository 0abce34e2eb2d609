package commands

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List deployments on a device",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := initService(ctx); err != nil {
				return err
			}

			refs, err := deploySvc.List(ctx, target)
			if err != nil {
				return fmt.Errorf("listing deployments: %w", err)
			}

			if len(refs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No deployments")
				return nil
			}

			table := tablewriter.NewTable(cmd.OutOrStdout(),
				tablewriter.WithHeader([]string{"NAME", "VERSION", "DIRECTORY"}),
			)
			for _, r := range refs {
				table.Append([]string{r.Name, fmt.Sprintf("%d", r.Version), r.DirName()})
			}
			table.Render()
			return nil
		},
	}

	addTargetFlag(cmd, &target)
	return cmd
}
