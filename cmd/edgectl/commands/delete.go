package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	var (
		target  string
		name    string
		version int
	)

	cmd := &cobra.Command{
		Use:     "delete",
		Aliases: []string{"rm"},
		Short:   "Remove a deployment version from a device",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			v, err := versionFlag(cmd, version)
			if err != nil {
				return err
			}
			if err := initService(ctx); err != nil {
				return err
			}

			ref, err := deploySvc.Delete(ctx, target, name, v)
			if err != nil {
				return fmt.Errorf("deleting deployment: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", ref.DirName())
			return nil
		},
	}

	addTargetFlag(cmd, &target)
	cmd.Flags().StringVar(&name, "name", "", "Deployment name")
	cmd.Flags().IntVar(&version, "version", 0, "Deployment version (default: latest)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
