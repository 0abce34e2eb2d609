package commands

import (
	"fmt"

	units "github.com/docker/go-units"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newDescribeCmd() *cobra.Command {
	var (
		target  string
		name    string
		version int
	)

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Show one deployment and check its files on the device",
		Long: `Show a deployment read back from its remote manifest. Without --version the
highest version is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			v, err := versionFlag(cmd, version)
			if err != nil {
				return err
			}
			if err := initService(ctx); err != nil {
				return err
			}

			dep, err := deploySvc.Describe(ctx, target, name, v)
			if err != nil {
				return fmt.Errorf("describing deployment: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:     %s\n", dep.Name)
			fmt.Fprintf(out, "Version:  %d\n", dep.Version)
			fmt.Fprintf(out, "Status:   %s\n", dep.Status)
			fmt.Fprintf(out, "Path:     %s\n", dep.RemotePath)
			if dep.ArtifactURI != "" {
				fmt.Fprintf(out, "Artifact: %s\n", dep.ArtifactURI)
			}
			if dep.LastError != "" {
				fmt.Fprintf(out, "Error:    %s\n", dep.LastError)
			}
			if dep.Manifest == nil {
				return nil
			}

			table := tablewriter.NewTable(out,
				tablewriter.WithHeader([]string{"FILE", "ROLE", "SIZE"}),
			)
			for _, f := range dep.Manifest.Files {
				table.Append([]string{f.RelPath, string(f.Role), units.HumanSize(float64(f.Size))})
			}
			table.Render()
			return nil
		},
	}

	addTargetFlag(cmd, &target)
	cmd.Flags().StringVar(&name, "name", "", "Deployment name")
	cmd.Flags().IntVar(&version, "version", 0, "Deployment version (default: latest)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
