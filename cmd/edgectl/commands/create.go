package commands

import (
	"fmt"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"edge-deploy-service/internal/core/services"
)

func newCreateCmd() *cobra.Command {
	var (
		target      string
		artifact    string
		name        string
		searchRoots []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Transfer a model to a device as a new deployment version",
		Long: `Download a model artifact, bundle it with the companion files found in the
search roots and copy everything to <base>/<name>_v<N>/ on the device.

Examples:
  edgectl create -t jetson://192.168.2.100 -m models:/face_recognition_model/latest --name face_recognition_files
  edgectl create -t jetson://simple_jetson.yaml -m runs:/3f2a/model --name faces`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := initService(ctx); err != nil {
				return err
			}

			dep, err := deploySvc.Create(ctx, services.CreateRequest{
				Target:      target,
				Name:        name,
				ArtifactURI: artifact,
				SearchRoots: searchRoots,
			})
			if err != nil {
				return fmt.Errorf("create deployment: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Deployment %s version %d is %s\n", dep.Name, dep.Version, dep.Status)
			fmt.Fprintf(out, "Remote path: %s\n", dep.RemotePath)
			if dep.Manifest != nil {
				fmt.Fprintf(out, "Files: %d (%s)\n", len(dep.Manifest.Files), units.HumanSize(float64(dep.Manifest.TotalSize())))
			}
			return nil
		},
	}

	addTargetFlag(cmd, &target)
	cmd.Flags().StringVarP(&artifact, "model-uri", "m", "", "Model reference, e.g. models:/<name>/<version>")
	cmd.Flags().StringVar(&name, "name", "", "Deployment name")
	cmd.Flags().StringSliceVar(&searchRoots, "search-root", nil, "Directories searched for companion files (repeatable)")
	_ = cmd.MarkFlagRequired("model-uri")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
