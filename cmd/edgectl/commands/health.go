package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	var (
		target string
		port   int
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the /health endpoint of a service running on the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := initService(ctx); err != nil {
				return err
			}

			status, err := deploySvc.Health(ctx, target, port)
			if err != nil {
				return fmt.Errorf("checking health: %w", err)
			}

			out := cmd.OutOrStdout()
			if status.Healthy {
				fmt.Fprintf(out, "%s healthy (%d ms)\n", status.URL, status.Latency.Milliseconds())
				return nil
			}
			reason := status.Error
			if reason == "" {
				reason = fmt.Sprintf("status %d", status.StatusCode)
			}
			fmt.Fprintf(out, "%s unhealthy: %s\n", status.URL, reason)
			return fmt.Errorf("service unhealthy")
		},
	}

	addTargetFlag(cmd, &target)
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "Service port on the device")
	return cmd
}
