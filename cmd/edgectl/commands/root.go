// Package commands implements the edgectl CLI commands.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"edge-deploy-service/internal/app"
	"edge-deploy-service/internal/config"
	"edge-deploy-service/internal/core/services"
)

var (
	// Global flags
	verbose bool
	logJSON bool

	// Shared state
	deploySvc *services.DeployService
	closeApp  func()
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edgectl",
		Short: "Transfer trained models to edge devices",
		Long: `edgectl packages a registered model together with its runtime companion
files and copies it to an edge device as a new, immutable version.

Example:
  edgectl create -t jetson://192.168.2.100 -m models:/face_recognition_model/latest --name face_recognition_files`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetLevel(log.DebugLevel)
			} else {
				log.SetLevel(log.WarnLevel)
			}
			if logJSON {
				log.SetFormatter(&log.JSONFormatter{})
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")

	cmd.AddCommand(
		newCreateCmd(),
		newListCmd(),
		newDescribeCmd(),
		newDeleteCmd(),
		newHealthCmd(),
		newTargetHelpCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer func() {
		if closeApp != nil {
			closeApp()
		}
	}()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// initService wires the deploy service from the environment once.
func initService(ctx context.Context) error {
	if deploySvc != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	deploySvc = a.Deploy
	closeApp = a.Close
	return nil
}

func addTargetFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "target", "t", "", "Target device, e.g. jetson://192.168.2.100")
	_ = cmd.MarkFlagRequired("target")
}

// versionFlag returns nil when --version was not given.
func versionFlag(cmd *cobra.Command, v int) (*int, error) {
	if !cmd.Flags().Changed("version") {
		return nil, nil
	}
	if v < 1 {
		return nil, fmt.Errorf("--version must be at least 1")
	}
	return &v, nil
}
