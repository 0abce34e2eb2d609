package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

const targetHelp = `Edge file transfer targets

Models and their runtime files are copied to the device; nothing is started.

Target formats:
  jetson://192.168.2.100              Device address, default user and key
  jetson://user@192.168.2.100:2222    Explicit user and port
  jetson://simple_jetson.yaml         Target file (device_ip, username,
                                      ssh_key_path, password,
                                      deployment_base_path, timeout,
                                      max_retries)
  ssh://host/opt/deployments          Any SSH host, base directory in the path
  file:///mnt/device/deployments      Directory reachable from this machine

Files transferred:
  models/     model artifact files, face_model_v2.pkl, label_encoder.pkl,
              random_forest_model.pkl
  data/       face_features.pkl, face_database.json, model_params.json
  scripts/    inference_server_rtsp.py, model_server.py, client.py
  docker/     Dockerfile.inference-server, Dockerfile.model-server,
              model_server_requirements.txt

Each create lands in <base>/<name>_v<N>/ with a manifest.json written last.
Prediction is not supported; run the service on the device yourself.
`

func newTargetHelpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "target-help",
		Short: "Describe the supported target formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), targetHelp)
			return nil
		},
	}
}
