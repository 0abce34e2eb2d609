package commands

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-deploy-service/internal/adapters/secondary/filestore"
	"edge-deploy-service/internal/core/services"
	"edge-deploy-service/internal/testutil"
)

const memTarget = "mem://device.local"

// useTestService points the commands at an in-memory device.
func useTestService(t *testing.T) afero.Fs {
	t.Helper()
	local := afero.NewMemMapFs()
	require.NoError(t, local.MkdirAll("/staging", 0o755))
	require.NoError(t, afero.WriteFile(local, "/models/faces/model.pkl", []byte("weights"), 0o644))
	require.NoError(t, afero.WriteFile(local, "/work/client.py", []byte("print(1)"), 0o644))

	target, remote := testutil.NewMemTarget("/deployments")
	targets := services.NewTargetRegistry()
	targets.Register("mem", target.Factory())

	deploySvc = services.NewDeployService(
		targets,
		services.NewArtifactResolver(local, nil, "/staging", filestore.New(local)),
		services.NewDiscoverer(local, nil),
		services.NewPackageBuilder(local, "/staging"),
		services.NewTransportManager(services.DefaultTransportOptions(), nil),
		services.NewDeploymentRegistry(),
		[]string{"/work"},
	)
	t.Cleanup(func() { deploySvc = nil })
	return remote
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCreateListDescribeDelete(t *testing.T) {
	remote := useTestService(t)

	out, err := run(t, "create", "-t", memTarget, "-m", "file:///models/faces", "--name", "faces")
	require.NoError(t, err)
	assert.Contains(t, out, "Deployment faces version 1 is Active")
	assert.Contains(t, out, "Files: 2")

	_, err = run(t, "create", "-t", memTarget, "-m", "file:///models/faces", "--name", "faces")
	require.NoError(t, err)

	out, err = run(t, "list", "-t", memTarget)
	require.NoError(t, err)
	assert.Contains(t, out, "faces_v1")
	assert.Contains(t, out, "faces_v2")

	out, err = run(t, "describe", "-t", memTarget, "--name", "faces", "--version", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:  1")
	assert.Contains(t, out, "models/model.pkl")
	assert.Contains(t, out, "scripts/client.py")

	out, err = run(t, "delete", "-t", memTarget, "--name", "faces")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted faces_v2")

	ok, err := afero.Exists(remote, "/deployments/faces_v2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListEmpty(t *testing.T) {
	useTestService(t)

	out, err := run(t, "list", "-t", memTarget)
	require.NoError(t, err)
	assert.Contains(t, out, "No deployments")
}

func TestDescribeRejectsBadVersion(t *testing.T) {
	useTestService(t)

	_, err := run(t, "describe", "-t", memTarget, "--name", "faces", "--version", "0")
	assert.Error(t, err)
}

func TestCreateRequiresFlags(t *testing.T) {
	useTestService(t)

	_, err := run(t, "create", "-t", memTarget)
	assert.Error(t, err)
}

func TestTargetHelp(t *testing.T) {
	out, err := run(t, "target-help")
	require.NoError(t, err)
	assert.Contains(t, out, "jetson://simple_jetson.yaml")
	assert.Contains(t, out, "manifest.json")
}
