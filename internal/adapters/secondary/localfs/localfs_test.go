package localfs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-deploy-service/internal/config"
	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

func TestMkdir_IsExclusive(t *testing.T) {
	l := New(afero.NewMemMapFs())
	ctx := context.Background()
	require.NoError(t, l.MkdirAll(ctx, "/base"))

	require.NoError(t, l.Mkdir(ctx, "/base/faces_v1"))
	err := l.Mkdir(ctx, "/base/faces_v1")
	assert.True(t, errors.Is(err, fs.ErrExist))
}

func TestWriteFile_RoundTrip(t *testing.T) {
	mem := afero.NewMemMapFs()
	l := New(mem)
	ctx := context.Background()
	require.NoError(t, l.MkdirAll(ctx, "/base/scripts"))

	n, err := l.WriteFile(ctx, "/base/scripts/run.py", strings.NewReader("print(1)"), 0o755)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	info, err := l.Stat(ctx, "/base/scripts/run.py")
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o755), info.Mode().Perm())

	rc, err := l.Open(ctx, "/base/scripts/run.py")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "print(1)", string(data))

	entries, err := l.ReadDir(ctx, "/base")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "scripts", entries[0].Name())

	require.NoError(t, l.RemoveAll(ctx, "/base/scripts"))
	_, err = l.Stat(ctx, "/base/scripts/run.py")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestCancelledContext(t *testing.T) {
	l := New(afero.NewMemMapFs())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Mkdir(ctx, "/x"), context.Canceled)
	_, err := l.WriteFile(ctx, "/x", strings.NewReader("a"), 0o644)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = l.ReadDir(ctx, "/")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFactory(t *testing.T) {
	defaults := config.TargetConfig{DefaultUser: "edge", Timeout: time.Minute, MaxRetries: 2}
	factory := NewFactory(afero.NewMemMapFs(), defaults)

	target, err := factory(ports.Endpoint{Raw: "file:///mnt/jetson/deployments", Scheme: "file", Path: "/mnt/jetson/deployments"})
	require.NoError(t, err)
	desc := target.Descriptor()
	assert.Equal(t, "localhost", desc.Host)
	assert.Equal(t, "/mnt/jetson/deployments", desc.BaseDir)
	assert.Equal(t, "edge", desc.User)

	remote, err := target.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, remote.Close())

	_, err = factory(ports.Endpoint{Raw: "file://nas/deployments", Scheme: "file", Host: "nas", Path: "/deployments"})
	assert.True(t, errors.Is(err, domain.ErrInvalidTarget))

	_, err = factory(ports.Endpoint{Raw: "file://", Scheme: "file"})
	assert.True(t, errors.Is(err, domain.ErrInvalidTarget))
}
