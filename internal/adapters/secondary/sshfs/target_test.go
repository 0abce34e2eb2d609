package sshfs

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-deploy-service/internal/core/domain"
)

// closedAddr returns a local address nothing listens on.
func closedAddr(t *testing.T) (string, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())
	return addr.IP.String(), addr.Port
}

func TestConnect_DialFailureIsNotAuthFailure(t *testing.T) {
	host, port := closedAddr(t)
	target := &sshTarget{
		desc: domain.Target{
			Scheme:   "ssh",
			Host:     host,
			Port:     port,
			User:     "tester",
			Password: "pw",
			BaseDir:  "/tmp",
			Timeout:  time.Second,
		},
		hostKeys: HostKeyPolicy{Insecure: true},
	}

	_, err := target.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrAuthenticationFailed))
	assert.Contains(t, err.Error(), "after 1 attempts")
}

func TestConnect_CancelledDuringBackoff(t *testing.T) {
	host, port := closedAddr(t)
	target := &sshTarget{
		desc: domain.Target{
			Host:     host,
			Port:     port,
			User:     "tester",
			Password: "pw",
			BaseDir:  "/tmp",
			Timeout:  time.Second,
			Retries:  5,
		},
		hostKeys: HostKeyPolicy{Insecure: true},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := target.Connect(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), retryBackoff)
}

func TestConnect_NoCredentials(t *testing.T) {
	target := &sshTarget{
		desc:     domain.Target{Host: "10.0.0.1", Port: 22, BaseDir: "/tmp", Timeout: time.Second},
		hostKeys: HostKeyPolicy{Insecure: true},
	}

	_, err := target.Connect(context.Background())
	assert.True(t, errors.Is(err, domain.ErrAuthenticationFailed))
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, normalize(nil))

	notFound := &sftp.StatusError{Code: uint32(sftp.ErrSSHFxNoSuchFile)}
	assert.True(t, errors.Is(normalize(notFound), fs.ErrNotExist))

	denied := &sftp.StatusError{Code: uint32(sftp.ErrSSHFxPermissionDenied)}
	assert.True(t, errors.Is(normalize(denied), fs.ErrPermission))

	other := errors.New("connection lost")
	assert.Equal(t, other, normalize(other))
}
