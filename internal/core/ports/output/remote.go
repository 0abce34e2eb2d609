package ports

import (
	"context"
	"errors"
	"io"
	"io/fs"

	"edge-deploy-service/internal/core/domain"
)

// ErrSessionClosed is returned by a RemoteFS whose session was torn down,
// typically because a context ended while a call was in flight. A new
// session from Target.Connect is needed to keep working with the target.
var ErrSessionClosed = errors.New("remote session closed")

// RemoteFS is an open, authenticated session against a target's
// filesystem. Paths are slash separated and absolute on the remote side.
// Every method honours ctx cancellation.
type RemoteFS interface {
	// ReadDir lists dir. A missing dir yields an error matching fs.ErrNotExist.
	ReadDir(ctx context.Context, dir string) ([]fs.FileInfo, error)

	// Mkdir creates exactly one directory and fails with an error matching
	// fs.ErrExist when it is already there.
	Mkdir(ctx context.Context, dir string) error

	// MkdirAll creates dir and any missing parents.
	MkdirAll(ctx context.Context, dir string) error

	// WriteFile creates or truncates name and copies r into it.
	WriteFile(ctx context.Context, name string, r io.Reader, perm fs.FileMode) (int64, error)

	// Open opens name for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	Stat(ctx context.Context, name string) (fs.FileInfo, error)

	// RemoveAll removes path and everything below it.
	RemoveAll(ctx context.Context, path string) error

	Close() error
}

// Target is the capability set every registered scheme provides.
type Target interface {
	// Descriptor returns the resolved target without opening a connection.
	Descriptor() domain.Target

	// Connect opens a new authenticated session. Credential problems are
	// reported with domain.ErrAuthenticationFailed.
	Connect(ctx context.Context) (RemoteFS, error)
}

// Endpoint is a parsed target identifier, scheme://[user@]host[:port][/path].
type Endpoint struct {
	Raw    string
	Scheme string
	Host   string
	Port   int
	User   string
	Path   string
}

// TargetFactory builds a Target for one endpoint. Factories are registered
// per scheme once at startup.
type TargetFactory func(ep Endpoint) (Target, error)
