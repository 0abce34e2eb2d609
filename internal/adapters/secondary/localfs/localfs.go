// Package localfs implements the file:// target: a deployment base
// directory on a filesystem the service can reach directly, such as a
// mounted device volume.
package localfs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sync"

	"github.com/spf13/afero"

	"edge-deploy-service/internal/config"
	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

// FS adapts an afero filesystem to ports.RemoteFS.
type FS struct {
	fs afero.Fs
	// MemMapFs checks and inserts under separate locks, so exclusive
	// creation is serialized here.
	mkdirMu sync.Mutex
}

var _ ports.RemoteFS = (*FS)(nil)

func New(fsys afero.Fs) *FS {
	return &FS{fs: fsys}
}

func (l *FS) ReadDir(ctx context.Context, dir string) ([]fs.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return afero.ReadDir(l.fs, dir)
}

func (l *FS) Mkdir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mkdirMu.Lock()
	defer l.mkdirMu.Unlock()

	if _, err := l.fs.Stat(dir); err == nil {
		return &fs.PathError{Op: "mkdir", Path: dir, Err: fs.ErrExist}
	}
	return l.fs.Mkdir(dir, 0o755)
}

func (l *FS) MkdirAll(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.fs.MkdirAll(dir, 0o755)
}

func (l *FS) WriteFile(ctx context.Context, name string, src io.Reader, perm fs.FileMode) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := l.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: src})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	return n, l.fs.Chmod(name, perm)
}

func (l *FS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.fs.Open(name)
}

func (l *FS) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.fs.Stat(name)
}

func (l *FS) RemoveAll(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.fs.RemoveAll(p)
}

func (l *FS) Close() error { return nil }

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Target is a base directory on a local filesystem.
type Target struct {
	desc domain.Target
	fs   *FS
}

var _ ports.Target = (*Target)(nil)

func NewTarget(desc domain.Target, fsys *FS) *Target {
	return &Target{desc: desc, fs: fsys}
}

func (t *Target) Descriptor() domain.Target { return t.desc }

func (t *Target) Connect(ctx context.Context) (ports.RemoteFS, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.fs, nil
}

// NewFactory returns a factory for file:///<base dir> identifiers. Every
// target it builds shares fsys.
func NewFactory(fsys afero.Fs, defaults config.TargetConfig) ports.TargetFactory {
	shared := New(fsys)
	return func(ep ports.Endpoint) (ports.Target, error) {
		if ep.Host != "" && ep.Host != "localhost" {
			return nil, fmt.Errorf("%w: file targets must be local, got host %q", domain.ErrInvalidTarget, ep.Host)
		}
		base := path.Clean(ep.Path)
		if !path.IsAbs(base) {
			return nil, fmt.Errorf("%w: base directory %q must be absolute", domain.ErrInvalidTarget, ep.Path)
		}
		desc := domain.Target{
			Scheme:  "file",
			Host:    "localhost",
			User:    defaults.DefaultUser,
			BaseDir: base,
			Timeout: defaults.Timeout,
			Retries: defaults.MaxRetries,
		}
		if err := desc.Validate(); err != nil {
			return nil, err
		}
		return NewTarget(desc, shared), nil
	}
}
