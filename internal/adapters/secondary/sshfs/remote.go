package sshfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sync/atomic"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	ports "edge-deploy-service/internal/core/ports/output"
)

// remoteFS is an SFTP session on top of one SSH connection. SFTP calls do
// not take a context, so every call arms a hook that tears the connection
// down when its context ends. After that the session only returns
// ports.ErrSessionClosed.
type remoteFS struct {
	ssh    *ssh.Client
	sftp   *sftp.Client
	closed atomic.Bool
}

var _ ports.RemoteFS = (*remoteFS)(nil)

func newRemoteFS(client *ssh.Client) (*remoteFS, error) {
	sc, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("start sftp subsystem: %w", err)
	}
	return &remoteFS{ssh: client, sftp: sc}, nil
}

// call is one in-flight SFTP operation bound to a context.
type call struct {
	r    *remoteFS
	ctx  context.Context
	stop func() bool
}

func (r *remoteFS) begin(ctx context.Context) (*call, error) {
	if r.closed.Load() {
		return nil, ports.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &call{r: r, ctx: ctx, stop: context.AfterFunc(ctx, r.abort)}, nil
}

// mapErr prefers the context error, since a cancelled call surfaces as a
// lost connection from pkg/sftp.
func (c *call) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := c.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if c.r.closed.Load() {
		return fmt.Errorf("%w: %v", ports.ErrSessionClosed, err)
	}
	return err
}

func (c *call) end(err error) error {
	c.stop()
	return c.mapErr(err)
}

func (r *remoteFS) abort() {
	if r.closed.CompareAndSwap(false, true) {
		_ = r.ssh.Close()
	}
}

func (r *remoteFS) ReadDir(ctx context.Context, dir string) ([]fs.FileInfo, error) {
	c, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := r.sftp.ReadDir(dir)
	if err := c.end(normalize(err)); err != nil {
		return nil, err
	}
	return entries, nil
}

// Mkdir reports fs.ErrExist when the directory could not be created because
// something already occupies the path. SFTP servers disagree on the status
// code for that case, so the path is probed after a failure.
func (r *remoteFS) Mkdir(ctx context.Context, dir string) error {
	c, err := r.begin(ctx)
	if err != nil {
		return err
	}
	err = r.sftp.Mkdir(dir)
	if err != nil {
		if _, statErr := r.sftp.Lstat(dir); statErr == nil {
			err = fmt.Errorf("mkdir %s: %w", dir, fs.ErrExist)
		} else {
			err = normalize(err)
		}
	}
	return c.end(err)
}

func (r *remoteFS) MkdirAll(ctx context.Context, dir string) error {
	c, err := r.begin(ctx)
	if err != nil {
		return err
	}
	return c.end(normalize(r.sftp.MkdirAll(dir)))
}

func (r *remoteFS) WriteFile(ctx context.Context, name string, src io.Reader, perm fs.FileMode) (int64, error) {
	c, err := r.begin(ctx)
	if err != nil {
		return 0, err
	}
	f, err := r.sftp.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return 0, c.end(normalize(err))
	}

	n, err := f.ReadFrom(&ctxReader{ctx: ctx, r: src})
	if err == nil {
		err = f.Chmod(perm)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, c.end(normalize(err))
}

// Open keeps the abort hook armed until the returned file is closed.
func (r *remoteFS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	c, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	f, err := r.sftp.Open(name)
	if err != nil {
		return nil, c.end(normalize(err))
	}
	return &remoteFile{f: f, call: c}, nil
}

func (r *remoteFS) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	c, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	info, err := r.sftp.Stat(name)
	if err := c.end(normalize(err)); err != nil {
		return nil, err
	}
	return info, nil
}

// RemoveAll walks the tree depth first. A missing root is not an error.
func (r *remoteFS) RemoveAll(ctx context.Context, root string) error {
	c, err := r.begin(ctx)
	if err != nil {
		return err
	}
	return c.end(r.removeAll(ctx, root))
}

func (r *remoteFS) removeAll(ctx context.Context, root string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := r.sftp.Lstat(root)
	if err != nil {
		if errors.Is(normalize(err), fs.ErrNotExist) {
			return nil
		}
		return normalize(err)
	}
	if !info.IsDir() {
		return normalize(r.sftp.Remove(root))
	}

	entries, err := r.sftp.ReadDir(root)
	if err != nil {
		return normalize(err)
	}
	for _, e := range entries {
		if err := r.removeAll(ctx, path.Join(root, e.Name())); err != nil {
			return err
		}
	}
	return normalize(r.sftp.RemoveDirectory(root))
}

// Close ends the session. A session already torn down by a cancelled call
// closes cleanly.
func (r *remoteFS) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	serr := r.sftp.Close()
	cerr := r.ssh.Close()
	if serr != nil {
		return serr
	}
	return cerr
}

// normalize maps SFTP status codes onto io/fs sentinels.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	var status *sftp.StatusError
	if errors.As(err, &status) {
		switch status.FxCode() {
		case sftp.ErrSSHFxNoSuchFile:
			return fmt.Errorf("%v: %w", err, fs.ErrNotExist)
		case sftp.ErrSSHFxPermissionDenied:
			return fmt.Errorf("%v: %w", err, fs.ErrPermission)
		}
	}
	return err
}

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

// remoteFile hides sftp.File's WriterTo so every read goes through the
// error mapping of its call.
type remoteFile struct {
	f    *sftp.File
	call *call
}

func (rf *remoteFile) Read(p []byte) (int, error) {
	n, err := rf.f.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = rf.call.mapErr(err)
	}
	return n, err
}

func (rf *remoteFile) Close() error {
	return rf.call.end(rf.f.Close())
}
