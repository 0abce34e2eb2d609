package testutil

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"edge-deploy-service/internal/adapters/secondary/localfs"
	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

// FaultyRemote wraps a RemoteFS and injects failures. Zero values inject
// nothing.
type FaultyRemote struct {
	ports.RemoteFS

	// FailWriteAt makes the Nth WriteFile call (1-based) fail with WriteErr.
	FailWriteAt int
	WriteErr    error
	// TruncateSuffix drops the last byte of files whose name ends with it.
	TruncateSuffix string
	RemoveAllErr   error
	// RemoveAllFailures limits RemoveAllErr to the first N calls; 0 fails all.
	RemoveAllFailures int
	// BeforeMkdir runs before every exclusive Mkdir.
	BeforeMkdir func(dir string)
	// CancelOnWrite is called on the first WriteFile.
	CancelOnWrite context.CancelFunc

	mu      sync.Mutex
	writes  int
	removes int
}

func (f *FaultyRemote) Mkdir(ctx context.Context, dir string) error {
	if f.BeforeMkdir != nil {
		f.BeforeMkdir(dir)
	}
	return f.RemoteFS.Mkdir(ctx, dir)
}

func (f *FaultyRemote) WriteFile(ctx context.Context, name string, r io.Reader, perm fs.FileMode) (int64, error) {
	f.mu.Lock()
	f.writes++
	n := f.writes
	cancel := f.CancelOnWrite
	f.CancelOnWrite = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if f.FailWriteAt > 0 && n == f.FailWriteAt {
		return 0, f.WriteErr
	}
	if f.TruncateSuffix != "" && strings.HasSuffix(name, f.TruncateSuffix) {
		data, err := io.ReadAll(r)
		if err != nil {
			return 0, err
		}
		if len(data) > 0 {
			data = data[:len(data)-1]
		}
		return f.RemoteFS.WriteFile(ctx, name, bytes.NewReader(data), perm)
	}
	return f.RemoteFS.WriteFile(ctx, name, r, perm)
}

func (f *FaultyRemote) RemoveAll(ctx context.Context, path string) error {
	f.mu.Lock()
	f.removes++
	n := f.removes
	f.mu.Unlock()

	if f.RemoveAllErr != nil && (f.RemoveAllFailures == 0 || n <= f.RemoveAllFailures) {
		return f.RemoveAllErr
	}
	return f.RemoteFS.RemoveAll(ctx, path)
}

// Writes returns the number of WriteFile calls seen so far.
func (f *FaultyRemote) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// Target is an in-process ports.Target. It counts connections and closes.
type Target struct {
	Desc       domain.Target
	FS         ports.RemoteFS
	ConnectErr error

	connects atomic.Int32
	closes   atomic.Int32
}

var _ ports.Target = (*Target)(nil)

// NewMemTarget returns a target whose remote side is an in-memory
// filesystem, also returned for inspection.
func NewMemTarget(baseDir string) (*Target, afero.Fs) {
	mem := afero.NewMemMapFs()
	return &Target{
		Desc: domain.Target{
			Scheme:  "mem",
			Host:    "device.local",
			Port:    22,
			User:    "tester",
			BaseDir: baseDir,
			Timeout: time.Minute,
		},
		FS: localfs.New(mem),
	}, mem
}

func (t *Target) Descriptor() domain.Target { return t.Desc }

func (t *Target) Connect(ctx context.Context) (ports.RemoteFS, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.ConnectErr != nil {
		return nil, t.ConnectErr
	}
	t.connects.Add(1)
	return &session{RemoteFS: t.FS, closes: &t.closes}, nil
}

// Connects is the number of successful Connect calls.
func (t *Target) Connects() int { return int(t.connects.Load()) }

// Closes is the number of sessions closed.
func (t *Target) Closes() int { return int(t.closes.Load()) }

// Factory returns a TargetFactory that always yields t.
func (t *Target) Factory() ports.TargetFactory {
	return func(ports.Endpoint) (ports.Target, error) { return t, nil }
}

type session struct {
	ports.RemoteFS
	closes *atomic.Int32
}

func (s *session) Close() error {
	s.closes.Add(1)
	return nil
}
