package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

const cleanupTimeout = 30 * time.Second

type TransportOptions struct {
	// MaxVersionAttempts bounds the exclusive-create retries per transfer.
	MaxVersionAttempts int
	// CopyConcurrency is the number of files copied at once.
	CopyConcurrency int
	// VerifyDigest re-reads every remote file and compares its sha256.
	VerifyDigest bool
}

func DefaultTransportOptions() TransportOptions {
	return TransportOptions{MaxVersionAttempts: 5, CopyConcurrency: 4}
}

// TransportManager moves a bundle into a fresh version slot on a target.
type TransportManager struct {
	opts    TransportOptions
	metrics ports.DeploymentMetrics
}

func NewTransportManager(opts TransportOptions, metrics ports.DeploymentMetrics) *TransportManager {
	if opts.MaxVersionAttempts < 1 {
		opts.MaxVersionAttempts = 1
	}
	if opts.CopyConcurrency < 1 {
		opts.CopyConcurrency = 1
	}
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	return &TransportManager{opts: opts, metrics: metrics}
}

// Transfer copies bundle to target as a new version of name. The returned
// deployment is Active on success and Failed otherwise; it is non-nil
// whenever the bundle was usable. The connection is closed before return.
func (m *TransportManager) Transfer(ctx context.Context, bundle *Bundle, target ports.Target, name string) (*domain.Deployment, error) {
	if bundle == nil || bundle.Deployment == nil || bundle.Manifest == nil {
		return nil, domain.ErrEmptyBundle
	}
	dep := bundle.Deployment
	if dep.Name != name {
		return nil, fmt.Errorf("%w: bundle was built for %q, not %q", domain.ErrInvalidDeploymentName, dep.Name, name)
	}

	desc := target.Descriptor()
	logger := log.WithFields(log.Fields{
		"op_id":      uuid.NewString(),
		"deployment": name,
		"target":     desc.String(),
	})
	defer func() { m.metrics.ObserveDeployment(dep.Status) }()

	remote, err := target.Connect(ctx)
	if err != nil {
		dep.MarkFailed(err.Error())
		logger.WithError(err).Error("connect to target failed")
		return dep, fmt.Errorf("connect %s: %w", desc.Host, err)
	}
	defer func() {
		if cerr := remote.Close(); cerr != nil {
			logger.WithError(cerr).Warn("failed to close target connection")
		}
	}()

	if err := remote.MkdirAll(ctx, desc.BaseDir); err != nil {
		dep.MarkFailed(err.Error())
		return dep, fmt.Errorf("prepare base dir %s: %w", desc.BaseDir, err)
	}

	version, err := m.allocateVersion(ctx, remote, desc.BaseDir, name, logger)
	if err != nil {
		dep.MarkFailed(err.Error())
		logger.WithError(err).Error("version allocation failed")
		return dep, err
	}

	dep.Assign(desc.Host, desc.BaseDir, version)
	remoteDir := path.Join(desc.BaseDir, domain.DirName(name, version))
	logger = logger.WithFields(log.Fields{"version": version, "remote_dir": remoteDir})

	if err := dep.MarkTransferring(); err != nil {
		return dep, m.fail(ctx, target, remote, dep, remoteDir, err, logger)
	}

	logger.WithField("files", len(bundle.Manifest.Files)).Info("transferring bundle")

	if err := m.copyFiles(ctx, remote, bundle, remoteDir); err != nil {
		return dep, m.fail(ctx, target, remote, dep, remoteDir, err, logger)
	}
	if err := m.verify(ctx, remote, bundle.Manifest.Files, remoteDir); err != nil {
		return dep, m.fail(ctx, target, remote, dep, remoteDir, err, logger)
	}
	if err := m.writeManifest(ctx, remote, bundle.Manifest, remoteDir); err != nil {
		return dep, m.fail(ctx, target, remote, dep, remoteDir, err, logger)
	}

	if err := dep.MarkActive(); err != nil {
		return dep, m.fail(ctx, target, remote, dep, remoteDir, err, logger)
	}
	m.metrics.ObserveTransferBytes(bundle.Manifest.TotalSize())
	logger.Info("deployment active")
	return dep, nil
}

// allocateVersion claims <name>_v<max+1> with an exclusive mkdir. Losing a
// race to another writer means the slot is taken; the listing is redone.
func (m *TransportManager) allocateVersion(ctx context.Context, remote ports.RemoteFS, baseDir, name string, logger *log.Entry) (int, error) {
	for attempt := 1; attempt <= m.opts.MaxVersionAttempts; attempt++ {
		next, err := nextVersion(ctx, remote, baseDir, name)
		if err != nil {
			return 0, err
		}

		dir := path.Join(baseDir, domain.DirName(name, next))
		err = remote.Mkdir(ctx, dir)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return 0, fmt.Errorf("create %s: %w", dir, err)
		}

		m.metrics.ObserveVersionRetry()
		logger.WithFields(log.Fields{"attempt": attempt, "version": next}).Debug("version slot taken, retrying")
	}
	return 0, fmt.Errorf("%w: %q after %d attempts", domain.ErrVersionAllocationExhausted, name, m.opts.MaxVersionAttempts)
}

// nextVersion returns one past the highest existing version of name, or 1.
// Plain files named like a version count too, since they block the mkdir.
func nextVersion(ctx context.Context, remote ports.RemoteFS, baseDir, name string) (int, error) {
	entries, err := remote.ReadDir(ctx, baseDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("list %s: %w", baseDir, err)
	}
	highest := 0
	for _, e := range entries {
		n, v, ok := domain.ParseDirName(e.Name())
		if ok && n == name && v > highest {
			highest = v
		}
	}
	return highest + 1, nil
}

func (m *TransportManager) copyFiles(ctx context.Context, remote ports.RemoteFS, bundle *Bundle, remoteDir string) error {
	// Parents first so the parallel copies never race on mkdir.
	for _, dir := range parentDirs(bundle.Manifest.Files) {
		if err := remote.MkdirAll(ctx, path.Join(remoteDir, dir)); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.CopyConcurrency)

	for _, entry := range bundle.Manifest.Files {
		g.Go(func() error {
			return copyFile(gctx, remote, bundle, entry, remoteDir)
		})
	}
	return g.Wait()
}

func copyFile(ctx context.Context, remote ports.RemoteFS, bundle *Bundle, entry domain.ManifestEntry, remoteDir string) error {
	src, err := bundle.Open(entry.RelPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", domain.ErrIOFailure, entry.RelPath, err)
	}
	defer src.Close()

	if _, err := remote.WriteFile(ctx, path.Join(remoteDir, entry.RelPath), src, fileMode(entry.Role)); err != nil {
		return fmt.Errorf("copy %s: %w", entry.RelPath, err)
	}
	return nil
}

// verify runs after every copy finished. Missing files and size mismatches
// are integrity errors; anything else is a transport error.
func (m *TransportManager) verify(ctx context.Context, remote ports.RemoteFS, files []domain.ManifestEntry, remoteDir string) error {
	var mismatches []string
	for _, entry := range files {
		remotePath := path.Join(remoteDir, entry.RelPath)
		info, err := remote.Stat(ctx, remotePath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				mismatches = append(mismatches, entry.RelPath+": missing")
				continue
			}
			return fmt.Errorf("stat %s: %w", entry.RelPath, err)
		}
		if info.Size() != entry.Size {
			mismatches = append(mismatches, fmt.Sprintf("%s: %d bytes, expected %d", entry.RelPath, info.Size(), entry.Size))
			continue
		}
		if m.opts.VerifyDigest && entry.Digest != "" {
			got, err := remoteDigest(ctx, remote, remotePath)
			if err != nil {
				return fmt.Errorf("digest %s: %w", entry.RelPath, err)
			}
			if got.String() != entry.Digest {
				mismatches = append(mismatches, fmt.Sprintf("%s: digest %s, expected %s", entry.RelPath, got, entry.Digest))
			}
		}
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrTransferIntegrity, strings.Join(mismatches, "; "))
	}
	return nil
}

func remoteDigest(ctx context.Context, remote ports.RemoteFS, name string) (digest.Digest, error) {
	rc, err := remote.Open(ctx, name)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return digest.Canonical.FromReader(rc)
}

// writeManifest goes last: a version directory without a manifest never
// finished its transfer.
func (m *TransportManager) writeManifest(ctx context.Context, remote ports.RemoteFS, manifest *domain.FileManifest, remoteDir string) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode manifest: %v", domain.ErrIOFailure, err)
	}
	name := path.Join(remoteDir, domain.ManifestFileName)
	n, err := remote.WriteFile(ctx, name, bytes.NewReader(data), 0o644)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if n != int64(len(data)) {
		return fmt.Errorf("%w: manifest written with %d of %d bytes", domain.ErrTransferIntegrity, n, len(data))
	}
	return nil
}

// fail marks dep Failed and removes the partial remote directory. Cleanup
// runs on a fresh deadline so a cancelled caller still gets it; its failure
// is attached to cause, never substituted for it. A session torn down by the
// cancellation is replaced by a new one for the cleanup.
func (m *TransportManager) fail(ctx context.Context, target ports.Target, remote ports.RemoteFS, dep *domain.Deployment, remoteDir string, cause error, logger *log.Entry) error {
	dep.MarkFailed(cause.Error())
	logger.WithError(cause).Error("transfer failed, removing partial deployment")

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	err := remote.RemoveAll(cleanupCtx, remoteDir)
	if errors.Is(err, ports.ErrSessionClosed) {
		logger.Debug("session closed, reconnecting for cleanup")
		err = removeOnNewSession(cleanupCtx, target, remoteDir)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.WithError(err).Warn("best-effort cleanup of remote directory failed")
		dep.AddWarning(fmt.Sprintf("cleanup of %s failed: %v", remoteDir, err))
		return domain.WithCleanupWarning(cause, err)
	}
	return cause
}

func removeOnNewSession(ctx context.Context, target ports.Target, dir string) error {
	remote, err := target.Connect(ctx)
	if err != nil {
		return fmt.Errorf("reconnect for cleanup: %w", err)
	}
	defer remote.Close()
	return remote.RemoveAll(ctx, dir)
}

func parentDirs(files []domain.ManifestEntry) []string {
	seen := make(map[string]struct{})
	for _, f := range files {
		if dir := path.Dir(f.RelPath); dir != "." {
			seen[dir] = struct{}{}
		}
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}
