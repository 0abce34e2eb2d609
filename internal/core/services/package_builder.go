package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"github.com/opencontainers/go-digest"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"edge-deploy-service/internal/core/domain"
)

// Bundle is a locally assembled deployment directory ready for transfer.
type Bundle struct {
	Dir        string
	Manifest   *domain.FileManifest
	Deployment *domain.Deployment

	fs   afero.Fs
	once sync.Once
	err  error
}

// Open opens a bundle file by its manifest path.
func (b *Bundle) Open(relPath string) (afero.File, error) {
	return b.fs.Open(b.LocalPath(relPath))
}

// LocalPath maps a manifest path onto the local bundle directory.
func (b *Bundle) LocalPath(relPath string) string {
	return filepath.Join(b.Dir, filepath.FromSlash(relPath))
}

// Cleanup removes the bundle directory. It is safe to call more than once.
func (b *Bundle) Cleanup() error {
	if b == nil {
		return nil
	}
	b.once.Do(func() {
		b.err = b.fs.RemoveAll(b.Dir)
	})
	return b.err
}

type PackageBuilder struct {
	fs          afero.Fs
	stagingRoot string
}

func NewPackageBuilder(fs afero.Fs, stagingRoot string) *PackageBuilder {
	return &PackageBuilder{fs: fs, stagingRoot: stagingRoot}
}

// Build copies every manifest entry into a new bundle directory and writes
// the manifest descriptor next to them. The input manifest is not modified;
// the bundle carries a copy with measured sizes and digests. A failed build
// leaves nothing behind.
func (b *PackageBuilder) Build(ctx context.Context, name string, manifest *domain.FileManifest) (*Bundle, error) {
	if err := domain.ValidateDeploymentName(name); err != nil {
		return nil, err
	}
	if manifest == nil || len(manifest.Files) == 0 {
		return nil, domain.ErrEmptyBundle
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	dir, err := afero.TempDir(b.fs, b.stagingRoot, "edge-deploy-bundle-")
	if err != nil {
		return nil, fmt.Errorf("%w: create bundle dir: %v", domain.ErrIOFailure, err)
	}

	logger := log.WithFields(log.Fields{
		"deployment": name,
		"bundle":     dir,
	})

	built, err := b.populate(ctx, dir, name, manifest)
	if err != nil {
		if rmErr := b.fs.RemoveAll(dir); rmErr != nil {
			logger.WithError(rmErr).Warn("failed to remove partial bundle")
		}
		return nil, err
	}

	deployment, err := domain.NewDeployment(name, built)
	if err != nil {
		_ = b.fs.RemoveAll(dir)
		return nil, err
	}

	logger.WithFields(log.Fields{
		"files": len(built.Files),
		"size":  units.HumanSize(float64(built.TotalSize())),
	}).Info("bundle built")

	return &Bundle{Dir: dir, Manifest: built, Deployment: deployment, fs: b.fs}, nil
}

func (b *PackageBuilder) populate(ctx context.Context, dir, name string, manifest *domain.FileManifest) (*domain.FileManifest, error) {
	built := &domain.FileManifest{
		Name:        name,
		ArtifactURI: manifest.ArtifactURI,
		CreatedAt:   manifest.CreatedAt,
		Files:       make([]domain.ManifestEntry, 0, len(manifest.Files)),
	}
	if built.CreatedAt.IsZero() {
		built.CreatedAt = time.Now().UTC()
	}

	for _, entry := range manifest.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		copied, err := b.copyEntry(dir, entry)
		if err != nil {
			return nil, err
		}
		built.Files = append(built.Files, copied)
	}

	if err := b.writeDescriptor(dir, built); err != nil {
		return nil, err
	}
	return built, nil
}

func (b *PackageBuilder) copyEntry(dir string, entry domain.ManifestEntry) (domain.ManifestEntry, error) {
	dst := filepath.Join(dir, filepath.FromSlash(entry.RelPath))
	if err := b.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return entry, fmt.Errorf("%w: mkdir for %s: %v", domain.ErrIOFailure, entry.RelPath, err)
	}

	src, err := b.fs.Open(entry.SourcePath)
	if err != nil {
		return entry, fmt.Errorf("%w: open %s: %v", domain.ErrIOFailure, entry.SourcePath, err)
	}
	defer src.Close()

	out, err := b.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode(entry.Role))
	if err != nil {
		return entry, fmt.Errorf("%w: create %s: %v", domain.ErrIOFailure, entry.RelPath, err)
	}

	digester := digest.Canonical.Digester()
	n, err := io.Copy(io.MultiWriter(out, digester.Hash()), src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return entry, fmt.Errorf("%w: copy %s: %v", domain.ErrIOFailure, entry.RelPath, err)
	}
	if err := b.fs.Chmod(dst, fileMode(entry.Role)); err != nil {
		return entry, fmt.Errorf("%w: chmod %s: %v", domain.ErrIOFailure, entry.RelPath, err)
	}

	return domain.ManifestEntry{
		RelPath:    entry.RelPath,
		Size:       n,
		Role:       entry.Role,
		Digest:     digester.Digest().String(),
		SourcePath: dst,
	}, nil
}

func (b *PackageBuilder) writeDescriptor(dir string, manifest *domain.FileManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode manifest: %v", domain.ErrIOFailure, err)
	}
	if err := afero.WriteFile(b.fs, filepath.Join(dir, domain.ManifestFileName), data, 0o644); err != nil {
		return fmt.Errorf("%w: write manifest: %v", domain.ErrIOFailure, err)
	}
	return nil
}

// fileMode keeps runnable scripts executable on the device.
func fileMode(role domain.FileRole) os.FileMode {
	if role == domain.RoleScript {
		return 0o755
	}
	return 0o644
}
