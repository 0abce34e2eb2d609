package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

// Staging is an operation-private directory holding the downloaded model
// files. Callers must defer Cleanup.
type Staging struct {
	Dir   string
	Files []ports.FetchedObject

	fs   afero.Fs
	once sync.Once
	err  error
}

// Cleanup removes the staging directory. It is safe to call more than once.
func (s *Staging) Cleanup() error {
	if s == nil {
		return nil
	}
	s.once.Do(func() {
		s.err = s.fs.RemoveAll(s.Dir)
	})
	return s.err
}

// ModelEntries returns manifest entries for every staged model file, placed
// under the model role directory.
func (s *Staging) ModelEntries() []domain.ManifestEntry {
	entries := make([]domain.ManifestEntry, 0, len(s.Files))
	for _, f := range s.Files {
		entries = append(entries, domain.ManifestEntry{
			RelPath:    path.Join(domain.RoleModel.BundleDir(), f.RelPath),
			Size:       f.Size,
			Role:       domain.RoleModel,
			SourcePath: filepath.Join(s.Dir, filepath.FromSlash(f.RelPath)),
		})
	}
	return entries
}

type ArtifactResolver struct {
	fs          afero.Fs
	tracking    ports.TrackingStore
	stores      []ports.ArtifactStore
	stagingRoot string
}

func NewArtifactResolver(fs afero.Fs, tracking ports.TrackingStore, stagingRoot string, stores ...ports.ArtifactStore) *ArtifactResolver {
	return &ArtifactResolver{
		fs:          fs,
		tracking:    tracking,
		stores:      stores,
		stagingRoot: stagingRoot,
	}
}

// Resolve downloads the files behind ref into a fresh staging directory.
// On any error the directory is already gone when Resolve returns.
func (r *ArtifactResolver) Resolve(ctx context.Context, ref domain.ArtifactReference) (*Staging, error) {
	uri, err := r.locate(ctx, ref)
	if err != nil {
		return nil, err
	}

	store := r.storeFor(uri)
	if store == nil {
		return nil, fmt.Errorf("%w: no artifact store handles %q", domain.ErrInvalidArtifactReference, uri)
	}

	dir, err := afero.TempDir(r.fs, r.stagingRoot, "edge-deploy-artifact-")
	if err != nil {
		return nil, fmt.Errorf("%w: create staging dir: %v", domain.ErrIOFailure, err)
	}
	staging := &Staging{Dir: dir, fs: r.fs}

	logger := log.WithFields(log.Fields{
		"artifact": ref.String(),
		"location": uri,
		"staging":  dir,
	})
	logger.Info("downloading model artifact")

	files, err := r.fetch(ctx, store, uri, dir)
	if err != nil {
		if cerr := staging.Cleanup(); cerr != nil {
			logger.WithError(cerr).Warn("failed to remove staging dir")
		}
		return nil, err
	}

	staging.Files = files
	logger.WithField("files", len(files)).Info("model artifact staged")
	return staging, nil
}

func (r *ArtifactResolver) fetch(ctx context.Context, store ports.ArtifactStore, uri, dir string) ([]ports.FetchedObject, error) {
	files, err := store.Fetch(ctx, uri, r.fs, dir)
	if err != nil {
		if errors.Is(err, domain.ErrArtifactNotFound) || errors.Is(err, domain.ErrArtifactIncomplete) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", uri, ctxErr)
		}
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrArtifactIncomplete, uri, err)
	}

	if err := r.verify(dir, files); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// verify checks every announced object landed with the announced size.
func (r *ArtifactResolver) verify(dir string, files []ports.FetchedObject) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: no model files were downloaded", domain.ErrArtifactIncomplete)
	}
	for _, f := range files {
		info, err := r.fs.Stat(filepath.Join(dir, filepath.FromSlash(f.RelPath)))
		if err != nil {
			return fmt.Errorf("%w: %s missing: %v", domain.ErrArtifactIncomplete, f.RelPath, err)
		}
		if info.Size() != f.Size {
			return fmt.Errorf("%w: %s has %d bytes, expected %d", domain.ErrArtifactIncomplete, f.RelPath, info.Size(), f.Size)
		}
	}
	return nil
}

func (r *ArtifactResolver) locate(ctx context.Context, ref domain.ArtifactReference) (string, error) {
	switch ref.Kind() {
	case domain.ArtifactKindRegistry:
		if r.tracking == nil {
			return "", fmt.Errorf("%w: no tracking store configured for %s", domain.ErrInvalidArtifactReference, ref)
		}
		uri, err := r.tracking.DownloadURI(ctx, ref.ModelName(), ref.ModelVersion())
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", ref, err)
		}
		return uri, nil

	case domain.ArtifactKindRun:
		if r.tracking == nil {
			return "", fmt.Errorf("%w: no tracking store configured for %s", domain.ErrInvalidArtifactReference, ref)
		}
		uri, err := r.tracking.RunArtifactURI(ctx, ref.ModelName(), ref.Path())
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", ref, err)
		}
		return uri, nil

	case domain.ArtifactKindDirect:
		return ref.Path(), nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrInvalidArtifactReference, ref)
}

func (r *ArtifactResolver) storeFor(uri string) ports.ArtifactStore {
	for _, s := range r.stores {
		if s.Supports(uri) {
			return s
		}
	}
	return nil
}
