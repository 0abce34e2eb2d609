package ports

import (
	"context"

	"github.com/spf13/afero"
)

// TrackingStore maps registry references onto artifact locations.
type TrackingStore interface {
	// DownloadURI returns where the files of a registered model version
	// live. version may be domain.LatestVersion.
	DownloadURI(ctx context.Context, name, version string) (string, error)

	// RunArtifactURI returns the location of an artifact logged by a run.
	RunArtifactURI(ctx context.Context, runID, path string) (string, error)
}

// FetchedObject is a file written by an ArtifactStore, with the size the
// store announced for it.
type FetchedObject struct {
	RelPath string
	Size    int64
}

// ArtifactStore copies the objects behind a location into a local directory.
type ArtifactStore interface {
	Supports(uri string) bool

	// Fetch writes every object under uri into destDir on dst. A location
	// with no objects yields domain.ErrArtifactNotFound.
	Fetch(ctx context.Context, uri string, dst afero.Fs, destDir string) ([]FetchedObject, error)
}
