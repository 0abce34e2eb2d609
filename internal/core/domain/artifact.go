package domain

import (
	"fmt"
	"strings"
)

// ArtifactKind tells the resolver how to turn a reference into files.
type ArtifactKind string

const (
	ArtifactKindRegistry ArtifactKind = "registry" // models:/<name>/<version>
	ArtifactKindRun      ArtifactKind = "run"      // runs:/<run-id>/<path>
	ArtifactKindDirect   ArtifactKind = "direct"   // file://, s3://, plain path
)

// LatestVersion is the registry alias for the newest model version.
const LatestVersion = "latest"

// ArtifactReference identifies a trained model version in the tracking
// store. It is immutable once parsed.
type ArtifactReference struct {
	raw     string
	kind    ArtifactKind
	name    string
	version string
	path    string
}

// ParseArtifactReference accepts models:/name/version, runs:/id/path and
// any URI the artifact stores understand.
func ParseArtifactReference(raw string) (ArtifactReference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ArtifactReference{}, fmt.Errorf("%w: empty reference", ErrInvalidArtifactReference)
	}

	switch {
	case strings.HasPrefix(raw, "models:/"):
		parts := strings.Split(strings.Trim(strings.TrimPrefix(raw, "models:/"), "/"), "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return ArtifactReference{}, fmt.Errorf("%w: expected models:/<name>/<version>, got %q", ErrInvalidArtifactReference, raw)
		}
		return ArtifactReference{raw: raw, kind: ArtifactKindRegistry, name: parts[0], version: parts[1]}, nil

	case strings.HasPrefix(raw, "runs:/"):
		rest := strings.Trim(strings.TrimPrefix(raw, "runs:/"), "/")
		runID, path, _ := strings.Cut(rest, "/")
		if runID == "" {
			return ArtifactReference{}, fmt.Errorf("%w: expected runs:/<run-id>/<path>, got %q", ErrInvalidArtifactReference, raw)
		}
		return ArtifactReference{raw: raw, kind: ArtifactKindRun, name: runID, path: path}, nil
	}

	return ArtifactReference{raw: raw, kind: ArtifactKindDirect, path: raw}, nil
}

func (r ArtifactReference) String() string     { return r.raw }
func (r ArtifactReference) Kind() ArtifactKind { return r.kind }

// ModelName is the registered model name (registry refs) or run id (run refs).
func (r ArtifactReference) ModelName() string { return r.name }

// ModelVersion is the registry version or "latest".
func (r ArtifactReference) ModelVersion() string { return r.version }

// Path is the artifact path inside a run, or the whole URI for direct refs.
func (r ArtifactReference) Path() string { return r.path }

// IsLocal reports whether a direct reference points at the local
// filesystem, either as file:// or as a plain path.
func (r ArtifactReference) IsLocal() bool {
	if r.kind != ArtifactKindDirect {
		return false
	}
	scheme, _, found := strings.Cut(r.raw, ":")
	if !found || scheme == "" || strings.Contains(scheme, "/") {
		return true
	}
	return strings.EqualFold(scheme, "file")
}

// IsZero reports whether the reference was never parsed.
func (r ArtifactReference) IsZero() bool { return r.raw == "" }
