package domain

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// FileRole classifies a file inside a deployment bundle.
type FileRole string

const (
	RoleModel           FileRole = "model"
	RoleMetadata        FileRole = "metadata"
	RoleScript          FileRole = "script"
	RoleContainerRecipe FileRole = "container-recipe"
)

// IsValid checks if the role is one of the known roles
func (r FileRole) IsValid() bool {
	switch r {
	case RoleModel, RoleMetadata, RoleScript, RoleContainerRecipe:
		return true
	}
	return false
}

// BundleDir is the directory a file of this role lives in inside a bundle.
func (r FileRole) BundleDir() string {
	switch r {
	case RoleModel:
		return "models"
	case RoleScript:
		return "scripts"
	case RoleContainerRecipe:
		return "docker"
	default:
		return "data"
	}
}

// ManifestFileName is the descriptor written at the root of every bundle
// and every remote deployment directory.
const ManifestFileName = "manifest.json"

// ManifestEntry is one file of a deployment. RelPath is slash separated and
// relative to the bundle root. SourcePath is only known locally and is never
// serialized.
type ManifestEntry struct {
	RelPath    string   `json:"path"`
	Size       int64    `json:"size"`
	Role       FileRole `json:"role"`
	Digest     string   `json:"digest,omitempty"`
	SourcePath string   `json:"-"`
}

// FileManifest is the authoritative file list of one deployment.
type FileManifest struct {
	Name        string          `json:"name"`
	ArtifactURI string          `json:"artifact_uri,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Files       []ManifestEntry `json:"files"`
}

// TotalSize sums the size of every entry.
func (m *FileManifest) TotalSize() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}

// Lookup returns the entry with the given relative path.
func (m *FileManifest) Lookup(relPath string) (ManifestEntry, bool) {
	for _, f := range m.Files {
		if f.RelPath == relPath {
			return f, true
		}
	}
	return ManifestEntry{}, false
}

// Validate rejects entries that could escape the deployment directory once
// joined with a remote path.
func (m *FileManifest) Validate() error {
	seen := make(map[string]struct{}, len(m.Files))
	for _, f := range m.Files {
		clean := path.Clean(f.RelPath)
		if clean != f.RelPath || clean == "." || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("%w: unsafe manifest path %q", ErrIOFailure, f.RelPath)
		}
		if clean == ManifestFileName {
			return fmt.Errorf("%w: manifest path %q is reserved", ErrIOFailure, f.RelPath)
		}
		if !f.Role.IsValid() {
			return fmt.Errorf("%w: unknown role %q for %s", ErrIOFailure, f.Role, f.RelPath)
		}
		if _, dup := seen[clean]; dup {
			return fmt.Errorf("%w: duplicate manifest path %q", ErrIOFailure, f.RelPath)
		}
		seen[clean] = struct{}{}
	}
	return nil
}
