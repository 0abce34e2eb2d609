package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRole_BundleDir(t *testing.T) {
	assert.Equal(t, "models", RoleModel.BundleDir())
	assert.Equal(t, "data", RoleMetadata.BundleDir())
	assert.Equal(t, "scripts", RoleScript.BundleDir())
	assert.Equal(t, "docker", RoleContainerRecipe.BundleDir())
	assert.False(t, FileRole("binary").IsValid())
}

func TestFileManifest_TotalSizeAndLookup(t *testing.T) {
	m := &FileManifest{Files: []ManifestEntry{
		{RelPath: "models/model.pkl", Size: 100, Role: RoleModel},
		{RelPath: "scripts/client.py", Size: 20, Role: RoleScript},
	}}

	assert.Equal(t, int64(120), m.TotalSize())

	e, ok := m.Lookup("scripts/client.py")
	require.True(t, ok)
	assert.Equal(t, int64(20), e.Size)

	_, ok = m.Lookup("missing")
	assert.False(t, ok)
}

func TestFileManifest_Validate(t *testing.T) {
	tests := []struct {
		name  string
		entry ManifestEntry
	}{
		{"absolute", ManifestEntry{RelPath: "/etc/passwd", Role: RoleModel}},
		{"parent", ManifestEntry{RelPath: "../escape", Role: RoleModel}},
		{"unclean", ManifestEntry{RelPath: "models/../../x", Role: RoleModel}},
		{"empty", ManifestEntry{RelPath: "", Role: RoleModel}},
		{"reserved", ManifestEntry{RelPath: ManifestFileName, Role: RoleMetadata}},
		{"bad role", ManifestEntry{RelPath: "models/a", Role: "weights"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &FileManifest{Files: []ManifestEntry{tt.entry}}
			assert.True(t, errors.Is(m.Validate(), ErrIOFailure))
		})
	}
}

func TestFileManifest_ValidateDuplicates(t *testing.T) {
	m := &FileManifest{Files: []ManifestEntry{
		{RelPath: "models/a", Role: RoleModel},
		{RelPath: "models/a", Role: RoleModel},
	}}
	assert.True(t, errors.Is(m.Validate(), ErrIOFailure))
}

func TestManifestEntry_SourcePathNotSerialized(t *testing.T) {
	data, err := json.Marshal(ManifestEntry{RelPath: "models/a", Size: 1, Role: RoleModel, SourcePath: "/home/me/secret"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), `"path":"models/a"`)
}
