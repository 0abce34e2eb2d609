package services

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-deploy-service/internal/core/domain"
)

func TestDiscover_FirstRootWins(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/jetson/client.py", []byte("first"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/models/client.py", []byte("second one"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/models/face_database.json", []byte("{}"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/jetson/docker/Dockerfile.model-server", []byte("FROM x"), 0o644))

	entries, err := NewDiscoverer(fs, nil).Discover([]string{"/work/jetson", "/work/models", "/work/jetson/docker"})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byPath := map[string]domain.ManifestEntry{}
	for _, e := range entries {
		byPath[e.RelPath] = e
	}

	client := byPath["scripts/client.py"]
	assert.Equal(t, "/work/jetson/client.py", client.SourcePath)
	assert.Equal(t, int64(5), client.Size)
	assert.Equal(t, domain.RoleScript, client.Role)

	db := byPath["data/face_database.json"]
	assert.Equal(t, domain.RoleMetadata, db.Role)

	recipe := byPath["docker/Dockerfile.model-server"]
	assert.Equal(t, domain.RoleContainerRecipe, recipe.Role)
}

func TestDiscover_SkipsDirectoriesAndMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/a/model_params.json", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/b/model_params.json", []byte(`{"k":1}`), 0o644))

	entries, err := NewDiscoverer(fs, nil).Discover([]string{"/a", "/b", "/does/not/exist"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/b/model_params.json", entries[0].SourcePath)
}

func TestDiscover_NothingFound(t *testing.T) {
	entries, err := NewDiscoverer(afero.NewMemMapFs(), nil).Discover([]string{"/empty"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiscover_CustomTable(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/r/run.sh", []byte("#!/bin/sh"), 0o644))

	d := NewDiscoverer(fs, []CompanionFile{{Basename: "run.sh", Role: domain.RoleScript}})
	entries, err := d.Discover([]string{"/r"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "scripts/run.sh", entries[0].RelPath)
}
