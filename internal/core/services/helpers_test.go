package services

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"edge-deploy-service/internal/core/domain"
)

const (
	stagingRoot = "/staging"
	remoteBase  = "/home/newcastleuni/mlflow_deployments"
)

// newLocalFs returns an in-memory local filesystem holding files.
func newLocalFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(stagingRoot, 0o755))
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return fs
}

var bundleSources = map[string]string{
	"/src/model.pkl":          "random-forest-weights",
	"/src/face_database.json": `{"alice": [0.1, 0.2]}`,
	"/src/client.py":          "print('hello')\n",
}

func sampleManifest(name string) *domain.FileManifest {
	return &domain.FileManifest{
		Name:        name,
		ArtifactURI: "models:/face_recognition_model/1",
		Files: []domain.ManifestEntry{
			{RelPath: "models/model.pkl", Role: domain.RoleModel, SourcePath: "/src/model.pkl"},
			{RelPath: "data/face_database.json", Role: domain.RoleMetadata, SourcePath: "/src/face_database.json"},
			{RelPath: "scripts/client.py", Role: domain.RoleScript, SourcePath: "/src/client.py"},
		},
	}
}

// buildBundle builds a bundle of the sample files on a fresh local fs.
func buildBundle(t *testing.T, name string) *Bundle {
	t.Helper()
	local := newLocalFs(t, bundleSources)
	b, err := NewPackageBuilder(local, stagingRoot).Build(context.Background(), name, sampleManifest(name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Cleanup() })
	return b
}

func exists(t *testing.T, fs afero.Fs, name string) bool {
	t.Helper()
	ok, err := afero.Exists(fs, name)
	require.NoError(t, err)
	return ok
}
