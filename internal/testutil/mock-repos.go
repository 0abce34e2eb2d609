package testutil

import (
	"context"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/mock"

	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

// MockTrackingStore is a mock of TrackingStore.
type MockTrackingStore struct {
	mock.Mock
}

func (m *MockTrackingStore) DownloadURI(ctx context.Context, name, version string) (string, error) {
	args := m.Called(ctx, name, version)
	return args.String(0), args.Error(1)
}

func (m *MockTrackingStore) RunArtifactURI(ctx context.Context, runID, path string) (string, error) {
	args := m.Called(ctx, runID, path)
	return args.String(0), args.Error(1)
}

// MockArtifactStore is a mock of ArtifactStore. Fetch writes the objects
// configured in Files before returning, so callers see real staged files.
type MockArtifactStore struct {
	mock.Mock
	// Files maps relative path to content.
	Files map[string]string
}

func (m *MockArtifactStore) Supports(uri string) bool {
	args := m.Called(uri)
	return args.Bool(0)
}

func (m *MockArtifactStore) Fetch(ctx context.Context, uri string, dst afero.Fs, destDir string) ([]ports.FetchedObject, error) {
	args := m.Called(ctx, uri, dst, destDir)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	for rel, content := range m.Files {
		name := filepath.Join(destDir, filepath.FromSlash(rel))
		if err := dst.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			return nil, err
		}
		if err := afero.WriteFile(dst, name, []byte(content), 0o644); err != nil {
			return nil, err
		}
	}
	if args.Get(0) == nil {
		return nil, nil
	}
	return args.Get(0).([]ports.FetchedObject), nil
}

// MockMetrics is a mock of DeploymentMetrics.
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) ObserveDeployment(status domain.DeploymentStatus) {
	m.Called(status)
}

func (m *MockMetrics) ObserveVersionRetry() {
	m.Called()
}

func (m *MockMetrics) ObserveTransferBytes(n int64) {
	m.Called(n)
}
