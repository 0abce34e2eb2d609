package app

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-deploy-service/internal/config"
	ports "edge-deploy-service/internal/core/ports/output"
)

func handled(stores []ports.ArtifactStore, uri string) bool {
	for _, s := range stores {
		if s.Supports(uri) {
			return true
		}
	}
	return false
}

func TestArtifactStores_ProxyServedForPostgresBackend(t *testing.T) {
	cfg := &config.Config{Tracking: config.TrackingConfig{
		Backend: "postgres",
		URL:     "http://mlflow:5000",
		Timeout: time.Second,
	}}

	stores, client, err := artifactStores(cfg, afero.NewMemMapFs())
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.True(t, handled(stores, "mlflow-artifacts:/1/abc/artifacts/model"))
	assert.True(t, handled(stores, "/models/faces"))
}

func TestArtifactStores_NoTrackingURL(t *testing.T) {
	cfg := &config.Config{Tracking: config.TrackingConfig{Backend: "postgres"}}

	stores, client, err := artifactStores(cfg, afero.NewMemMapFs())
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.False(t, handled(stores, "mlflow-artifacts:/1/abc/artifacts/model"))
}

func TestNew_RejectsBadTrackingConfig(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.Tracking.Backend = "mlflow"
	cfg.Tracking.URL = ""
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "TRACKING_URL")

	cfg.Tracking.Backend = "sqlite"
	cfg.Tracking.URL = "http://mlflow:5000"
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown tracking backend")
}
