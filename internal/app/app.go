// Package app wires configuration into a ready DeployService. It is shared
// by the HTTP server and the edgectl CLI.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"edge-deploy-service/internal/adapters/secondary/filestore"
	"edge-deploy-service/internal/adapters/secondary/localfs"
	"edge-deploy-service/internal/adapters/secondary/metrics"
	"edge-deploy-service/internal/adapters/secondary/mlflow"
	"edge-deploy-service/internal/adapters/secondary/postgres"
	"edge-deploy-service/internal/adapters/secondary/s3store"
	"edge-deploy-service/internal/adapters/secondary/sshfs"
	"edge-deploy-service/internal/config"
	ports "edge-deploy-service/internal/core/ports/output"
	"edge-deploy-service/internal/core/services"
)

type App struct {
	Deploy   *services.DeployService
	Targets  *services.TargetRegistry
	Registry *prometheus.Registry

	pool *pgxpool.Pool
}

// New builds every adapter named by cfg. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Registry: prometheus.NewRegistry()}
	osFs := afero.NewOsFs()

	// ============================================================================
	// Hexagonal Architecture Wiring
	// ============================================================================

	// Targets
	a.Targets = services.NewTargetRegistry()
	a.Targets.Register("jetson", sshfs.NewFactory("jetson", cfg.Target, cfg.Transport).Build)
	a.Targets.Register("ssh", sshfs.NewFactory("ssh", cfg.Target, cfg.Transport).Build)
	a.Targets.Register("file", localfs.NewFactory(osFs, cfg.Target))

	// Tracking store and artifact stores
	stores, client, err := artifactStores(cfg, osFs)
	if err != nil {
		return nil, err
	}

	var tracking ports.TrackingStore
	switch cfg.Tracking.Backend {
	case "postgres":
		pool, err := newPool(ctx, cfg.Tracking.DSN)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		tracking = postgres.NewTrackingStore(pool)
		log.Info("tracking store: mlflow backend database")
	case "mlflow", "":
		if client == nil {
			return nil, fmt.Errorf("tracking backend mlflow needs TRACKING_URL")
		}
		tracking = client
		log.WithField("url", cfg.Tracking.URL).Info("tracking store: mlflow server")
	default:
		return nil, fmt.Errorf("unknown tracking backend %q", cfg.Tracking.Backend)
	}

	// Metrics
	var m ports.DeploymentMetrics = ports.NoopMetrics{}
	if cfg.Metrics.Enabled {
		m = metrics.NewCollector(a.Registry)
	}

	// Core Services
	resolver := services.NewArtifactResolver(osFs, tracking, cfg.Discovery.StagingDir, stores...)
	discoverer := services.NewDiscoverer(osFs, nil)
	builder := services.NewPackageBuilder(osFs, cfg.Discovery.StagingDir)
	transport := services.NewTransportManager(services.TransportOptions{
		MaxVersionAttempts: cfg.Transport.MaxVersionAttempts,
		CopyConcurrency:    cfg.Transport.CopyConcurrency,
		VerifyDigest:       cfg.Transport.VerifyDigest,
	}, m)
	registry := services.NewDeploymentRegistry()

	a.Deploy = services.NewDeployService(a.Targets, resolver, discoverer, builder, transport, registry, cfg.Discovery.SearchRoots)
	return a, nil
}

// artifactStores builds every store cfg enables. The MLflow artifact proxy
// is served whenever a tracking server URL is known, whichever backend
// resolves model versions, since either may hand out mlflow-artifacts: URIs.
func artifactStores(cfg *config.Config, fs afero.Fs) ([]ports.ArtifactStore, *mlflow.Client, error) {
	stores := []ports.ArtifactStore{filestore.New(fs)}

	var client *mlflow.Client
	if cfg.Tracking.URL != "" {
		client = mlflow.NewClient(cfg.Tracking)
		stores = append(stores, mlflow.NewArtifactRepo(client))
	}

	if cfg.S3.Enabled {
		s3, err := s3store.New(cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		stores = append(stores, s3)
		log.WithField("endpoint", cfg.S3.Endpoint).Info("s3 artifact store enabled")
	}
	return stores, client, nil
}

// Ping checks the backing database, if any.
func (a *App) Ping(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	return a.pool.Ping(ctx)
}

func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func newPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	log.Info("database connection established")
	return pool, nil
}
