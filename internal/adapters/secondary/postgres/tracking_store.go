package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

// trackingStore reads model locations straight from an MLflow backend
// store database. It never writes.
type trackingStore struct {
	pool *pgxpool.Pool
}

func NewTrackingStore(pool *pgxpool.Pool) ports.TrackingStore {
	return &trackingStore{pool: pool}
}

func (s *trackingStore) DownloadURI(ctx context.Context, name, version string) (string, error) {
	if version == domain.LatestVersion {
		query := `
			SELECT COALESCE(NULLIF(mv.storage_location, ''), mv.source)
			FROM model_versions mv
			WHERE mv.name = $1 AND mv.current_stage <> 'Deleted_Internal'
			ORDER BY mv.version DESC
			LIMIT 1
		`
		return s.scanURI(ctx, fmt.Sprintf("%s/%s", name, version), query, name)
	}

	v, err := strconv.Atoi(version)
	if err != nil {
		return "", fmt.Errorf("%w: version %q is not a number", domain.ErrInvalidArtifactReference, version)
	}
	query := `
		SELECT COALESCE(NULLIF(mv.storage_location, ''), mv.source)
		FROM model_versions mv
		WHERE mv.name = $1 AND mv.version = $2 AND mv.current_stage <> 'Deleted_Internal'
	`
	return s.scanURI(ctx, fmt.Sprintf("%s/%d", name, v), query, name, v)
}

func (s *trackingStore) RunArtifactURI(ctx context.Context, runID, artifactPath string) (string, error) {
	query := `
		SELECT r.artifact_uri
		FROM runs r
		WHERE r.run_uuid = $1 AND r.lifecycle_stage <> 'deleted'
	`
	base, err := s.scanURI(ctx, "run "+runID, query, runID)
	if err != nil {
		return "", err
	}
	base = strings.TrimRight(base, "/")
	if artifactPath == "" {
		return base, nil
	}
	return base + "/" + strings.Trim(artifactPath, "/"), nil
}

func (s *trackingStore) scanURI(ctx context.Context, what, query string, args ...any) (string, error) {
	var uri string
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&uri); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, what)
		}
		return "", fmt.Errorf("query %s: %w", what, err)
	}
	if uri == "" {
		return "", fmt.Errorf("%w: %s has no artifact location", domain.ErrArtifactNotFound, what)
	}
	return uri, nil
}
