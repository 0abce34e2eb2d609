package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"edge-deploy-service/internal/core/domain"
)

// DeployService is the plugin surface the orchestration layer calls: give
// it a target identifier and an artifact reference, get back a deployment.
type DeployService struct {
	targets     *TargetRegistry
	resolver    *ArtifactResolver
	discoverer  *Discoverer
	builder     *PackageBuilder
	transport   *TransportManager
	registry    *DeploymentRegistry
	searchRoots []string
	httpClient  *http.Client
}

func NewDeployService(
	targets *TargetRegistry,
	resolver *ArtifactResolver,
	discoverer *Discoverer,
	builder *PackageBuilder,
	transport *TransportManager,
	registry *DeploymentRegistry,
	searchRoots []string,
) *DeployService {
	return &DeployService{
		targets:     targets,
		resolver:    resolver,
		discoverer:  discoverer,
		builder:     builder,
		transport:   transport,
		registry:    registry,
		searchRoots: searchRoots,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

type CreateRequest struct {
	Target      string
	Name        string
	ArtifactURI string
	// SearchRoots overrides the configured companion search roots.
	SearchRoots []string
}

// Create stages the artifact, gathers companion files, builds the bundle
// and transfers it as a new version. Local temporary directories are gone
// by the time Create returns, whatever the outcome.
func (s *DeployService) Create(ctx context.Context, req CreateRequest) (*domain.Deployment, error) {
	if err := domain.ValidateDeploymentName(req.Name); err != nil {
		return nil, err
	}

	// 1. Resolve target
	target, err := s.targets.Resolve(req.Target)
	if err != nil {
		return nil, err
	}

	// 2. Stage model artifact
	ref, err := domain.ParseArtifactReference(req.ArtifactURI)
	if err != nil {
		return nil, err
	}
	staging, err := s.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := staging.Cleanup(); cerr != nil {
			log.WithError(cerr).WithField("staging", staging.Dir).Warn("failed to remove staging dir")
		}
	}()

	// 3. Discover companion files
	roots := req.SearchRoots
	if len(roots) == 0 {
		roots = s.searchRoots
	}
	companions, err := s.discoverer.Discover(roots)
	if err != nil {
		return nil, err
	}

	// 4. Build bundle
	manifest := &domain.FileManifest{
		Name:        req.Name,
		ArtifactURI: ref.String(),
		CreatedAt:   time.Now().UTC(),
		Files:       mergeEntries(staging.ModelEntries(), companions),
	}
	bundle, err := s.builder.Build(ctx, req.Name, manifest)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := bundle.Cleanup(); cerr != nil {
			log.WithError(cerr).WithField("bundle", bundle.Dir).Warn("failed to remove bundle dir")
		}
	}()

	// 5. Transfer
	return s.transport.Transfer(ctx, bundle, target, req.Name)
}

func (s *DeployService) List(ctx context.Context, targetID string) ([]domain.DeploymentRef, error) {
	target, err := s.targets.Resolve(targetID)
	if err != nil {
		return nil, err
	}
	return s.registry.List(ctx, target)
}

func (s *DeployService) Describe(ctx context.Context, targetID, name string, version *int) (*domain.Deployment, error) {
	target, err := s.targets.Resolve(targetID)
	if err != nil {
		return nil, err
	}
	return s.registry.Describe(ctx, target, name, version)
}

func (s *DeployService) Delete(ctx context.Context, targetID, name string, version *int) (*domain.DeploymentRef, error) {
	target, err := s.targets.Resolve(targetID)
	if err != nil {
		return nil, err
	}
	return s.registry.Delete(ctx, target, name, version)
}

// Predict exists for parity with other deployment targets. Files are only
// transferred; nothing serves predictions here.
func (s *DeployService) Predict(context.Context, string, any) (any, error) {
	return nil, domain.ErrPredictionUnsupported
}

// HealthStatus is the result of probing a service started on the device.
type HealthStatus struct {
	URL        string        `json:"url"`
	Healthy    bool          `json:"healthy"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency"`
	CheckedAt  time.Time     `json:"checked_at"`
	Error      string        `json:"error,omitempty"`
}

// Health probes http://<host>:<port>/health on the target device. An
// unreachable service is reported as unhealthy, not as an error.
func (s *DeployService) Health(ctx context.Context, targetID string, port int) (*HealthStatus, error) {
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: bad service port %d", domain.ErrInvalidTarget, port)
	}
	target, err := s.targets.Resolve(targetID)
	if err != nil {
		return nil, err
	}

	url := "http://" + target.Descriptor().Host + ":" + strconv.Itoa(port) + "/health"
	status := &HealthStatus{URL: url, CheckedAt: time.Now()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	status.Latency = time.Since(start)
	if err != nil {
		status.Error = err.Error()
		return status, nil
	}
	defer resp.Body.Close()

	status.StatusCode = resp.StatusCode
	status.Healthy = resp.StatusCode == http.StatusOK
	return status, nil
}

// mergeEntries appends companions to the model entries, dropping any
// companion whose bundle path the model artifact already uses.
func mergeEntries(model, companions []domain.ManifestEntry) []domain.ManifestEntry {
	seen := make(map[string]struct{}, len(model))
	out := make([]domain.ManifestEntry, 0, len(model)+len(companions))
	for _, e := range model {
		seen[e.RelPath] = struct{}{}
		out = append(out, e)
	}
	for _, e := range companions {
		if _, dup := seen[e.RelPath]; dup {
			log.WithField("file", e.RelPath).Warn("companion file shadowed by model artifact, skipping")
			continue
		}
		seen[e.RelPath] = struct{}{}
		out = append(out, e)
	}
	return out
}
