package dto

import (
	"time"

	units "github.com/docker/go-units"

	"edge-deploy-service/internal/core/domain"
	"edge-deploy-service/internal/core/services"
)

// ============================================================================
// Deployment DTOs
// ============================================================================

type CreateDeploymentRequest struct {
	Target      string   `json:"target" binding:"required"`
	Name        string   `json:"name" binding:"required,max=128"`
	ArtifactURI string   `json:"artifact_uri" binding:"required"`
	SearchRoots []string `json:"search_roots"`
}

type ManifestFileResponse struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	HumanSize string `json:"human_size"`
	Role      string `json:"role"`
	Digest    string `json:"digest,omitempty"`
}

type DeploymentResponse struct {
	Name        string                 `json:"name"`
	Version     int                    `json:"version"`
	TargetHost  string                 `json:"target_host"`
	RemotePath  string                 `json:"remote_path"`
	ArtifactURI string                 `json:"artifact_uri,omitempty"`
	Status      string                 `json:"status"`
	LastError   string                 `json:"last_error,omitempty"`
	Warnings    []string               `json:"warnings,omitempty"`
	TotalSize   int64                  `json:"total_size"`
	Files       []ManifestFileResponse `json:"files"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

type DeploymentRefResponse struct {
	Name      string `json:"name"`
	Version   int    `json:"version"`
	Directory string `json:"directory"`
}

type ListDeploymentsResponse struct {
	Items []DeploymentRefResponse `json:"items"`
	Total int                     `json:"total"`
}

type HealthResponse struct {
	URL        string    `json:"url"`
	Healthy    bool      `json:"healthy"`
	StatusCode int       `json:"status_code,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	CheckedAt  time.Time `json:"checked_at"`
	Error      string    `json:"error,omitempty"`
}

func ToDeploymentResponse(d *domain.Deployment) DeploymentResponse {
	resp := DeploymentResponse{
		Name:        d.Name,
		Version:     d.Version,
		TargetHost:  d.TargetHost,
		RemotePath:  d.RemotePath,
		ArtifactURI: d.ArtifactURI,
		Status:      string(d.Status),
		LastError:   d.LastError,
		Warnings:    d.Warnings,
		Files:       []ManifestFileResponse{},
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.Manifest != nil {
		resp.TotalSize = d.Manifest.TotalSize()
		for _, f := range d.Manifest.Files {
			resp.Files = append(resp.Files, ManifestFileResponse{
				Path:      f.RelPath,
				Size:      f.Size,
				HumanSize: units.HumanSize(float64(f.Size)),
				Role:      string(f.Role),
				Digest:    f.Digest,
			})
		}
	}
	return resp
}

func ToDeploymentRefResponse(r domain.DeploymentRef) DeploymentRefResponse {
	return DeploymentRefResponse{
		Name:      r.Name,
		Version:   r.Version,
		Directory: r.DirName(),
	}
}

func ToListDeploymentsResponse(refs []domain.DeploymentRef) ListDeploymentsResponse {
	items := make([]DeploymentRefResponse, 0, len(refs))
	for _, r := range refs {
		items = append(items, ToDeploymentRefResponse(r))
	}
	return ListDeploymentsResponse{Items: items, Total: len(items)}
}

func ToHealthResponse(s *services.HealthStatus) HealthResponse {
	return HealthResponse{
		URL:        s.URL,
		Healthy:    s.Healthy,
		StatusCode: s.StatusCode,
		LatencyMs:  s.Latency.Milliseconds(),
		CheckedAt:  s.CheckedAt,
		Error:      s.Error,
	}
}
