package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"edge-deploy-service/internal/core/domain"
	"edge-deploy-service/internal/core/services"
)

func TestToDeploymentResponse(t *testing.T) {
	d := &domain.Deployment{
		Name:       "faces",
		Version:    3,
		TargetHost: "192.168.2.100",
		RemotePath: "/home/newcastleuni/mlflow_deployments/faces_v3/",
		Status:     domain.StatusActive,
		Manifest: &domain.FileManifest{Files: []domain.ManifestEntry{
			{RelPath: "models/model.pkl", Size: 2_500_000, Role: domain.RoleModel},
			{RelPath: "scripts/client.py", Size: 100, Role: domain.RoleScript},
		}},
	}

	resp := ToDeploymentResponse(d)
	assert.Equal(t, "Active", resp.Status)
	assert.Equal(t, int64(2_500_100), resp.TotalSize)
	assert.Len(t, resp.Files, 2)
	assert.Equal(t, "2.5MB", resp.Files[0].HumanSize)
	assert.Equal(t, "script", resp.Files[1].Role)
}

func TestToDeploymentResponse_NoManifest(t *testing.T) {
	resp := ToDeploymentResponse(&domain.Deployment{Name: "faces", Status: domain.StatusFailed})
	assert.NotNil(t, resp.Files)
	assert.Empty(t, resp.Files)
	assert.Zero(t, resp.TotalSize)
}

func TestToListDeploymentsResponse(t *testing.T) {
	resp := ToListDeploymentsResponse([]domain.DeploymentRef{{Name: "faces", Version: 1}, {Name: "faces", Version: 2}})
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "faces_v2", resp.Items[1].Directory)

	empty := ToListDeploymentsResponse(nil)
	assert.NotNil(t, empty.Items)
	assert.Zero(t, empty.Total)
}

func TestToHealthResponse(t *testing.T) {
	resp := ToHealthResponse(&services.HealthStatus{URL: "http://h:8000/health", Healthy: true, StatusCode: 200, Latency: 1500 * time.Millisecond})
	assert.Equal(t, int64(1500), resp.LatencyMs)
	assert.True(t, resp.Healthy)
}
