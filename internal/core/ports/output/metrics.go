package ports

import "edge-deploy-service/internal/core/domain"

// DeploymentMetrics records deployment outcomes.
type DeploymentMetrics interface {
	ObserveDeployment(status domain.DeploymentStatus)
	ObserveVersionRetry()
	ObserveTransferBytes(n int64)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) ObserveDeployment(domain.DeploymentStatus) {}
func (NoopMetrics) ObserveVersionRetry()                      {}
func (NoopMetrics) ObserveTransferBytes(int64)                {}
