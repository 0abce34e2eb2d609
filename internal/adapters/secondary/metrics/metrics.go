// Package metrics exports deployment outcomes to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

type Collector struct {
	deployments  *prometheus.CounterVec
	retries      prometheus.Counter
	transferSize prometheus.Histogram
}

var _ ports.DeploymentMetrics = (*Collector)(nil)

// NewCollector registers the deployment metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edge_deploy",
			Name:      "deployments_total",
			Help:      "Deployments finished, by final status.",
		}, []string{"status"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "edge_deploy",
			Name:      "version_retries_total",
			Help:      "Version slots lost to a concurrent writer.",
		}),
		transferSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "edge_deploy",
			Name:      "transfer_bytes",
			Help:      "Bytes transferred per successful deployment.",
			Buckets:   prometheus.ExponentialBuckets(1<<20, 4, 8), // 1MiB .. 16GiB
		}),
	}
	reg.MustRegister(c.deployments, c.retries, c.transferSize)
	return c
}

func (c *Collector) ObserveDeployment(status domain.DeploymentStatus) {
	c.deployments.WithLabelValues(string(status)).Inc()
}

func (c *Collector) ObserveVersionRetry() {
	c.retries.Inc()
}

func (c *Collector) ObserveTransferBytes(n int64) {
	c.transferSize.Observe(float64(n))
}
