package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-deploy-service/internal/core/domain"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveDeployment(domain.StatusActive)
	c.ObserveDeployment(domain.StatusActive)
	c.ObserveDeployment(domain.StatusFailed)
	c.ObserveVersionRetry()
	c.ObserveTransferBytes(3 << 20)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.deployments.WithLabelValues("Active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deployments.WithLabelValues("Failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retries))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"edge_deploy_deployments_total",
		"edge_deploy_version_retries_total",
		"edge_deploy_transfer_bytes",
	}, names)
}

func TestCollector_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}
