package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/webserv/internal/metrics"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func TestIncDecConnections(t *testing.T) {
	c := metrics.New(prometheus.NewRegistry())

	c.IncConnections()
	c.IncConnections()
	require.Equal(t, 2.0, gaugeValue(t, c.ConnectionsOpen))

	c.DecConnections()
	require.Equal(t, 1.0, gaugeValue(t, c.ConnectionsOpen))
}

func TestObserveRequest_LabelsByStatus(t *testing.T) {
	c := metrics.New(prometheus.NewRegistry())

	c.ObserveRequest(200)
	c.ObserveRequest(200)
	c.ObserveRequest(404)

	require.Equal(t, float64(2), counterValue(t, c.RequestsTotal.WithLabelValues("200")))
	require.Equal(t, float64(1), counterValue(t, c.RequestsTotal.WithLabelValues("404")))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestNilCollectors_MethodsAreSafe(t *testing.T) {
	var c *metrics.Collectors
	require.NotPanics(t, func() {
		c.IncConnections()
		c.DecConnections()
		c.ObserveRequest(200)
		c.ObserveCGI(0.1)
		c.ObservePollTick(0.01)
	})
}
