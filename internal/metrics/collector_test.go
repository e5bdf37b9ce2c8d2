package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_Records(t *testing.T) {
	c := NewMetricsCollector(logrus.New(), "gateway", "1.0.0")

	c.RecordExploration(3, 7, 1, false)
	c.RecordExploration(1, 2, 0, true)
	c.RecordExecution(true, 120*time.Millisecond)
	c.RecordExecution(false, 10*time.Millisecond)
	c.RecordPaymentValidation("COMPLETED")

	assert.Equal(t, float64(4), testutil.ToFloat64(c.serversExplored))
	assert.Equal(t, float64(9), testutil.ToFloat64(c.servicesFound))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.explorationErrors))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.explorations.WithLabelValues("direct")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.executions.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.executions.WithLabelValues("failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.paymentValidations.WithLabelValues("COMPLETED")))
}

func TestMetricsCollector_Handler(t *testing.T) {
	c := NewMetricsCollector(logrus.New(), "gateway", "1.0.0")
	c.RegisterGaugeFunc("praxis_gateway_cached_connections", "Open tool-server sessions", func() float64 { return 3 })

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `praxis_gateway_info{gateway_name="gateway",gateway_version="1.0.0"} 1`)
	assert.Contains(t, string(body), "praxis_gateway_cached_connections 3")
}
