package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// MetricsCollector holds the gateway's Prometheus metrics on a private registry.
type MetricsCollector struct {
	logger   *logrus.Logger
	registry *prometheus.Registry

	serversExplored   prometheus.Counter
	servicesFound     prometheus.Counter
	explorationErrors prometheus.Counter
	explorations      *prometheus.CounterVec

	executions        *prometheus.CounterVec
	executionDuration prometheus.Histogram

	paymentValidations *prometheus.CounterVec

	gatewayInfo *prometheus.GaugeVec
}

func NewMetricsCollector(logger *logrus.Logger, gatewayName, gatewayVersion string) *MetricsCollector {
	if logger == nil {
		logger = logrus.New()
	}
	registry := prometheus.NewRegistry()

	c := &MetricsCollector{
		logger:   logger,
		registry: registry,

		serversExplored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "praxis_gateway_servers_explored_total",
			Help: "Tool servers queried during service discovery",
		}),
		servicesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "praxis_gateway_services_found_total",
			Help: "Enriched services produced by discovery",
		}),
		explorationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "praxis_gateway_exploration_errors_total",
			Help: "Tool servers that failed during discovery",
		}),
		explorations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "praxis_gateway_explorations_total",
			Help: "Discovery runs by access mode",
		}, []string{"mode"}),

		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "praxis_gateway_executions_total",
			Help: "Service executions by outcome",
		}, []string{"outcome"}),
		executionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "praxis_gateway_execution_duration_seconds",
			Help:    "End-to-end service execution latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),

		paymentValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "praxis_gateway_payment_validations_total",
			Help: "Payment validations by final status",
		}, []string{"status"}),

		gatewayInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "praxis_gateway_info",
			Help: "Gateway information",
		}, []string{"gateway_name", "gateway_version"}),
	}

	registry.MustRegister(
		c.serversExplored,
		c.servicesFound,
		c.explorationErrors,
		c.explorations,
		c.executions,
		c.executionDuration,
		c.paymentValidations,
		c.gatewayInfo,
	)
	c.gatewayInfo.WithLabelValues(gatewayName, gatewayVersion).Set(1)

	logger.Info("Metrics collector initialized")
	return c
}

// RecordExploration counts one discovery run.
func (c *MetricsCollector) RecordExploration(serversExplored, servicesFound, errors int, unsafeDirectAccess bool) {
	mode := "marketplace"
	if unsafeDirectAccess {
		mode = "direct"
	}
	c.explorations.WithLabelValues(mode).Inc()
	c.serversExplored.Add(float64(serversExplored))
	c.servicesFound.Add(float64(servicesFound))
	c.explorationErrors.Add(float64(errors))
}

// RecordExecution counts one purchase attempt and its latency.
func (c *MetricsCollector) RecordExecution(success bool, elapsed time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.executions.WithLabelValues(outcome).Inc()
	c.executionDuration.Observe(elapsed.Seconds())
}

// RecordPaymentValidation counts a validation by its final status.
func (c *MetricsCollector) RecordPaymentValidation(status string) {
	c.paymentValidations.WithLabelValues(status).Inc()
}

// RegisterGaugeFunc exposes a value computed at scrape time.
func (c *MetricsCollector) RegisterGaugeFunc(name, help string, fn func() float64) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, fn))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *MetricsCollector) Registry() *prometheus.Registry {
	return c.registry
}
