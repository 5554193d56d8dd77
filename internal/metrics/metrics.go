package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for spoofsent
type Metrics struct {
	// Delivery counters
	SendAttemptsTotal *prometheus.CounterVec

	// Campaign counters
	CampaignRunsTotal *prometheus.CounterVec

	// Posture counters
	DomainChecksTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	// Log feed gauge
	LogSubscribers prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SendAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spoofsent_send_attempts_total",
				Help: "Total number of delivery attempts",
			},
			[]string{"path", "result"},
		),
		CampaignRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spoofsent_campaign_runs_total",
				Help: "Total number of campaign runs",
			},
			[]string{"status"},
		),
		DomainChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spoofsent_domain_checks_total",
				Help: "Total number of domain posture evaluations",
			},
			[]string{"spoofable"},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spoofsent_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spoofsent_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		LogSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "spoofsent_log_subscribers",
				Help: "Number of connected log event subscribers",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.SendAttemptsTotal,
		m.CampaignRunsTotal,
		m.DomainChecksTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.LogSubscribers,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncSendAttempt increments the delivery attempt counter
func IncSendAttempt(path string, success bool) {
	m := Global()
	if m != nil {
		m.SendAttemptsTotal.WithLabelValues(path, resultLabel(success)).Inc()
	}
}

// IncCampaignRun increments the campaign run counter
func IncCampaignRun(status string) {
	m := Global()
	if m != nil {
		m.CampaignRunsTotal.WithLabelValues(status).Inc()
	}
}

// IncDomainCheck increments the domain check counter
func IncDomainCheck(spoofable bool) {
	m := Global()
	if m != nil {
		label := "no"
		if spoofable {
			label = "yes"
		}
		m.DomainChecksTotal.WithLabelValues(label).Inc()
	}
}

// SetLogSubscribers records the current subscriber count
func SetLogSubscribers(n int) {
	m := Global()
	if m != nil {
		m.LogSubscribers.Set(float64(n))
	}
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
