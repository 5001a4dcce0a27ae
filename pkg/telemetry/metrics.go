package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the deployer.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram

	// Phase metrics
	phasesTotal   *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	phaseAttempts *prometheus.HistogramVec

	// Secret sync metrics
	secretSyncsTotal *prometheus.CounterVec
	driftDetected    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. When disabled, all observe calls
// are no-ops.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "labctl"
	}

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}

	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Deployment runs by final status.",
	}, []string{"status"})

	m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Total deployment run duration.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	m.phasesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "phases_total",
		Help:      "Component phases by component and status.",
	}, []string{"component", "status"})

	m.phaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "phase_duration_seconds",
		Help:      "Component phase duration.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"component"})

	m.phaseAttempts = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "phase_attempts",
		Help:      "Install attempts per component phase.",
		Buckets:   []float64{1, 2, 3, 4, 5},
	}, []string{"component"})

	m.secretSyncsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "secret_syncs_total",
		Help:      "Secret reconciliations by result.",
	}, []string{"secret", "result"})

	m.driftDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "secret_drift_detected_total",
		Help:      "Credential drift detections by secret.",
	}, []string{"secret"})

	m.registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.phasesTotal,
		m.phaseDuration,
		m.phaseAttempts,
		m.secretSyncsTotal,
		m.driftDetected,
	)

	return m, nil
}

// ObserveRun records a completed run.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m.registry == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
}

// ObservePhase records a completed component phase.
func (m *Metrics) ObservePhase(component, status string, attempts int, d time.Duration) {
	if m.registry == nil {
		return
	}
	m.phasesTotal.WithLabelValues(component, status).Inc()
	m.phaseDuration.WithLabelValues(component).Observe(d.Seconds())
	m.phaseAttempts.WithLabelValues(component).Observe(float64(attempts))
}

// ObserveSecretSync records a secret reconciliation result.
func (m *Metrics) ObserveSecretSync(secret, result string) {
	if m.registry == nil {
		return
	}
	m.secretSyncsTotal.WithLabelValues(secret, result).Inc()
}

// ObserveDrift records a drift detection.
func (m *Metrics) ObserveDrift(secret string) {
	if m.registry == nil {
		return
	}
	m.driftDetected.WithLabelValues(secret).Inc()
}

// Handler returns the /metrics HTTP handler, or nil when disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on the configured listen address. It returns
// immediately when metrics or the listener are disabled.
func (m *Metrics) Serve() error {
	if m.registry == nil || m.config.ListenAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(m.config.ListenAddr, mux)
}
