package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestDefaultConfigValid tests that the default configuration validates
func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig should validate: %v", err)
	}
}

// TestValidateRejectsBadValues tests invalid configuration combinations
func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServiceName = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for missing service name")
	}

	cfg = DefaultConfig()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for unsupported log format")
	}

	cfg = DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp-grpc"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for unsupported exporter")
	}

	cfg = DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	cfg.Tracing.SamplingRate = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for out-of-range sampling rate")
	}
}

// TestMetricsDisabledIsNoop tests that a disabled collector absorbs
// observations without a registry
func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() returned error: %v", err)
	}

	m.ObserveRun("success", time.Second)
	m.ObservePhase("vault", "created", 1, time.Second)
	m.ObserveSecretSync("gateway-oidc", "synced")
	m.ObserveDrift("gateway-oidc")

	if m.Handler() != nil {
		t.Error("Disabled metrics should have no handler")
	}
	if err := m.Serve(); err != nil {
		t.Errorf("Serve() on disabled metrics should be a no-op: %v", err)
	}
}

// TestMetricsObservations tests that observations land in the registry with
// the configured namespace
func TestMetricsObservations(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "labtest"})
	if err != nil {
		t.Fatalf("NewMetrics() returned error: %v", err)
	}

	m.ObserveRun("success", 2*time.Second)
	m.ObservePhase("vault", "created", 1, time.Second)
	m.ObservePhase("vault", "already_ready", 0, time.Millisecond)
	m.ObserveSecretSync("gateway-oidc", "synced")
	m.ObserveDrift("gateway-oidc")

	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 successful run, got %v", got)
	}
	if got := testutil.ToFloat64(m.phasesTotal.WithLabelValues("vault", "created")); got != 1 {
		t.Errorf("Expected 1 created phase, got %v", got)
	}
	if got := testutil.ToFloat64(m.driftDetected.WithLabelValues("gateway-oidc")); got != 1 {
		t.Errorf("Expected 1 drift detection, got %v", got)
	}

	names, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("Gather() returned error: %v", err)
	}
	found := false
	for _, mf := range names {
		if strings.HasPrefix(mf.GetName(), "labtest_") {
			found = true
			break
		}
	}
	if !found {
		t.Error("Expected metrics under the labtest namespace")
	}
}

// TestTracerDisabled tests that a disabled tracer still yields usable spans
func TestTracerDisabled(t *testing.T) {
	tr, err := NewTracer(context.Background(), Config{
		ServiceName: "labctl",
		Tracing:     TracingConfig{Enabled: false},
	})
	if err != nil {
		t.Fatalf("NewTracer() returned error: %v", err)
	}

	_, span := tr.Start(context.Background(), "deploy.run")
	span.End()

	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() returned error: %v", err)
	}
}

// TestLoggerLevels tests level parsing fallback
func TestLoggerLevels(t *testing.T) {
	log, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger() returned error: %v", err)
	}
	if log.GetLevel().String() != "debug" {
		t.Errorf("Expected debug level, got %s", log.GetLevel())
	}

	log, err = NewLogger(LoggingConfig{Level: "nonsense"})
	if err != nil {
		t.Fatalf("NewLogger() returned error: %v", err)
	}
	if log.GetLevel().String() != "info" {
		t.Errorf("Expected info fallback, got %s", log.GetLevel())
	}
}
