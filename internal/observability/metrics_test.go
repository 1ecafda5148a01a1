package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCollectorCountsAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.TelemetryReceived.Inc()
	collector.TelemetryReceived.Inc()
	collector.TelemetryDropped.Inc()
	collector.Recomputations.Inc()
	collector.RecomputeDuration.Observe(0.002)

	if got := testutil.ToFloat64(collector.TelemetryReceived); got != 2 {
		t.Fatalf("telemetry_updates_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.TelemetryDropped); got != 1 {
		t.Fatalf("telemetry_updates_dropped_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "verdict_recompute_duration_seconds"); count != 1 {
		t.Fatalf("verdict_recompute_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestCollectorSecondRegistrationReusesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	first.TelemetryReceived.Inc()

	second, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("second NewEngineCollector: %v", err)
	}
	if got := testutil.ToFloat64(second.TelemetryReceived); got != 1 {
		t.Fatalf("second collector did not reuse registered counter: got %v, want 1", got)
	}
}

func TestMetricsHandlerExposesVerdictGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	collector.SetTopologyCounts(7, 9, 12)
	collector.SetVerdictCounts(map[string]int{"valid": 3, "blocked": 8, "indeterminate": 1})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"telemetry_updates_total",
		"verdict_recomputations_total",
		"path_verdicts",
		"topology_devices",
		"topology_edges",
		"topology_routes",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}

	// An unreported status still appears at zero so dashboards never gap.
	if got := testutil.ToFloat64(collector.VerdictsByStatus.WithLabelValues("disconnected")); got != 0 {
		t.Fatalf("disconnected gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(collector.VerdictsByStatus.WithLabelValues("blocked")); got != 8 {
		t.Fatalf("blocked gauge = %v, want 8", got)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name || mf.GetType() != dto.MetricType_HISTOGRAM {
			continue
		}
		for _, m := range mf.Metric {
			if h := m.GetHistogram(); h != nil {
				return h.GetSampleCount()
			}
		}
	}
	return 0
}
