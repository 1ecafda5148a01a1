package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineCollector bundles Prometheus metrics for the validity engine and
// provides a ready-to-mount /metrics handler.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	TelemetryReceived  prometheus.Counter
	TelemetryMalformed prometheus.Counter
	TelemetryDropped   prometheus.Counter

	Recomputations    prometheus.Counter
	RecomputeDuration prometheus.Histogram

	// VerdictsByStatus is set after every completed recomputation,
	// labeled valid/blocked/indeterminate/disconnected.
	VerdictsByStatus *prometheus.GaugeVec

	TopologyDevices prometheus.Gauge
	TopologyEdges   prometheus.Gauge
	TopologyRoutes  prometheus.Gauge
}

// NewEngineCollector registers engine Prometheus metrics against the
// provided registerer, defaulting to the global registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	received, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_updates_total",
		Help: "Total number of telemetry updates accepted into the propagation bus.",
	}), "telemetry_updates_total")
	if err != nil {
		return nil, err
	}
	malformed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_updates_malformed_total",
		Help: "Telemetry updates dropped because they were malformed or named an unknown device.",
	}), "telemetry_updates_malformed_total")
	if err != nil {
		return nil, err
	}
	dropped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_updates_dropped_total",
		Help: "Telemetry updates evicted by the drop-oldest policy under ingestion pressure.",
	}), "telemetry_updates_dropped_total")
	if err != nil {
		return nil, err
	}

	recomputes, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verdict_recomputations_total",
		Help: "Completed verdict recomputations.",
	}), "verdict_recomputations_total")
	if err != nil {
		return nil, err
	}
	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "verdict_recompute_duration_seconds",
		Help:    "Verdict recomputation latency in seconds.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}), "verdict_recompute_duration_seconds")
	if err != nil {
		return nil, err
	}

	verdicts := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "path_verdicts",
		Help: "Current number of (source, destination) pairs per verdict status.",
	}, []string{"status"})
	verdicts, err = registerGaugeVec(reg, verdicts, "path_verdicts")
	if err != nil {
		return nil, err
	}

	devices, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "topology_devices",
		Help: "Number of devices declared in the loaded topology.",
	}), "topology_devices")
	if err != nil {
		return nil, err
	}
	edges, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "topology_edges",
		Help: "Number of edges in the loaded topology.",
	}), "topology_edges")
	if err != nil {
		return nil, err
	}
	routes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "topology_routes",
		Help: "Number of declared (source, destination) pairs.",
	}), "topology_routes")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:           gatherer,
		TelemetryReceived:  received,
		TelemetryMalformed: malformed,
		TelemetryDropped:   dropped,
		Recomputations:     recomputes,
		RecomputeDuration:  duration,
		VerdictsByStatus:   verdicts,
		TopologyDevices:    devices,
		TopologyEdges:      edges,
		TopologyRoutes:     routes,
	}, nil
}

// SetTopologyCounts records the static shape of the loaded topology.
func (c *EngineCollector) SetTopologyCounts(devices, edges, routes int) {
	if c == nil {
		return
	}
	c.TopologyDevices.Set(float64(devices))
	c.TopologyEdges.Set(float64(edges))
	c.TopologyRoutes.Set(float64(routes))
}

// SetVerdictCounts publishes the per-status pair counts of the latest
// completed verdict set.
func (c *EngineCollector) SetVerdictCounts(counts map[string]int) {
	if c == nil {
		return
	}
	for _, status := range []string{"valid", "blocked", "indeterminate", "disconnected"} {
		c.VerdictsByStatus.WithLabelValues(status).Set(float64(counts[status]))
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
