package bus

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/photonfoundry/beamroute/core"
	"github.com/photonfoundry/beamroute/internal/logging"
	"github.com/photonfoundry/beamroute/internal/observability"
	"github.com/photonfoundry/beamroute/model"
)

const defaultQueueSize = 256

// Config wires a PropagationBus to its collaborators. Logger, Collector,
// and Publish are all optional.
type Config struct {
	// QueueSize bounds the number of distinct devices with a pending
	// update. Zero means the default.
	QueueSize int
	Logger    logging.Logger
	Collector *observability.EngineCollector
	// Publish is invoked with every verdict set produced by the bus
	// worker, in version order.
	Publish func(*core.VerdictSet)
}

// PropagationBus serializes telemetry ingestion: producers submit updates
// from any goroutine, a single worker applies them to the device table and
// triggers recomputation, so verdict sets are produced in a strict order.
//
// Pending updates are coalesced per device. A second update for a device
// that already has one queued merges into it instead of growing the queue,
// so a chatty device cannot starve the rest. When the queue is full the
// oldest pending device is evicted to make room.
type PropagationBus struct {
	engine    *core.Engine
	log       logging.Logger
	collector *observability.EngineCollector
	publish   func(*core.VerdictSet)
	metrics   *Metrics
	capacity  int

	mu      sync.Mutex
	order   []string
	pending map[string]model.TelemetryUpdate

	wake chan struct{}
}

// New creates a bus over an engine. Run must be called for submitted
// updates to take effect, or tests may drive ProcessPending directly.
func New(engine *core.Engine, cfg Config) *PropagationBus {
	log := cfg.Logger
	if log == nil {
		log = logging.Noop()
	}
	capacity := cfg.QueueSize
	if capacity <= 0 {
		capacity = defaultQueueSize
	}
	return &PropagationBus{
		engine:    engine,
		log:       log,
		collector: cfg.Collector,
		publish:   cfg.Publish,
		metrics:   NewMetrics(),
		capacity:  capacity,
		pending:   make(map[string]model.TelemetryUpdate),
		wake:      make(chan struct{}, 1),
	}
}

// Submit enqueues a telemetry update without blocking. It returns false
// when the update is malformed and was discarded.
func (b *PropagationBus) Submit(u model.TelemetryUpdate) bool {
	if u.DeviceID == "" {
		b.metrics.IncMalformed()
		if b.collector != nil {
			b.collector.TelemetryMalformed.Inc()
		}
		b.log.Warn(context.Background(), "dropping telemetry update without device id")
		return false
	}

	b.mu.Lock()
	if prev, ok := b.pending[u.DeviceID]; ok {
		b.pending[u.DeviceID] = mergeUpdates(prev, u)
		b.metrics.IncCoalesced()
	} else {
		if len(b.order) >= b.capacity {
			evicted := b.order[0]
			b.order = b.order[1:]
			delete(b.pending, evicted)
			b.metrics.IncDropped()
			if b.collector != nil {
				b.collector.TelemetryDropped.Inc()
			}
			b.log.Warn(context.Background(), "telemetry queue full, evicting oldest pending update",
				logging.String("device_id", evicted))
		}
		b.order = append(b.order, u.DeviceID)
		b.pending[u.DeviceID] = u
	}
	b.mu.Unlock()

	b.metrics.IncReceived()
	if b.collector != nil {
		b.collector.TelemetryReceived.Inc()
	}

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return true
}

// Run processes submitted updates until the context is cancelled.
func (b *PropagationBus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
			b.ProcessPending(ctx)
		}
	}
}

// ProcessPending drains the queue once: every pending update is applied to
// the device table, and one recomputation covers all devices that actually
// changed. It returns the number of updates applied.
//
// Exported so tests and shutdown paths can drive the bus synchronously.
func (b *PropagationBus) ProcessPending(ctx context.Context) int {
	b.mu.Lock()
	if len(b.order) == 0 {
		b.mu.Unlock()
		return 0
	}
	order := b.order
	pending := b.pending
	b.order = nil
	b.pending = make(map[string]model.TelemetryUpdate)
	b.mu.Unlock()

	changed := make(map[string]struct{})
	applied := 0
	for _, id := range order {
		u := pending[id]
		uctx, log := b.eventLogger(ctx, u.EventID)
		res, err := b.engine.Table.Apply(u)
		if err != nil {
			b.metrics.IncMalformed()
			if b.collector != nil {
				b.collector.TelemetryMalformed.Inc()
			}
			log.Warn(uctx, "rejecting telemetry update",
				logging.String("device_id", u.DeviceID), logging.Err(err))
			continue
		}
		applied++
		if res == core.StateChanged {
			changed[id] = struct{}{}
		}
	}

	if len(changed) == 0 {
		return applied
	}

	tracer := otel.Tracer("beamroute/bus")
	sctx, span := tracer.Start(ctx, "bus.recompute")
	span.SetAttributes(
		attribute.Int("devices.changed", len(changed)),
		attribute.Int("updates.applied", applied),
	)
	start := time.Now()
	set := b.engine.Resolver.Recompute(changed)
	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int64("verdicts.version", int64(set.Version)))
	span.End()

	b.metrics.IncRecomputes()
	if b.collector != nil {
		b.collector.Recomputations.Inc()
		b.collector.RecomputeDuration.Observe(elapsed.Seconds())
		b.collector.SetVerdictCounts(statusCounts(set))
	}

	b.log.Debug(sctx, "verdicts recomputed",
		logging.Int("changed_devices", len(changed)),
		logging.Any("verdict_version", set.Version))

	if b.publish != nil {
		b.publish(set)
	}
	return applied
}

// Metrics returns the bus's in-memory counters.
func (b *PropagationBus) Metrics() MetricsSnapshot {
	return b.metrics.Snapshot()
}

func (b *PropagationBus) eventLogger(ctx context.Context, eventID string) (context.Context, logging.Logger) {
	ctx, _ = logging.ContextWithEventID(ctx, eventID)
	return logging.WithEventLogger(ctx, b.log)
}

func statusCounts(set *core.VerdictSet) map[string]int {
	counts := make(map[string]int, 4)
	for _, v := range set.Verdicts {
		counts[string(v.Status)]++
	}
	return counts
}

// mergeUpdates coalesces next onto prev: fields present in next win, the
// rest keep prev's values.
func mergeUpdates(prev, next model.TelemetryUpdate) model.TelemetryUpdate {
	merged := prev
	if next.RawState != nil {
		merged.RawState = next.RawState
	}
	if next.Interlock != nil {
		merged.Interlock = next.Interlock
	}
	if next.Connected != nil {
		merged.Connected = next.Connected
	}
	if next.Error != nil {
		merged.Error = next.Error
	}
	if next.EventID != "" {
		merged.EventID = next.EventID
	}
	return merged
}
