package core

import (
	"sync"
	"time"

	"github.com/photonfoundry/beamroute/model"
)

// ValidityResolver derives a PathVerdict for every declared (source,
// destination) pair from the static topology and a consistent device
// snapshot. Recomputation is total: it cannot fail for any combination of
// device states once the topology has loaded.
type ValidityResolver struct {
	topo  *Topology
	table *DeviceTable

	// computeMu serializes whole recomputations, snapshot through version
	// assignment. Without it a slow full recompute could snapshot before a
	// concurrent incremental one and still finish later, taking a higher
	// Version for an older table state; latest-wins consumers would then
	// keep the stale set.
	computeMu sync.Mutex

	mu   sync.Mutex
	seq  uint64
	last *VerdictSet
}

// NewValidityResolver creates a resolver over a loaded topology and its
// device table.
func NewValidityResolver(topo *Topology, table *DeviceTable) *ValidityResolver {
	return &ValidityResolver{topo: topo, table: table}
}

// RecomputeAll evaluates every declared pair against a fresh snapshot.
func (r *ValidityResolver) RecomputeAll() *VerdictSet {
	return r.recompute(nil)
}

// Recompute evaluates only the pairs whose route traverses one of the
// affected devices, carrying the remaining pairs over from the previous
// set. This is an optimization, not a correctness requirement: changing a
// device off a pair's route never changes that pair's verdict, so the
// result is identical to RecomputeAll. With no previous set it falls back
// to a full recomputation.
func (r *ValidityResolver) Recompute(affected map[string]struct{}) *VerdictSet {
	if len(affected) == 0 {
		return r.RecomputeAll()
	}
	return r.recompute(affected)
}

// Last returns the most recently completed verdict set, or nil before the
// first recomputation.
func (r *ValidityResolver) Last() *VerdictSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *ValidityResolver) recompute(affected map[string]struct{}) *VerdictSet {
	r.computeMu.Lock()
	defer r.computeMu.Unlock()

	snapshot, tableVersion := r.table.Snapshot()

	r.mu.Lock()
	prev := r.last
	r.mu.Unlock()

	var pairs []RouteKey
	if affected == nil || prev == nil {
		pairs = r.topo.Pairs()
		prev = nil
	} else {
		pairs = r.topo.PairsThrough(affected)
	}

	verdicts := make(map[RouteKey]PathVerdict, len(r.topo.Pairs()))
	if prev != nil {
		for key, v := range prev.Verdicts {
			verdicts[key] = v
		}
	}
	for _, key := range pairs {
		verdicts[key] = r.evaluatePair(key, snapshot)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	set := &VerdictSet{
		Version:      r.seq,
		TableVersion: tableVersion,
		ComputedAt:   time.Now().UTC(),
		Verdicts:     verdicts,
	}
	r.last = set
	return set
}

// evaluatePair walks the route in order from the source and classifies
// each device. Disconnection anywhere on the route dominates the verdict;
// otherwise the first obstruction in route order decides between BLOCKED
// and INDETERMINATE, so the surfaced cause is always the obstruction
// closest to the source within the winning severity.
func (r *ValidityResolver) evaluatePair(key RouteKey, snapshot map[string]model.DeviceStatus) PathVerdict {
	verdict := PathVerdict{
		Source:      key.Source,
		Destination: key.Destination,
	}

	route, ok := r.topo.Route(key.Source, key.Destination)
	if !ok {
		verdict.Status = StatusBlocked
		verdict.Obstructions = []Obstruction{{Reason: ReasonNoRoute}}
		verdict.Cause = &verdict.Obstructions[0]
		return verdict
	}

	for _, edge := range route {
		st, known := snapshot[edge.DeviceID]
		if !known {
			// The topology validated every device reference, so this
			// only happens when the table was built elsewhere. Treat
			// it like a device we have never heard from.
			st = model.DeviceStatus{ID: edge.DeviceID, State: model.StateUnknown}
		}
		if obs, blocked := classifyDevice(st, edge); blocked {
			verdict.Obstructions = append(verdict.Obstructions, obs)
		}
	}

	if len(verdict.Obstructions) == 0 {
		verdict.Status = StatusValid
		return verdict
	}

	cause := verdict.Obstructions[0]
	status := statusFor(cause.Reason)
	for _, obs := range verdict.Obstructions {
		if obs.Reason == ReasonDisconnected {
			cause = obs
			status = StatusDisconnected
			break
		}
	}
	verdict.Status = status
	verdict.Cause = &cause
	return verdict
}

// classifyDevice applies the per-device rules in severity order. The
// returned obstruction is zero-valued when the device lets the beam pass.
func classifyDevice(st model.DeviceStatus, edge *Edge) (Obstruction, bool) {
	obs := Obstruction{DeviceID: st.ID, State: st.State}

	switch {
	case !st.Connected:
		obs.Reason = ReasonDisconnected
	case st.State == model.StateFault:
		obs.Reason = ReasonFault
	case st.State == model.StateInvalid:
		obs.Reason = ReasonInvalidState
	case st.State == model.StateMoving:
		obs.Reason = ReasonMoving
	case st.State == model.StateUnknown:
		obs.Reason = ReasonNoTelemetry
	case st.Interlock == model.InterlockActive:
		obs.Reason = ReasonInterlocked
	case st.Interlock == model.InterlockUnknown:
		obs.Reason = ReasonInterlockUnknown
	case !edge.traversable(st.State):
		obs.Reason = ReasonNotTraversable
	default:
		return Obstruction{}, false
	}
	return obs, true
}

// statusFor maps an obstruction reason to the verdict status it implies
// when it is the winning cause.
func statusFor(reason CauseReason) VerdictStatus {
	switch reason {
	case ReasonDisconnected:
		return StatusDisconnected
	case ReasonInterlocked, ReasonNotTraversable, ReasonNoRoute:
		return StatusBlocked
	default:
		// fault, invalid-state, moving, no-telemetry, interlock-unknown
		return StatusIndeterminate
	}
}
