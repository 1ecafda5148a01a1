package core

import (
	"time"

	"github.com/photonfoundry/beamroute/model"
)

// VerdictStatus classifies the validity of one (source, destination) path.
type VerdictStatus string

const (
	// StatusValid: every segment is traversable, every device connected
	// and not interlocked.
	StatusValid VerdictStatus = "valid"
	// StatusBlocked: a device along the route is in a well-formed
	// "not routed" condition (deliberately closed, retracted, or
	// interlocked), or no route exists at all.
	StatusBlocked VerdictStatus = "blocked"
	// StatusIndeterminate: a device is faulted, reports an unrecognized
	// state, is in motion, or its interlock reading is unknown.
	StatusIndeterminate VerdictStatus = "indeterminate"
	// StatusDisconnected: a device along the route is unreachable.
	StatusDisconnected VerdictStatus = "disconnected"
)

// CauseReason names why a device obstructs a path.
type CauseReason string

const (
	ReasonDisconnected     CauseReason = "disconnected"
	ReasonFault            CauseReason = "fault"
	ReasonInvalidState     CauseReason = "invalid-state"
	ReasonMoving           CauseReason = "moving"
	ReasonNoTelemetry      CauseReason = "no-telemetry"
	ReasonInterlocked      CauseReason = "interlocked"
	ReasonInterlockUnknown CauseReason = "interlock-unknown"
	ReasonNotTraversable   CauseReason = "not-traversable"
	ReasonNoRoute          CauseReason = "no-route"
)

// Obstruction is one device standing in the way of a path, with the state
// it was observed in.
type Obstruction struct {
	DeviceID string            `json:"device_id"`
	Reason   CauseReason       `json:"reason"`
	State    model.DeviceState `json:"state"`
}

// PathVerdict is the derived validity classification for one pair. Cause
// is the single surfaced obstruction per the severity and route-order
// rules; Obstructions retains the full ordered list for diagnostics.
type PathVerdict struct {
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	Status      VerdictStatus `json:"status"`

	Cause        *Obstruction  `json:"cause,omitempty"`
	Obstructions []Obstruction `json:"obstructions,omitempty"`
}

// VerdictSet is one complete, internally consistent recomputation result.
// Version increases monotonically with each completed recomputation so
// consumers can discard stale in-flight sets. Recomputations are
// serialized, so a higher Version always carries an equal-or-newer
// TableVersion.
type VerdictSet struct {
	Version      uint64
	TableVersion uint64
	ComputedAt   time.Time
	Verdicts     map[RouteKey]PathVerdict
}

// Get returns the verdict for one pair.
func (s *VerdictSet) Get(source, destination string) (PathVerdict, bool) {
	v, ok := s.Verdicts[RouteKey{Source: source, Destination: destination}]
	return v, ok
}
