package model

// DeviceClass identifies which kind of switching element a device is.
// The set is closed: the topology loader rejects anything else.
type DeviceClass string

const (
	// ClassShutter is a laser safety shutter with open/close readbacks
	// and an LSS interlock flag.
	ClassShutter DeviceClass = "shutter"
	// ClassGateValve is a pneumatic vacuum gate valve, used at source
	// entries and destination exits.
	ClassGateValve DeviceClass = "gate_valve"
	// ClassMirror is a motorized mirror assembly on a linear stage that
	// either sits in the beam path (inserted) or out of it (retracted).
	ClassMirror DeviceClass = "mirror"
)

// Valid reports whether c is one of the known device classes.
func (c DeviceClass) Valid() bool {
	switch c {
	case ClassShutter, ClassGateValve, ClassMirror:
		return true
	}
	return false
}

// DeviceState is the semantic state a device's raw telemetry normalizes to.
// The per-class mapping lives in core; every class uses a subset of these.
type DeviceState string

const (
	// StateUnknown is the state of a device before its first telemetry
	// update arrives.
	StateUnknown DeviceState = "unknown"

	StateOpen      DeviceState = "open"
	StateClosed    DeviceState = "closed"
	StateInserted  DeviceState = "inserted"
	StateRetracted DeviceState = "retracted"
	StateMoving    DeviceState = "moving"

	// StateFault is a fault the hardware itself reports (e.g. a valve
	// position-error bit).
	StateFault DeviceState = "fault"
	// StateInvalid is what unrecognized raw values normalize to. Raw
	// codes are never dropped silently.
	StateInvalid DeviceState = "invalid"
)

// InterlockState is the tri-state safety interlock reading. Telemetry may
// omit the interlock flag, so "unknown" is representable and distinct from
// both clear and active.
type InterlockState int

const (
	InterlockUnknown InterlockState = iota
	InterlockClear
	InterlockActive
)

func (s InterlockState) String() string {
	switch s {
	case InterlockClear:
		return "clear"
	case InterlockActive:
		return "active"
	default:
		return "unknown"
	}
}

// DeviceDefinition is the static identity of a device, declared in the
// topology config. Devices are created at load time and never destroyed
// during a session.
type DeviceDefinition struct {
	ID    string      `yaml:"id" json:"id" validate:"required"`
	Name  string      `yaml:"name" json:"name"`
	Class DeviceClass `yaml:"class" json:"class" validate:"required"`
}

// DeviceStatus is the live, normalized view of one device. It is mutated
// only through the device table; readers get copies.
type DeviceStatus struct {
	ID    string
	Class DeviceClass

	State     DeviceState
	Interlock InterlockState
	// Connected is false until the first update arrives and whenever the
	// telemetry layer reports loss of contact. A disconnected device still
	// carries its last-known State for diagnostics.
	Connected bool
	// ErrorCode is the optional device-reported error string.
	ErrorCode string
}
