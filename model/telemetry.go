package model

// TelemetryUpdate is one discrete status event for a single device, as
// delivered by the device-communication layer. Fields other than DeviceID
// are optional; absent fields leave the last-known value untouched, so a
// controller that publishes interlock and position on separate channels
// still produces well-formed updates.
type TelemetryUpdate struct {
	DeviceID string `json:"device_id"`

	// RawState is the class-specific raw position/state code. The engine
	// normalizes it; unrecognized codes become StateInvalid.
	RawState *int `json:"raw_state,omitempty"`

	// Interlock is the safety interlock reading, true when the interlock
	// is active (forcing the device into a blocking state).
	Interlock *bool `json:"interlock,omitempty"`

	// Connected reports whether the device is reachable. A false value is
	// an explicit state, not the absence of the device.
	Connected *bool `json:"connected,omitempty"`

	// Error is an optional device-reported error string.
	Error *string `json:"error,omitempty"`

	// EventID correlates this update across log lines. Assigned by the
	// telemetry source when missing.
	EventID string `json:"event_id,omitempty"`
}
