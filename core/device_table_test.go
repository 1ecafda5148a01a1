package core

import (
	"errors"
	"testing"

	"github.com/photonfoundry/beamroute/model"
)

func newTable(t *testing.T) *DeviceTable {
	t.Helper()
	table := NewDeviceTable()
	defs := []model.DeviceDefinition{
		{ID: "valve-1", Class: model.ClassGateValve},
		{ID: "shutter-1", Class: model.ClassShutter},
		{ID: "mirror-1", Class: model.ClassMirror},
	}
	for _, def := range defs {
		if err := table.AddDevice(def); err != nil {
			t.Fatalf("AddDevice(%s): %v", def.ID, err)
		}
	}
	return table
}

func intp(v int) *int       { return &v }
func boolp(v bool) *bool    { return &v }
func strp(v string) *string { return &v }

func TestAddDeviceDuplicate(t *testing.T) {
	table := newTable(t)
	err := table.AddDevice(model.DeviceDefinition{ID: "valve-1", Class: model.ClassGateValve})
	if !errors.Is(err, ErrDeviceExists) {
		t.Fatalf("duplicate add: err = %v, want ErrDeviceExists", err)
	}
}

func TestApplyNormalizesPerClass(t *testing.T) {
	table := newTable(t)

	cases := []struct {
		device string
		raw    int
		want   model.DeviceState
	}{
		{"valve-1", 0, model.StateClosed},
		{"valve-1", 1, model.StateOpen},
		{"valve-1", 2, model.StateMoving},
		{"valve-1", 3, model.StateFault},
		{"valve-1", 99, model.StateInvalid},
		{"shutter-1", 0, model.StateClosed},
		{"shutter-1", 1, model.StateOpen},
		{"shutter-1", 3, model.StateInvalid}, // shutters have no fault code
		{"mirror-1", 0, model.StateRetracted},
		{"mirror-1", 1, model.StateInserted},
		{"mirror-1", 2, model.StateMoving},
		{"mirror-1", -1, model.StateInvalid},
	}
	for _, tc := range cases {
		if _, err := table.Apply(model.TelemetryUpdate{DeviceID: tc.device, RawState: intp(tc.raw)}); err != nil {
			t.Fatalf("Apply(%s raw=%d): %v", tc.device, tc.raw, err)
		}
		got, _ := table.Get(tc.device)
		if got.State != tc.want {
			t.Fatalf("%s raw=%d normalized to %s, want %s", tc.device, tc.raw, got.State, tc.want)
		}
	}
}

func TestApplyReportsNoChange(t *testing.T) {
	table := newTable(t)

	res, err := table.Apply(model.TelemetryUpdate{DeviceID: "valve-1", RawState: intp(1)})
	if err != nil || res != StateChanged {
		t.Fatalf("first update: res=%v err=%v, want StateChanged", res, err)
	}
	// Same raw value again: normalized status is unchanged.
	res, err = table.Apply(model.TelemetryUpdate{DeviceID: "valve-1", RawState: intp(1)})
	if err != nil || res != NoChange {
		t.Fatalf("redundant update: res=%v err=%v, want NoChange", res, err)
	}

	v := table.Version()
	if _, err := table.Apply(model.TelemetryUpdate{DeviceID: "valve-1", RawState: intp(1)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if table.Version() != v {
		t.Fatal("version advanced on a NoChange update")
	}
}

func TestApplyUnknownDevice(t *testing.T) {
	table := newTable(t)
	_, err := table.Apply(model.TelemetryUpdate{DeviceID: "ghost", RawState: intp(1)})
	if !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("err = %v, want ErrUnknownDevice", err)
	}
	_, err = table.Apply(model.TelemetryUpdate{RawState: intp(1)})
	if !errors.Is(err, ErrBadUpdate) {
		t.Fatalf("err = %v, want ErrBadUpdate", err)
	}
}

// TestPartialUpdateMerges: fields absent from an update keep their
// last-known values, so interlock-only updates work.
func TestPartialUpdateMerges(t *testing.T) {
	table := newTable(t)

	if _, err := table.Apply(model.TelemetryUpdate{DeviceID: "shutter-1", RawState: intp(1)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := table.Apply(model.TelemetryUpdate{DeviceID: "shutter-1", Interlock: boolp(true)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, _ := table.Get("shutter-1")
	if got.State != model.StateOpen {
		t.Fatalf("state = %s, want open preserved across interlock-only update", got.State)
	}
	if got.Interlock != model.InterlockActive {
		t.Fatalf("interlock = %s, want active", got.Interlock)
	}
	if !got.Connected {
		t.Fatal("device that reported in is not marked connected")
	}
}

// TestDisconnectIsExplicitState: losing telemetry keeps the last-known
// state but flips Connected, and a later reconnect restores it.
func TestDisconnectIsExplicitState(t *testing.T) {
	table := newTable(t)

	if _, err := table.Apply(model.TelemetryUpdate{DeviceID: "valve-1", RawState: intp(1)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	res, err := table.Apply(model.TelemetryUpdate{DeviceID: "valve-1", Connected: boolp(false)})
	if err != nil || res != StateChanged {
		t.Fatalf("disconnect: res=%v err=%v, want StateChanged", res, err)
	}

	got, _ := table.Get("valve-1")
	if got.Connected {
		t.Fatal("device still connected after disconnect update")
	}
	if got.State != model.StateOpen {
		t.Fatalf("state = %s, want last-known open retained", got.State)
	}
}

func TestApplyErrorCode(t *testing.T) {
	table := newTable(t)
	if _, err := table.Apply(model.TelemetryUpdate{DeviceID: "valve-1", RawState: intp(3), Error: strp("PRESSURE INTERLOCK")}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, _ := table.Get("valve-1")
	if got.State != model.StateFault || got.ErrorCode != "PRESSURE INTERLOCK" {
		t.Fatalf("got %+v, want fault with error code", got)
	}
}

// TestSnapshotIsolated: mutating the table after a snapshot does not leak
// into the copy.
func TestSnapshotIsolated(t *testing.T) {
	table := newTable(t)
	if _, err := table.Apply(model.TelemetryUpdate{DeviceID: "valve-1", RawState: intp(1)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	snap, version := table.Snapshot()
	if _, err := table.Apply(model.TelemetryUpdate{DeviceID: "valve-1", RawState: intp(0)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if snap["valve-1"].State != model.StateOpen {
		t.Fatalf("snapshot mutated: %s", snap["valve-1"].State)
	}
	if table.Version() <= version {
		t.Fatal("version did not advance after a change")
	}
}
