package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/photonfoundry/beamroute/model"
)

var (
	ErrDeviceExists   = errors.New("device already exists")
	ErrUnknownDevice  = errors.New("unknown device")
	ErrBadUpdate      = errors.New("invalid telemetry update")
	ErrBadDeviceInput = errors.New("invalid device definition")
)

// ChangeResult tells the propagation bus whether an update altered the
// normalized state and therefore warrants a recomputation.
type ChangeResult int

const (
	NoChange ChangeResult = iota
	StateChanged
)

// DeviceTable is the concurrency-safe store of live device status. The
// device set is fixed at topology-load time; telemetry only ever mutates
// status fields. All access goes through these methods.
//
// One table-wide lock guards all devices. The propagation bus is the only
// writer in normal operation, so updates for independent devices never
// actually contend; revisit with per-device locks if telemetry fan-in
// ever bypasses the bus worker.
type DeviceTable struct {
	mu      sync.RWMutex
	devices map[string]*model.DeviceStatus
	version uint64
}

// NewDeviceTable creates an empty table.
func NewDeviceTable() *DeviceTable {
	return &DeviceTable{devices: make(map[string]*model.DeviceStatus)}
}

// AddDevice registers a device from its static definition. New devices
// start unknown and disconnected until their first telemetry arrives.
func (t *DeviceTable) AddDevice(def model.DeviceDefinition) error {
	if def.ID == "" || !def.Class.Valid() {
		return fmt.Errorf("%w: id=%q class=%q", ErrBadDeviceInput, def.ID, def.Class)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.devices[def.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDeviceExists, def.ID)
	}
	t.devices[def.ID] = &model.DeviceStatus{
		ID:        def.ID,
		Class:     def.Class,
		State:     model.StateUnknown,
		Interlock: model.InterlockUnknown,
		Connected: false,
	}
	return nil
}

// Apply folds one telemetry update into the table. Absent fields keep the
// last-known value. It returns NoChange when the normalized status is
// identical to what was already stored, so downstream recomputation can be
// skipped for redundant updates.
func (t *DeviceTable) Apply(u model.TelemetryUpdate) (ChangeResult, error) {
	if u.DeviceID == "" {
		return NoChange, fmt.Errorf("%w: empty device id", ErrBadUpdate)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	dev, ok := t.devices[u.DeviceID]
	if !ok {
		return NoChange, fmt.Errorf("%w: %q", ErrUnknownDevice, u.DeviceID)
	}

	next := *dev
	if u.RawState != nil {
		next.State = NormalizeRawState(dev.Class, *u.RawState)
	}
	if u.Interlock != nil {
		if *u.Interlock {
			next.Interlock = model.InterlockActive
		} else {
			next.Interlock = model.InterlockClear
		}
	}
	if u.Connected != nil {
		next.Connected = *u.Connected
	} else if u.RawState != nil || u.Interlock != nil {
		// A device we hear from is reachable unless it says otherwise.
		next.Connected = true
	}
	if u.Error != nil {
		next.ErrorCode = *u.Error
	}

	if next == *dev {
		return NoChange, nil
	}
	*dev = next
	t.version++
	return StateChanged, nil
}

// Get returns a copy of one device's status.
func (t *DeviceTable) Get(id string) (model.DeviceStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dev, ok := t.devices[id]
	if !ok {
		return model.DeviceStatus{}, false
	}
	return *dev, true
}

// Snapshot returns a consistent copy of every device's status plus the
// table version it was taken at. Writers hold the write lock for the whole
// Apply, so a snapshot never observes a torn mix of pre- and post-update
// values.
func (t *DeviceTable) Snapshot() (map[string]model.DeviceStatus, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]model.DeviceStatus, len(t.devices))
	for id, dev := range t.devices {
		out[id] = *dev
	}
	return out, t.version
}

// Version returns the current mutation counter. It increments on every
// applied change, so equal versions imply identical snapshots.
func (t *DeviceTable) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// IDs returns all device IDs in sorted order.
func (t *DeviceTable) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.devices))
	for id := range t.devices {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered devices.
func (t *DeviceTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.devices)
}
