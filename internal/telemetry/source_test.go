package telemetry

import (
	"testing"

	"github.com/photonfoundry/beamroute/model"
)

func TestDecodeUpdate(t *testing.T) {
	payload := []byte(`{"device_id":"valve-ls1","raw_state":1,"interlock":false,"connected":true}`)
	update, err := DecodeUpdate(payload)
	if err != nil {
		t.Fatalf("DecodeUpdate: %v", err)
	}
	if update.DeviceID != "valve-ls1" {
		t.Fatalf("device_id = %q, want valve-ls1", update.DeviceID)
	}
	if update.RawState == nil || *update.RawState != 1 {
		t.Fatalf("raw_state = %v, want 1", update.RawState)
	}
	if update.Interlock == nil || *update.Interlock {
		t.Fatalf("interlock = %v, want false", update.Interlock)
	}
	if update.EventID == "" {
		t.Fatal("decoded update has no event id")
	}
}

func TestDecodeUpdatePartialFieldsStayNil(t *testing.T) {
	update, err := DecodeUpdate([]byte(`{"device_id":"shutter-ls5","interlock":true}`))
	if err != nil {
		t.Fatalf("DecodeUpdate: %v", err)
	}
	if update.RawState != nil || update.Connected != nil || update.Error != nil {
		t.Fatalf("absent fields decoded non-nil: %+v", update)
	}
	if update.Interlock == nil || !*update.Interlock {
		t.Fatalf("interlock = %v, want true", update.Interlock)
	}
}

func TestDecodeUpdateKeepsProvidedEventID(t *testing.T) {
	update, err := DecodeUpdate([]byte(`{"device_id":"v1","event_id":"abc-123"}`))
	if err != nil {
		t.Fatalf("DecodeUpdate: %v", err)
	}
	if update.EventID != "abc-123" {
		t.Fatalf("event_id = %q, want abc-123", update.EventID)
	}
}

func TestDecodeUpdateRejectsBadInput(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"garbage", `{not json`},
		{"missing device id", `{"raw_state":1}`},
		{"empty device id", `{"device_id":""}`},
	}
	for _, tc := range cases {
		if _, err := DecodeUpdate([]byte(tc.payload)); err == nil {
			t.Fatalf("%s: DecodeUpdate accepted %q", tc.name, tc.payload)
		}
	}
}

func TestNewSourceValidation(t *testing.T) {
	submit := func(model.TelemetryUpdate) bool { return true }
	if _, err := NewSource(Config{}, submit); err == nil {
		t.Fatal("NewSource accepted an empty address")
	}
	if _, err := NewSource(Config{Addr: "tcp://127.0.0.1:9750"}, nil); err == nil {
		t.Fatal("NewSource accepted a nil submit function")
	}
}
