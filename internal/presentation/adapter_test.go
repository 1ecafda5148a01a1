package presentation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/photonfoundry/beamroute/core"
	"github.com/photonfoundry/beamroute/model"
)

func verdictSet(version uint64, verdicts ...core.PathVerdict) *core.VerdictSet {
	set := &core.VerdictSet{
		Version:    version,
		ComputedAt: time.Now().UTC(),
		Verdicts:   make(map[core.RouteKey]core.PathVerdict, len(verdicts)),
	}
	for _, v := range verdicts {
		set.Verdicts[core.RouteKey{Source: v.Source, Destination: v.Destination}] = v
	}
	return set
}

func TestPublishLatestWins(t *testing.T) {
	p := NewPublisher(nil)

	if !p.Publish(verdictSet(2)) {
		t.Fatal("first publish rejected")
	}
	// A slower recomputation that started earlier finishes now: discarded.
	if p.Publish(verdictSet(1)) {
		t.Fatal("stale set accepted")
	}
	if p.Publish(verdictSet(2)) {
		t.Fatal("equal-version set accepted")
	}
	if !p.Publish(verdictSet(3)) {
		t.Fatal("newer set rejected")
	}
	if got := p.Latest().Version; got != 3 {
		t.Fatalf("latest version = %d, want 3", got)
	}
}

func TestRowsSortedAndFiltered(t *testing.T) {
	p := NewPublisher(nil)
	p.Publish(verdictSet(1,
		core.PathVerdict{Source: "ls5", Destination: "ld4", Status: core.StatusValid},
		core.PathVerdict{Source: "ls1", Destination: "ld8", Status: core.StatusBlocked},
		core.PathVerdict{Source: "ls1", Destination: "ld2", Status: core.StatusValid},
	))

	rows := p.Rows("", "")
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Destination != "ld2" || rows[1].Destination != "ld8" || rows[2].Source != "ls5" {
		t.Fatalf("rows out of order: %+v", rows)
	}

	rows = p.Rows("ls1", "")
	if len(rows) != 2 {
		t.Fatalf("source filter: got %d rows, want 2", len(rows))
	}
	rows = p.Rows("ls1", "ld8")
	if len(rows) != 1 || rows[0].Status != core.StatusBlocked {
		t.Fatalf("pair filter: rows = %+v", rows)
	}
}

func TestHandlerServesJSON(t *testing.T) {
	p := NewPublisher(nil)

	// Before any publish the endpoint reports unavailable.
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/verdicts", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d before first publish, want 503", rr.Code)
	}

	p.Publish(verdictSet(7,
		core.PathVerdict{Source: "ls1", Destination: "ld8", Status: core.StatusValid},
	))

	rr = httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/verdicts", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp struct {
		Version uint64 `json:"version"`
		Paths   []struct {
			Source  string `json:"source"`
			Status  string `json:"status"`
			Display struct {
				Label string `json:"label"`
				Tone  string `json:"tone"`
			} `json:"display"`
		} `json:"paths"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Version != 7 || len(resp.Paths) != 1 {
		t.Fatalf("response = %+v, want version 7 with one path", resp)
	}
	if resp.Paths[0].Display.Label != "VALID" || resp.Paths[0].Display.Tone != "ok" {
		t.Fatalf("display = %+v, want VALID/ok", resp.Paths[0].Display)
	}
}

func TestDescribeDevicePrecedence(t *testing.T) {
	cases := []struct {
		name string
		st   model.DeviceStatus
		want DeviceDisplay
	}{
		{
			"disconnected beats everything",
			model.DeviceStatus{State: model.StateOpen, Connected: false},
			DeviceDisplay{Label: "DISCONNECTED", Tone: ToneOffline},
		},
		{
			"interlock beats state",
			model.DeviceStatus{State: model.StateOpen, Interlock: model.InterlockActive, Connected: true},
			DeviceDisplay{Label: "INTERLOCKED", Tone: ToneAlert},
		},
		{
			"fault carries the error code",
			model.DeviceStatus{State: model.StateFault, ErrorCode: "OVERPRESSURE", Connected: true},
			DeviceDisplay{Label: "FAULT: OVERPRESSURE", Tone: ToneAlert},
		},
		{
			"settled open",
			model.DeviceStatus{State: model.StateOpen, Interlock: model.InterlockClear, Connected: true},
			DeviceDisplay{Label: "OPEN", Tone: ToneOK},
		},
		{
			"never heard from",
			model.DeviceStatus{State: model.StateUnknown, Connected: true},
			DeviceDisplay{Label: "NO DATA", Tone: ToneCaution},
		},
	}
	for _, tc := range cases {
		if got := DescribeDevice(tc.st); got != tc.want {
			t.Fatalf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}
