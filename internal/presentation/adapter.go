package presentation

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/photonfoundry/beamroute/core"
	"github.com/photonfoundry/beamroute/internal/logging"
	"github.com/photonfoundry/beamroute/model"
)

// Tone is a presentation hint for rendering a status, deliberately
// decoupled from any concrete color scheme.
type Tone string

const (
	ToneOK      Tone = "ok"
	ToneAlert   Tone = "alert"
	ToneCaution Tone = "caution"
	ToneOffline Tone = "offline"
)

// DeviceDisplay is the render-ready description of one device status.
type DeviceDisplay struct {
	Label string `json:"label"`
	Tone  Tone   `json:"tone"`
}

// DescribeDevice maps a device status to a display descriptor. The lookup
// is total: any status renders to something, never an error.
func DescribeDevice(st model.DeviceStatus) DeviceDisplay {
	if !st.Connected {
		return DeviceDisplay{Label: "DISCONNECTED", Tone: ToneOffline}
	}
	if st.Interlock == model.InterlockActive {
		return DeviceDisplay{Label: "INTERLOCKED", Tone: ToneAlert}
	}

	switch st.State {
	case model.StateOpen:
		return DeviceDisplay{Label: "OPEN", Tone: ToneOK}
	case model.StateClosed:
		return DeviceDisplay{Label: "CLOSED", Tone: ToneCaution}
	case model.StateInserted:
		return DeviceDisplay{Label: "INSERTED", Tone: ToneOK}
	case model.StateRetracted:
		return DeviceDisplay{Label: "RETRACTED", Tone: ToneCaution}
	case model.StateMoving:
		return DeviceDisplay{Label: "MOVING", Tone: ToneCaution}
	case model.StateFault:
		label := "FAULT"
		if st.ErrorCode != "" {
			label = "FAULT: " + st.ErrorCode
		}
		return DeviceDisplay{Label: label, Tone: ToneAlert}
	case model.StateUnknown:
		return DeviceDisplay{Label: "NO DATA", Tone: ToneCaution}
	default:
		return DeviceDisplay{Label: "INVALID", Tone: ToneAlert}
	}
}

// DescribeVerdict maps a path status to a display descriptor.
func DescribeVerdict(status core.VerdictStatus) DeviceDisplay {
	switch status {
	case core.StatusValid:
		return DeviceDisplay{Label: "VALID", Tone: ToneOK}
	case core.StatusBlocked:
		return DeviceDisplay{Label: "BLOCKED", Tone: ToneAlert}
	case core.StatusDisconnected:
		return DeviceDisplay{Label: "DISCONNECTED", Tone: ToneOffline}
	default:
		return DeviceDisplay{Label: "INDETERMINATE", Tone: ToneCaution}
	}
}

// PathRow is one path verdict plus its display descriptor, ready for a
// consumer to render without knowing the classification rules.
type PathRow struct {
	core.PathVerdict
	Display DeviceDisplay `json:"display"`
}

// Publisher retains the latest verdict set and serves it over HTTP.
// Publishing is latest-wins by set version, so a slow in-flight
// recomputation can never overwrite a newer result.
type Publisher struct {
	log logging.Logger

	mu     sync.RWMutex
	latest *core.VerdictSet
}

// NewPublisher creates a Publisher with no verdicts yet.
func NewPublisher(log logging.Logger) *Publisher {
	if log == nil {
		log = logging.Noop()
	}
	return &Publisher{log: log}
}

// Publish installs a verdict set unless one at least as new is already
// held. It returns false when the set was stale and discarded.
func (p *Publisher) Publish(set *core.VerdictSet) bool {
	if set == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest != nil && set.Version <= p.latest.Version {
		return false
	}
	p.latest = set
	return true
}

// Latest returns the most recent verdict set, or nil before the first
// publish.
func (p *Publisher) Latest() *core.VerdictSet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Rows flattens the latest set into render-ready rows in deterministic
// (source, destination) order, optionally filtered by source and/or
// destination. Empty filters match everything.
func (p *Publisher) Rows(source, destination string) []PathRow {
	set := p.Latest()
	if set == nil {
		return nil
	}

	rows := make([]PathRow, 0, len(set.Verdicts))
	for _, v := range set.Verdicts {
		if source != "" && v.Source != source {
			continue
		}
		if destination != "" && v.Destination != destination {
			continue
		}
		rows = append(rows, PathRow{PathVerdict: v, Display: DescribeVerdict(v.Status)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Source != rows[j].Source {
			return rows[i].Source < rows[j].Source
		}
		return rows[i].Destination < rows[j].Destination
	})
	return rows
}

type verdictsResponse struct {
	Version    uint64    `json:"version"`
	ComputedAt time.Time `json:"computed_at"`
	Paths      []PathRow `json:"paths"`
}

// Handler serves the latest verdicts as JSON. Supports ?source= and
// ?destination= filters. Responds 503 until the first set is published.
func (p *Publisher) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		set := p.Latest()
		if set == nil {
			http.Error(w, "no verdicts computed yet", http.StatusServiceUnavailable)
			return
		}

		resp := verdictsResponse{
			Version:    set.Version,
			ComputedAt: set.ComputedAt,
			Paths:      p.Rows(r.URL.Query().Get("source"), r.URL.Query().Get("destination")),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			p.log.Warn(r.Context(), "encoding verdicts response failed", logging.Err(err))
		}
	})
}
