// Package history records every coordinate delivered to a device, for audit
// and replay inspection. Backends are pluggable; the in-memory ring is the
// default.
package history

import (
	"context"
	"log"
	"time"

	"github.com/omnihq/omnilocation-go/internal/sim"
)

// Fix is one recorded position delivery.
type Fix struct {
	SessionID string    `json:"session_id"`
	DeviceID  string    `json:"device_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	At        time.Time `json:"at"`
}

// Query filters recorded fixes. Zero fields match everything; results are
// chronological and capped at Limit (default 1000).
type Query struct {
	SessionID string
	DeviceID  string
	From      time.Time
	To        time.Time
	Limit     int
}

const DefaultLimit = 1000

// EffectiveLimit clamps the requested limit to (0, DefaultLimit].
func (q Query) EffectiveLimit() int {
	if q.Limit <= 0 || q.Limit > DefaultLimit {
		return DefaultLimit
	}
	return q.Limit
}

// Matches reports whether the fix passes the query filters.
func (q Query) Matches(f Fix) bool {
	if q.SessionID != "" && f.SessionID != q.SessionID {
		return false
	}
	if q.DeviceID != "" && f.DeviceID != q.DeviceID {
		return false
	}
	if !q.From.IsZero() && f.At.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && f.At.After(q.To) {
		return false
	}
	return true
}

// Store persists fixes in a concrete backend.
type Store interface {
	Append(ctx context.Context, fixes []Fix) error
	Recent(ctx context.Context, q Query) ([]Fix, error)
	Close()
}

// RecordingSink wraps a device sink and appends every successful delivery to
// the store. Recording failures are logged, never propagated: history must
// not take the simulation down.
type RecordingSink struct {
	DeviceID string
	Inner    sim.Sink
	Store    Store

	// Session supplies the current run ID at delivery time.
	Session func() string
}

func (s *RecordingSink) Push(ctx context.Context, lat, lon float64) error {
	if err := s.Inner.Push(ctx, lat, lon); err != nil {
		return err
	}
	fix := Fix{
		DeviceID: s.DeviceID,
		Lat:      lat,
		Lon:      lon,
		At:       time.Now(),
	}
	if s.Session != nil {
		fix.SessionID = s.Session()
	}
	if err := s.Store.Append(ctx, []Fix{fix}); err != nil {
		log.Printf("[history] append for %s failed: %v", s.DeviceID, err)
	}
	return nil
}
