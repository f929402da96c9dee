// Package sim implements the route playback engine: a single pausable,
// resumable, loopable session that fans perturbed coordinates out to an
// arbitrary set of device sinks on a fixed tick cadence.
package sim

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omnihq/omnilocation-go/pkg/gpx"
)

// Sink delivers one coordinate to one device. Implementations should honor
// the context deadline; the session time-boxes every call regardless.
type Sink interface {
	Push(ctx context.Context, lat, lon float64) error
}

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	TickInterval    time.Duration // pacing loop cadence, default 300ms
	PushTimeout     time.Duration // per-device push deadline, default 2s
	SigmaMeters     float64       // jitter stddev, default 3m
	MaxTickFailures int           // consecutive internal failures before degrading, default 3
	Rand            rand.Source   // jitter randomness, nil for time-seeded

	// OnSnapshot is invoked after every emission and state transition with a
	// read-consistent copy. Called without the session lock held.
	OnSnapshot func(Snapshot)
}

// StartRequest carries the validated inputs for one run. The sink set is
// fixed for the lifetime of the Running/Paused cycle; changing it requires a
// Reset.
type StartRequest struct {
	Route *gpx.Route
	Sinks map[string]Sink
	Loop  bool

	// Speed scales native timestamp pacing; 0 means 1.0.
	Speed float64
	// TargetDuration stretches playback to fit the given total duration. On a
	// timed route it is translated into an equivalent speed multiplier; on an
	// untimed route it is the pacing base (default: one second per point).
	TargetDuration time.Duration
}

// Session is the single process-wide playback orchestrator. One mutex guards
// every field; the pacing loop is the only writer of the index while running.
type Session struct {
	mu  sync.Mutex
	cfg Config

	jitter *Jitter

	state        State
	runID        string
	route        *gpx.Route
	sinks        map[string]Sink
	pacer        *pacer
	loop         bool
	index        int
	lastEmitted  int
	lastLat      float64
	lastLon      float64
	hasFix       bool
	devices      map[string]*DeviceStatus
	degraded     bool
	lastErr      string
	startedAt    time.Time
	updatedAt    time.Time
	tickFailures int
	cancel       context.CancelFunc
}

// New creates an idle session. Exactly one is constructed per process.
func New(cfg Config) *Session {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 300 * time.Millisecond
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 2 * time.Second
	}
	if cfg.SigmaMeters == 0 {
		cfg.SigmaMeters = 3.0
	}
	if cfg.MaxTickFailures <= 0 {
		cfg.MaxTickFailures = 3
	}
	return &Session{
		cfg:    cfg,
		jitter: NewJitter(cfg.SigmaMeters, cfg.Rand),
	}
}

// Start validates the request and launches the pacing loop. It fails without
// mutating state when the session is not idle or the inputs are invalid.
func (s *Session) Start(req StartRequest) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	if req.Route == nil || req.Route.PointCount() == 0 {
		s.mu.Unlock()
		return ErrNoRoute
	}
	if len(req.Sinks) == 0 {
		s.mu.Unlock()
		return ErrNoDevices
	}
	pc, err := newPacer(req.Route, req.Speed, req.TargetDuration)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	now := time.Now()
	s.runID = uuid.NewString()
	s.route = req.Route
	s.sinks = make(map[string]Sink, len(req.Sinks))
	s.devices = make(map[string]*DeviceStatus, len(req.Sinks))
	for id, sink := range req.Sinks {
		s.sinks[id] = sink
		s.devices[id] = &DeviceStatus{}
	}
	s.pacer = pc
	s.pacer.anchor(0, now)
	s.loop = req.Loop
	s.index = 0
	s.lastEmitted = -1
	s.lastLat = req.Route.Points[0].Lat
	s.lastLon = req.Route.Points[0].Lon
	s.hasFix = false
	s.degraded = false
	s.lastErr = ""
	s.tickFailures = 0
	s.startedAt = now
	s.updatedAt = now
	s.state = StateRunning

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	snap := s.snapshotLocked()
	s.mu.Unlock()

	go s.run(ctx)

	log.Printf("[sim] started run %s: %d points, %d devices, loop=%t", snap.SessionID, snap.PointCount, len(req.Sinks), req.Loop)
	s.publish(snap)
	return nil
}

// Pause stops index advancement while keeping the loop and the current index
// alive.
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = StatePaused
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	log.Printf("[sim] paused at index %d", snap.CurrentIndex)
	s.publish(snap)
	return nil
}

// Resume re-anchors the pacing origin at the current index and continues.
func (s *Session) Resume() error {
	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return ErrNotRunning
	}
	now := time.Now()
	s.pacer.anchor(s.index, now)
	s.state = StateRunning
	s.updatedAt = now
	snap := s.snapshotLocked()
	s.mu.Unlock()

	log.Printf("[sim] resumed at index %d", snap.CurrentIndex)
	s.publish(snap)
	return nil
}

// Reset returns the session to idle with index 0 and tears down the device
// target set. It succeeds from any state.
func (s *Session) Reset() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.state = StateIdle
	s.runID = ""
	s.route = nil
	s.sinks = nil
	s.devices = nil
	s.pacer = nil
	s.loop = false
	s.index = 0
	s.lastEmitted = -1
	s.hasFix = false
	s.degraded = false
	s.lastErr = ""
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	log.Printf("[sim] reset")
	s.publish(snap)
	return nil
}

// Snapshot returns a read-consistent copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:    s.runID,
		State:        s.state.String(),
		Running:      s.state == StateRunning,
		CurrentIndex: s.index,
		Loop:         s.loop,
		Degraded:     s.degraded,
		Error:        s.lastErr,
		StartedAt:    s.startedAt,
		UpdatedAt:    s.updatedAt,
	}
	if s.route != nil {
		snap.PointCount = s.route.PointCount()
	}
	if s.pacer != nil && s.pacer.mode == ModeNative {
		snap.Speed = s.pacer.speed
	}
	if s.hasFix {
		lat, lon := s.lastLat, s.lastLon
		snap.CurrentLat = &lat
		snap.CurrentLon = &lon
	}
	if len(s.devices) > 0 {
		snap.Devices = make(map[string]DeviceStatus, len(s.devices))
		for id, st := range s.devices {
			snap.Devices[id] = *st
		}
	}
	return snap
}

func (s *Session) publish(snap Snapshot) {
	if s.cfg.OnSnapshot != nil {
		s.cfg.OnSnapshot(snap)
	}
}

// run is the pacing loop. It is the only long-running background activity and
// observes Pause and Reset within one tick interval.
func (s *Session) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.tick(ctx, now) {
				return
			}
		}
	}
}

// tick performs one pacing step. Returning false terminates the loop.
func (s *Session) tick(ctx context.Context, now time.Time) bool {
	advance, err := s.step(ctx, now)
	if err == nil {
		s.mu.Lock()
		s.tickFailures = 0
		s.mu.Unlock()
		return advance
	}

	log.Printf("[sim] tick error: %v", err)
	s.mu.Lock()
	s.tickFailures++
	if s.tickFailures < s.cfg.MaxTickFailures {
		s.mu.Unlock()
		return true
	}
	// Too many consecutive failures: degrade instead of spinning.
	s.state = StateIdle
	s.degraded = true
	s.lastErr = err.Error()
	s.updatedAt = now
	cancel := s.cancel
	s.cancel = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	log.Printf("[sim] degraded to idle after %d consecutive tick failures", s.cfg.MaxTickFailures)
	s.publish(snap)
	return false
}

func (s *Session) step(ctx context.Context, now time.Time) (advance bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()

	s.mu.Lock()
	if ctx.Err() != nil {
		// This run was cancelled; a new Start may already own the session.
		s.mu.Unlock()
		return false, nil
	}
	switch s.state {
	case StateIdle:
		// Reset raced the tick; exit cleanly.
		s.mu.Unlock()
		return false, nil
	case StatePaused:
		s.mu.Unlock()
		return true, nil
	}

	idx, _, done := s.pacer.indexAt(now)
	if idx == s.lastEmitted && !done {
		s.mu.Unlock()
		return true, nil
	}
	if idx == s.lastEmitted && done && s.loop {
		// Final point already emitted; wrap to the start.
		s.pacer.anchor(0, now)
		s.index = 0
		s.lastEmitted = -1
		wp := s.route.Points[0]
		s.lastLat, s.lastLon = wp.Lat, wp.Lon
		s.updatedAt = now
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.publish(snap)
		return true, nil
	}
	if idx == s.lastEmitted && done {
		// Final point already emitted, no loop: settle into idle.
		s.state = StateIdle
		s.updatedAt = now
		cancel := s.cancel
		s.cancel = nil
		snap := s.snapshotLocked()
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		log.Printf("[sim] playback complete at index %d", snap.CurrentIndex)
		s.publish(snap)
		return false, nil
	}

	wp := s.route.Points[idx]
	lat, lon := s.jitter.Apply(wp.Lat, wp.Lon)
	sinks := make(map[string]Sink, len(s.sinks))
	for id, sink := range s.sinks {
		sinks[id] = sink
	}
	timeout := s.cfg.PushTimeout
	s.mu.Unlock()

	// Fan out to every device concurrently; a slow or failed device must not
	// stall the tick for its peers.
	results := fanOut(ctx, sinks, lat, lon, timeout)

	s.mu.Lock()
	if ctx.Err() != nil || s.state == StateIdle || s.devices == nil {
		// Reset happened mid-fan-out, possibly followed by a new Start that
		// now owns the session. Results of this stale run are dropped.
		s.mu.Unlock()
		return false, nil
	}
	for id, pushErr := range results {
		st, ok := s.devices[id]
		if !ok {
			continue
		}
		st.Pushes++
		if pushErr != nil {
			st.Failures++
			st.LastError = pushErr.Error()
			logDebugf("[sim] push to %s failed: %v", id, pushErr)
		}
	}
	s.index = idx
	s.lastEmitted = idx
	s.lastLat, s.lastLon = lat, lon
	s.hasFix = true
	s.updatedAt = now
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return true, nil
}

// fanOut pushes one coordinate to every sink in parallel and collects the
// per-device results, waiting no longer than the push timeout plus a small
// grace for stragglers that ignore their context.
func fanOut(ctx context.Context, sinks map[string]Sink, lat, lon float64, timeout time.Duration) map[string]error {
	type result struct {
		id  string
		err error
	}
	resCh := make(chan result, len(sinks))
	for id, sink := range sinks {
		go func(id string, sink Sink) {
			pushCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			resCh <- result{id: id, err: sink.Push(pushCtx, lat, lon)}
		}(id, sink)
	}

	results := make(map[string]error, len(sinks))
	deadline := time.NewTimer(timeout + 100*time.Millisecond)
	defer deadline.Stop()
	for range sinks {
		select {
		case r := <-resCh:
			results[r.id] = r.err
		case <-deadline.C:
			for id := range sinks {
				if _, ok := results[id]; !ok {
					results[id] = context.DeadlineExceeded
				}
			}
			return results
		}
	}
	return results
}
