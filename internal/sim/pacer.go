package sim

import (
	"time"

	"github.com/omnihq/omnilocation-go/pkg/gpx"
)

// Mode selects how wall-clock time maps to a route position.
type Mode int

const (
	// ModeNative advances along the recorded timestamp deltas, divided by the
	// speed multiplier. Requires a fully timed route.
	ModeNative Mode = iota + 1
	// ModeTargetDuration stretches the whole route so that playback of all
	// points fits the target duration, advancing by index proportionally.
	ModeTargetDuration
)

// pacer maps elapsed wall-clock time since the last anchor to a target index
// within the route. It is pure state + arithmetic: the session feeds it "now"
// values, which keeps it fully deterministic in tests.
type pacer struct {
	points []gpx.Waypoint
	mode   Mode
	speed  float64       // ModeNative, > 0
	target time.Duration // ModeTargetDuration, > 0

	anchorIndex int
	anchorAt    time.Time
}

// newPacer validates the pacing configuration against the route. A timed
// route plays in native mode; an untimed route requires a target duration
// (defaulting to one second per point, as the original playback loop did).
// A positive target on a timed route is translated into a speed multiplier so
// the recorded cadence is preserved, just compressed or stretched.
func newPacer(route *gpx.Route, speed float64, target time.Duration) (*pacer, error) {
	if speed < 0 {
		return nil, ErrInvalidSpeed
	}
	if target < 0 {
		return nil, ErrInvalidDuration
	}
	if speed == 0 {
		speed = 1.0
	}

	p := &pacer{points: route.Points}
	if route.Timed() && route.PointCount() > 1 {
		p.mode = ModeNative
		p.speed = speed
		if target > 0 && route.TotalDuration > 0 {
			p.speed = route.TotalDuration.Seconds() / target.Seconds()
		}
		return p, nil
	}

	p.mode = ModeTargetDuration
	p.target = target
	if p.target == 0 {
		p.target = time.Duration(route.PointCount()) * time.Second
	}
	return p, nil
}

// anchor resets the elapsed-time origin. Called on start, resume and loop
// wrap.
func (p *pacer) anchor(index int, at time.Time) {
	p.anchorIndex = index
	p.anchorAt = at
}

// indexAt returns the target index for the given wall-clock instant, the
// fractional progress toward the next index (for callers that want to
// interpolate), and whether the final index has been reached.
func (p *pacer) indexAt(now time.Time) (index int, frac float64, done bool) {
	elapsed := now.Sub(p.anchorAt)
	if elapsed < 0 {
		elapsed = 0
	}
	last := len(p.points) - 1
	if p.anchorIndex >= last {
		return last, 0, true
	}

	switch p.mode {
	case ModeNative:
		return p.nativeIndexAt(elapsed, last)
	default:
		return p.proportionalIndexAt(elapsed, last)
	}
}

// nativeIndexAt walks forward from the anchor accumulating per-segment
// durations scaled by the speed multiplier. The last fully consumed segment
// boundary is the current index. Non-positive segment deltas (out-of-order or
// duplicate timestamps) are consumed instantly.
func (p *pacer) nativeIndexAt(elapsed time.Duration, last int) (int, float64, bool) {
	var acc time.Duration
	for i := p.anchorIndex; i < last; i++ {
		seg := p.points[i+1].Time.Sub(p.points[i].Time)
		if seg < 0 {
			seg = 0
		}
		seg = time.Duration(float64(seg) / p.speed)
		if acc+seg > elapsed {
			var frac float64
			if seg > 0 {
				frac = float64(elapsed-acc) / float64(seg)
			}
			return i, frac, false
		}
		acc += seg
	}
	return last, 0, true
}

// proportionalIndexAt spreads point indexes evenly across the target
// duration: index = floor(point_count * elapsed / target), counted from the
// anchor and clamped to the final index.
func (p *pacer) proportionalIndexAt(elapsed time.Duration, last int) (int, float64, bool) {
	pos := float64(len(p.points)) * (elapsed.Seconds() / p.target.Seconds())
	idx := p.anchorIndex + int(pos)
	frac := pos - float64(int(pos))
	if idx >= last {
		return last, 0, true
	}
	return idx, frac, false
}
