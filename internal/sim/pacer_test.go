package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/omnihq/omnilocation-go/pkg/gpx"
)

func timedRoute(step time.Duration, n int) *gpx.Route {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := &gpx.Route{Name: "timed"}
	for i := 0; i < n; i++ {
		r.Points = append(r.Points, gpx.Waypoint{
			Lat:  55.75 + float64(i)*0.001,
			Lon:  37.61 + float64(i)*0.001,
			Time: base.Add(time.Duration(i) * step),
		})
	}
	r.TotalDuration = time.Duration(n-1) * step
	return r
}

func untimedRoute(n int) *gpx.Route {
	r := &gpx.Route{Name: "untimed"}
	for i := 0; i < n; i++ {
		r.Points = append(r.Points, gpx.Waypoint{
			Lat: 55.75 + float64(i)*0.001,
			Lon: 37.61 + float64(i)*0.001,
		})
	}
	return r
}

func TestPacerNativeWalk(t *testing.T) {
	route := timedRoute(10*time.Second, 3)
	p, err := newPacer(route, 1.0, 0)
	if err != nil {
		t.Fatalf("newPacer: %v", err)
	}
	if p.mode != ModeNative {
		t.Fatalf("mode = %v, want ModeNative", p.mode)
	}

	start := time.Now()
	p.anchor(0, start)

	cases := []struct {
		elapsed time.Duration
		index   int
		done    bool
	}{
		{0, 0, false},
		{5 * time.Second, 0, false},
		{10 * time.Second, 1, false},
		{19 * time.Second, 1, false},
		{20 * time.Second, 2, true},
		{time.Hour, 2, true},
	}
	for _, c := range cases {
		idx, _, done := p.indexAt(start.Add(c.elapsed))
		if idx != c.index || done != c.done {
			t.Errorf("indexAt(+%v) = (%d, %t), want (%d, %t)", c.elapsed, idx, done, c.index, c.done)
		}
	}
}

func TestPacerNativeSpeedMultiplier(t *testing.T) {
	route := timedRoute(10*time.Second, 3)
	p, err := newPacer(route, 2.0, 0)
	if err != nil {
		t.Fatalf("newPacer: %v", err)
	}

	start := time.Now()
	p.anchor(0, start)

	if idx, _, done := p.indexAt(start.Add(5 * time.Second)); idx != 1 || done {
		t.Errorf("at +5s: (%d, %t), want (1, false)", idx, done)
	}
	if idx, _, done := p.indexAt(start.Add(10 * time.Second)); idx != 2 || !done {
		t.Errorf("at +10s: (%d, %t), want (2, true)", idx, done)
	}
}

func TestPacerTargetOnTimedRouteConvertsToSpeed(t *testing.T) {
	route := timedRoute(10*time.Second, 3) // 20s native
	p, err := newPacer(route, 1.0, 10*time.Second)
	if err != nil {
		t.Fatalf("newPacer: %v", err)
	}
	if p.mode != ModeNative {
		t.Fatalf("mode = %v, want ModeNative", p.mode)
	}
	if p.speed != 2.0 {
		t.Fatalf("speed = %v, want 2.0", p.speed)
	}
}

func TestPacerProportional(t *testing.T) {
	route := untimedRoute(100)
	p, err := newPacer(route, 0, time.Minute)
	if err != nil {
		t.Fatalf("newPacer: %v", err)
	}
	if p.mode != ModeTargetDuration {
		t.Fatalf("mode = %v, want ModeTargetDuration", p.mode)
	}

	start := time.Now()
	p.anchor(0, start)

	if idx, _, done := p.indexAt(start.Add(30 * time.Second)); idx != 50 || done {
		t.Errorf("at +30s: (%d, %t), want (50, false)", idx, done)
	}
	if idx, _, done := p.indexAt(start.Add(2 * time.Minute)); idx != 99 || !done {
		t.Errorf("at +2m: (%d, %t), want (99, true)", idx, done)
	}
}

func TestPacerProportionalDefaultTarget(t *testing.T) {
	route := untimedRoute(5)
	p, err := newPacer(route, 0, 0)
	if err != nil {
		t.Fatalf("newPacer: %v", err)
	}
	// One second per point.
	if p.target != 5*time.Second {
		t.Fatalf("target = %v, want 5s", p.target)
	}
}

func TestPacerResumeAnchorPreservesIndex(t *testing.T) {
	route := untimedRoute(100)
	p, err := newPacer(route, 0, time.Minute)
	if err != nil {
		t.Fatalf("newPacer: %v", err)
	}

	resumedAt := time.Now()
	p.anchor(40, resumedAt)

	if idx, _, _ := p.indexAt(resumedAt); idx != 40 {
		t.Errorf("at resume instant: index %d, want 40", idx)
	}
	if idx, _, _ := p.indexAt(resumedAt.Add(6 * time.Second)); idx != 50 {
		t.Errorf("at +6s after resume: index %d, want 50", idx)
	}
}

func TestPacerAnchorAtLastIsDone(t *testing.T) {
	route := untimedRoute(3)
	p, err := newPacer(route, 0, 0)
	if err != nil {
		t.Fatalf("newPacer: %v", err)
	}
	p.anchor(2, time.Now())
	if idx, _, done := p.indexAt(time.Now()); idx != 2 || !done {
		t.Errorf("anchored at last: (%d, %t), want (2, true)", idx, done)
	}
}

func TestPacerSinglePointIsDoneImmediately(t *testing.T) {
	route := untimedRoute(1)
	p, err := newPacer(route, 0, 0)
	if err != nil {
		t.Fatalf("newPacer: %v", err)
	}
	p.anchor(0, time.Now())
	if idx, _, done := p.indexAt(time.Now()); idx != 0 || !done {
		t.Errorf("single point: (%d, %t), want (0, true)", idx, done)
	}
}

func TestPacerValidation(t *testing.T) {
	route := untimedRoute(3)
	if _, err := newPacer(route, -1, 0); !errors.Is(err, ErrInvalidSpeed) {
		t.Errorf("negative speed: err = %v, want ErrInvalidSpeed", err)
	}
	if _, err := newPacer(route, 0, -time.Second); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("negative target: err = %v, want ErrInvalidDuration", err)
	}
}
