package gpx

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"
)

const gpxHeader = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">`

func timedTrack(points ...[3]float64) string {
	var b strings.Builder
	b.WriteString(gpxHeader)
	b.WriteString(`<trk><name>test track</name><trkseg>`)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, p := range points {
		ts := base.Add(time.Duration(p[2]) * time.Second)
		fmt.Fprintf(&b, `<trkpt lat="%f" lon="%f"><ele>10</ele><time>%s</time></trkpt>`,
			p[0], p[1], ts.Format(time.RFC3339))
	}
	b.WriteString(`</trkseg></trk></gpx>`)
	return b.String()
}

func TestParseTimedTrack(t *testing.T) {
	raw := timedTrack(
		[3]float64{55.75, 37.61, 0},
		[3]float64{55.76, 37.62, 10},
		[3]float64{55.77, 37.63, 20},
	)
	route, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if route.PointCount() != 3 {
		t.Fatalf("point count = %d, want 3", route.PointCount())
	}
	if route.Name != "test track" {
		t.Errorf("name = %q, want %q", route.Name, "test track")
	}
	if !route.Timed() {
		t.Error("route should be timed")
	}
	if route.TotalDuration != 20*time.Second {
		t.Errorf("duration = %s, want 20s", route.TotalDuration)
	}
	if route.TotalDistance <= 0 {
		t.Errorf("distance = %f, want > 0", route.TotalDistance)
	}
}

func TestParseRoutePointsFallback(t *testing.T) {
	raw := gpxHeader + `<rte><name>planned</name>` +
		`<rtept lat="48.85" lon="2.35"></rtept>` +
		`<rtept lat="48.86" lon="2.36"></rtept>` +
		`</rte></gpx>`
	route, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if route.PointCount() != 2 {
		t.Fatalf("point count = %d, want 2", route.PointCount())
	}
	if route.Timed() {
		t.Error("route without timestamps should be untimed")
	}
	if route.TotalDuration != 0 {
		t.Errorf("duration = %s, want 0", route.TotalDuration)
	}
}

func TestParsePartialTimestampsIsUntimed(t *testing.T) {
	// One point without <time> makes the whole route untimed.
	raw := gpxHeader + `<trk><trkseg>` +
		`<trkpt lat="1" lon="1"><time>2024-06-01T12:00:00Z</time></trkpt>` +
		`<trkpt lat="2" lon="2"></trkpt>` +
		`<trkpt lat="3" lon="3"><time>2024-06-01T12:00:20Z</time></trkpt>` +
		`</trkseg></trk></gpx>`
	route, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if route.Timed() {
		t.Error("route with a missing timestamp should be untimed")
	}
	if route.TotalDuration != 0 {
		t.Errorf("duration = %s, want 0 for untimed route", route.TotalDuration)
	}
}

func TestParseEmpty(t *testing.T) {
	raw := gpxHeader + `<trk><trkseg></trkseg></trk></gpx>`
	_, err := Parse([]byte(raw))
	if !errors.Is(err, ErrEmptyRoute) {
		t.Fatalf("error = %v, want ErrEmptyRoute", err)
	}
}

func TestParseMalformedXML(t *testing.T) {
	_, err := Parse([]byte(`not xml at all`))
	if err == nil {
		t.Fatal("expected error for malformed input")
	}
}

func TestParseMissingCoordinate(t *testing.T) {
	raw := gpxHeader + `<trk><trkseg><trkpt lat="10"></trkpt></trkseg></trk></gpx>`
	_, err := Parse([]byte(raw))
	if !errors.Is(err, ErrMissingCoordinate) {
		t.Fatalf("error = %v, want ErrMissingCoordinate", err)
	}
}

func TestParseCoordinateOutOfRange(t *testing.T) {
	raw := gpxHeader + `<trk><trkseg><trkpt lat="91" lon="0"></trkpt></trkseg></trk></gpx>`
	_, err := Parse([]byte(raw))
	if !errors.Is(err, ErrCoordinateRange) {
		t.Fatalf("error = %v, want ErrCoordinateRange", err)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Moscow -> Saint Petersburg, roughly 634 km.
	d := Haversine(55.7558, 37.6173, 59.9311, 30.3609)
	if math.Abs(d-634000) > 5000 {
		t.Errorf("distance = %f, want about 634000m", d)
	}
	if d := Haversine(10, 20, 10, 20); d != 0 {
		t.Errorf("zero-length distance = %f, want 0", d)
	}
}

func TestTotalDistanceSumsSegments(t *testing.T) {
	raw := timedTrack(
		[3]float64{0, 0, 0},
		[3]float64{0, 0.01, 5},
		[3]float64{0, 0.02, 10},
	)
	route, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := Haversine(0, 0, 0, 0.01) + Haversine(0, 0.01, 0, 0.02)
	if math.Abs(route.TotalDistance-want) > 1e-6 {
		t.Errorf("total distance = %f, want %f", route.TotalDistance, want)
	}
}
