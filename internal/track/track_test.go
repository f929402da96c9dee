package track

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test">
  <trk><name>sample</name><trkseg>
    <trkpt lat="55.75" lon="37.61"><time>2024-05-01T12:00:00Z</time></trkpt>
    <trkpt lat="55.76" lon="37.62"><time>2024-05-01T12:00:10Z</time></trkpt>
    <trkpt lat="55.77" lon="37.63"><time>2024-05-01T12:00:20Z</time></trkpt>
  </trkseg></trk>
</gpx>`

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	l, err := NewLibrary(t.TempDir())
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	return l
}

func TestSaveListDelete(t *testing.T) {
	l := newTestLibrary(t)

	name, err := l.Save("route.gpx", strings.NewReader(sampleGPX))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if name != "route.gpx" {
		t.Errorf("stored name = %q", name)
	}

	infos, err := l.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "route.gpx" || infos[0].SizeBytes == 0 {
		t.Fatalf("List = %+v", infos)
	}

	if err := l.Delete("route.gpx"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := l.Delete("route.gpx"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: err = %v, want ErrNotFound", err)
	}
}

func TestSaveSanitizesPath(t *testing.T) {
	l := newTestLibrary(t)

	name, err := l.Save("../../etc/evil.gpx", strings.NewReader(sampleGPX))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if name != "evil.gpx" {
		t.Errorf("stored name = %q, want evil.gpx", name)
	}
	if _, err := l.Save("notes.txt", strings.NewReader(sampleGPX)); !errors.Is(err, ErrInvalidName) {
		t.Errorf("non-gpx name: err = %v, want ErrInvalidName", err)
	}
	if _, err := l.Save("..", strings.NewReader(sampleGPX)); !errors.Is(err, ErrInvalidName) {
		t.Errorf("dotdot name: err = %v, want ErrInvalidName", err)
	}
}

func TestSaveRejectsInvalidGPX(t *testing.T) {
	l := newTestLibrary(t)
	if _, err := l.Save("bad.gpx", strings.NewReader("<gpx></gpx>")); err == nil {
		t.Error("Save of empty route succeeded")
	}
	if infos, _ := l.List(); len(infos) != 0 {
		t.Errorf("rejected upload left a file: %+v", infos)
	}
}

func TestLoadAndDetails(t *testing.T) {
	l := newTestLibrary(t)
	if _, err := l.Save("route.gpx", strings.NewReader(sampleGPX)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	route, err := l.Load("route.gpx")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if route.PointCount() != 3 {
		t.Errorf("PointCount = %d, want 3", route.PointCount())
	}

	det, err := l.Details("route.gpx")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if det.PointCount != 3 || !det.Timed || det.TotalDuration != 20*time.Second {
		t.Errorf("Details = %+v", det)
	}
	if det.TotalDistance <= 0 {
		t.Errorf("TotalDistance = %v, want > 0", det.TotalDistance)
	}

	if _, err := l.Details("missing.gpx"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Details missing: err = %v, want ErrNotFound", err)
	}
	if _, err := l.Load("missing.gpx"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load missing: err = %v, want ErrNotFound", err)
	}
}
