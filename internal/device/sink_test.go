package device

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLogSinkWritesLine(t *testing.T) {
	var buf bytes.Buffer
	s := &LogSink{UDID: "udid-1", Writer: &buf}
	if err := s.Push(context.Background(), 55.75, 37.61); err != nil {
		t.Fatalf("Push: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "udid-1") || !strings.Contains(got, "55.750000") || !strings.Contains(got, "37.610000") {
		t.Errorf("unexpected line: %q", got)
	}
}

func TestLogSinkNoWriter(t *testing.T) {
	s := &LogSink{UDID: "x"}
	if err := s.Push(context.Background(), 0, 0); err == nil {
		t.Error("Push with nil writer succeeded")
	}
}

func TestHTTPSinkPush(t *testing.T) {
	var gotPath, gotLat, gotLon, gotUDID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		q := r.URL.Query()
		gotLat = q.Get("lat")
		gotLon = q.Get("lon")
		gotUDID = q.Get("udid")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := &HTTPSink{BaseURL: srv.URL, UDID: "udid-9"}
	if err := s.Push(context.Background(), 55.75, -37.5); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if gotPath != "/location/set" {
		t.Errorf("path = %q, want /location/set", gotPath)
	}
	if gotLat != "55.75" || gotLon != "-37.5" || gotUDID != "udid-9" {
		t.Errorf("query = lat=%q lon=%q udid=%q", gotLat, gotLon, gotUDID)
	}
}

func TestHTTPSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bridge is down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := &HTTPSink{BaseURL: srv.URL, UDID: "udid-9"}
	err := s.Push(context.Background(), 1, 2)
	if err == nil {
		t.Fatal("Push against failing bridge succeeded")
	}
	if !strings.Contains(err.Error(), "bridge is down") {
		t.Errorf("error does not carry body: %v", err)
	}
}

func TestHTTPSinkEmptyBaseURL(t *testing.T) {
	s := &HTTPSink{}
	if err := s.Push(context.Background(), 1, 2); err == nil {
		t.Error("Push with empty BaseURL succeeded")
	}
}
