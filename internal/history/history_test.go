package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureStore struct {
	mu    sync.Mutex
	fixes []Fix
	err   error
}

func (s *captureStore) Append(_ context.Context, fixes []Fix) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.fixes = append(s.fixes, fixes...)
	s.mu.Unlock()
	return nil
}

func (s *captureStore) Recent(_ context.Context, _ Query) ([]Fix, error) { return nil, nil }
func (s *captureStore) Close()                                           {}

type stubSink struct {
	err   error
	calls int
}

func (s *stubSink) Push(_ context.Context, _, _ float64) error {
	s.calls++
	return s.err
}

func TestRecordingSinkRecordsSuccess(t *testing.T) {
	store := &captureStore{}
	inner := &stubSink{}
	sink := &RecordingSink{
		DeviceID: "dev-1",
		Inner:    inner,
		Store:    store,
		Session:  func() string { return "run-42" },
	}

	if err := sink.Push(context.Background(), 55.75, 37.61); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if len(store.fixes) != 1 {
		t.Fatalf("recorded = %d fixes, want 1", len(store.fixes))
	}
	f := store.fixes[0]
	if f.SessionID != "run-42" || f.DeviceID != "dev-1" || f.Lat != 55.75 || f.Lon != 37.61 {
		t.Errorf("recorded fix = %+v", f)
	}
}

func TestRecordingSinkSkipsFailedPush(t *testing.T) {
	store := &captureStore{}
	inner := &stubSink{err: errors.New("device unreachable")}
	sink := &RecordingSink{DeviceID: "dev-1", Inner: inner, Store: store}

	if err := sink.Push(context.Background(), 1, 2); err == nil {
		t.Fatal("Push swallowed the device error")
	}
	if len(store.fixes) != 0 {
		t.Errorf("failed push was recorded: %+v", store.fixes)
	}
}

func TestRecordingSinkStoreErrorDoesNotFailPush(t *testing.T) {
	store := &captureStore{err: errors.New("db down")}
	sink := &RecordingSink{DeviceID: "dev-1", Inner: &stubSink{}, Store: store}

	if err := sink.Push(context.Background(), 1, 2); err != nil {
		t.Errorf("Push failed on store error: %v", err)
	}
}

func TestQueryMatches(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	f := Fix{SessionID: "s1", DeviceID: "dev-a", At: at}

	cases := []struct {
		name string
		q    Query
		want bool
	}{
		{"empty", Query{}, true},
		{"session match", Query{SessionID: "s1"}, true},
		{"session mismatch", Query{SessionID: "s2"}, false},
		{"device match", Query{DeviceID: "dev-a"}, true},
		{"device mismatch", Query{DeviceID: "dev-b"}, false},
		{"inside window", Query{From: at.Add(-time.Second), To: at.Add(time.Second)}, true},
		{"before from", Query{From: at.Add(time.Second)}, false},
		{"after to", Query{To: at.Add(-time.Second)}, false},
	}
	for _, c := range cases {
		if got := c.q.Matches(f); got != c.want {
			t.Errorf("%s: Matches = %t, want %t", c.name, got, c.want)
		}
	}
}

func TestEffectiveLimit(t *testing.T) {
	if got := (Query{}).EffectiveLimit(); got != DefaultLimit {
		t.Errorf("zero limit = %d, want %d", got, DefaultLimit)
	}
	if got := (Query{Limit: 10}).EffectiveLimit(); got != 10 {
		t.Errorf("limit 10 = %d", got)
	}
	if got := (Query{Limit: DefaultLimit * 2}).EffectiveLimit(); got != DefaultLimit {
		t.Errorf("oversized limit = %d, want %d", got, DefaultLimit)
	}
}
