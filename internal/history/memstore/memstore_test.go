package memstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/omnihq/omnilocation-go/internal/history"
)

func fix(session, device string, i int) history.Fix {
	return history.Fix{
		SessionID: session,
		DeviceID:  device,
		Lat:       55.75 + float64(i)*0.001,
		Lon:       37.61,
		At:        time.Date(2025, 3, 1, 10, 0, i, 0, time.UTC),
	}
}

func TestAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	s := New(100)

	for i := 0; i < 5; i++ {
		if err := s.Append(ctx, []history.Fix{fix("s1", "dev-a", i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Append(ctx, []history.Fix{fix("s1", "dev-b", 5)}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	all, err := s.Recent(ctx, history.Query{})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("Recent = %d fixes, want 6", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].At.Before(all[i-1].At) {
			t.Fatalf("fixes not chronological: %v after %v", all[i].At, all[i-1].At)
		}
	}

	onlyA, err := s.Recent(ctx, history.Query{DeviceID: "dev-a"})
	if err != nil {
		t.Fatalf("Recent by device: %v", err)
	}
	if len(onlyA) != 5 {
		t.Errorf("device filter = %d fixes, want 5", len(onlyA))
	}

	windowed, err := s.Recent(ctx, history.Query{
		From: time.Date(2025, 3, 1, 10, 0, 2, 0, time.UTC),
		To:   time.Date(2025, 3, 1, 10, 0, 3, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Recent by window: %v", err)
	}
	if len(windowed) != 2 {
		t.Errorf("time window = %d fixes, want 2", len(windowed))
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	ctx := context.Background()
	s := New(3)

	for i := 0; i < 5; i++ {
		if err := s.Append(ctx, []history.Fix{fix("s1", fmt.Sprintf("dev-%d", i), i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := s.Recent(ctx, history.Query{})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Recent = %d fixes, want 3", len(all))
	}
	if all[0].DeviceID != "dev-2" || all[2].DeviceID != "dev-4" {
		t.Errorf("ring kept wrong fixes: %+v", all)
	}
}

func TestRecentLimitKeepsNewest(t *testing.T) {
	ctx := context.Background()
	s := New(100)
	for i := 0; i < 10; i++ {
		if err := s.Append(ctx, []history.Fix{fix("s1", "dev-a", i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Recent(ctx, history.Query{Limit: 4})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("limit = %d fixes, want 4", len(got))
	}
	if got[3].At != fix("s1", "dev-a", 9).At {
		t.Errorf("limit dropped newest fix: %+v", got)
	}
}
