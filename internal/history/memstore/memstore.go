// Package memstore keeps the most recent fixes in a fixed-size ring. It is
// the default history backend when no database is configured.
package memstore

import (
	"context"
	"sync"

	"github.com/omnihq/omnilocation-go/internal/history"
)

const defaultCapacity = 10000

type Store struct {
	mu    sync.Mutex
	fixes []history.Fix
	head  int
	full  bool
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Store{fixes: make([]history.Fix, capacity)}
}

func (s *Store) Close() {}

func (s *Store) Append(ctx context.Context, fixes []history.Fix) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fixes {
		s.fixes[s.head] = f
		s.head++
		if s.head == len(s.fixes) {
			s.head = 0
			s.full = true
		}
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, q history.Query) ([]history.Fix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	ordered := s.orderedLocked()
	s.mu.Unlock()

	matched := make([]history.Fix, 0, len(ordered))
	for _, f := range ordered {
		if q.Matches(f) {
			matched = append(matched, f)
		}
	}
	if limit := q.EffectiveLimit(); len(matched) > limit {
		// Keep the newest fixes, chronological order.
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// orderedLocked unrolls the ring into chronological order.
func (s *Store) orderedLocked() []history.Fix {
	if !s.full {
		return append([]history.Fix(nil), s.fixes[:s.head]...)
	}
	out := make([]history.Fix, 0, len(s.fixes))
	out = append(out, s.fixes[s.head:]...)
	out = append(out, s.fixes[:s.head]...)
	return out
}
