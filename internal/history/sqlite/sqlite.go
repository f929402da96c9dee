// Package sqlite stores position history in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/omnihq/omnilocation-go/internal/history"
)

type Config struct {
	Source string
}

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("sqlite: database path is empty")
	}
	db, err := sql.Open("sqlite", cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	store := &Store{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS position_history (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			device_id  TEXT NOT NULL,
			lat        REAL NOT NULL,
			lon        REAL NOT NULL,
			ts_usec    INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("sqlite: init schema: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_position_history_ts ON position_history(device_id, ts_usec)`)
	if err != nil {
		return fmt.Errorf("sqlite: init index: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *Store) Append(ctx context.Context, fixes []history.Fix) error {
	if len(fixes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO position_history(session_id, device_id, lat, lon, ts_usec) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	for _, f := range fixes {
		if _, err := stmt.ExecContext(ctx, f.SessionID, f.DeviceID, f.Lat, f.Lon, f.At.UnixMicro()); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("sqlite: insert fix for %s: %w", f.DeviceID, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, q history.Query) ([]history.Fix, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 4)
	if q.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.DeviceID != "" {
		where = append(where, "device_id = ?")
		args = append(args, q.DeviceID)
	}
	if !q.From.IsZero() {
		where = append(where, "ts_usec >= ?")
		args = append(args, q.From.UnixMicro())
	}
	if !q.To.IsZero() {
		where = append(where, "ts_usec <= ?")
		args = append(args, q.To.UnixMicro())
	}

	query := `SELECT session_id, device_id, lat, lon, ts_usec FROM position_history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts_usec DESC, id DESC LIMIT ?"
	args = append(args, q.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent query: %w", err)
	}
	defer rows.Close()

	var fixes []history.Fix
	for rows.Next() {
		var f history.Fix
		var usec int64
		if err := rows.Scan(&f.SessionID, &f.DeviceID, &f.Lat, &f.Lon, &usec); err != nil {
			return nil, fmt.Errorf("sqlite: recent scan: %w", err)
		}
		f.At = time.UnixMicro(usec).UTC()
		fixes = append(fixes, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows err: %w", err)
	}

	// Newest-first from the query; callers get chronological order.
	for i, j := 0, len(fixes)-1; i < j; i, j = i+1, j-1 {
		fixes[i], fixes[j] = fixes[j], fixes[i]
	}
	return fixes, nil
}

func IsSource(src string) bool {
	if src == "" {
		return false
	}
	lower := strings.ToLower(src)
	switch {
	case strings.HasPrefix(lower, "sqlite://"),
		strings.HasPrefix(lower, "file:"),
		strings.HasSuffix(lower, ".db"),
		src == ":memory:":
		return true
	default:
		return false
	}
}

func NormalizeSource(src string) string {
	if strings.HasPrefix(src, "sqlite://") {
		return strings.TrimPrefix(src, "sqlite://")
	}
	return src
}
