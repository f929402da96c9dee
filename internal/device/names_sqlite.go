package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteNames persists device names in the devices table, shared with the
// rest of the server's SQLite state.
type SQLiteNames struct {
	db *sql.DB
}

// NewSQLiteNames opens (or creates) the database and ensures the schema.
func NewSQLiteNames(ctx context.Context, path string) (*SQLiteNames, error) {
	if path == "" {
		return nil, fmt.Errorf("device names: database path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("device names: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("device names: ping: %w", err)
	}
	s := &SQLiteNames{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteNames) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS devices (
			udid        TEXT PRIMARY KEY,
			real_name   TEXT,
			custom_name TEXT,
			last_seen   TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("device names: init schema: %w", err)
	}
	return nil
}

func (s *SQLiteNames) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *SQLiteNames) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT udid, custom_name FROM devices WHERE custom_name IS NOT NULL AND custom_name != ''`)
	if err != nil {
		return nil, fmt.Errorf("device names: load query: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var udid, name string
		if err := rows.Scan(&udid, &name); err != nil {
			return nil, fmt.Errorf("device names: load scan: %w", err)
		}
		names[udid] = name
	}
	return names, rows.Err()
}

func (s *SQLiteNames) SaveName(ctx context.Context, dev Device) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices(udid, real_name, custom_name, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(udid) DO UPDATE SET
			real_name   = excluded.real_name,
			custom_name = excluded.custom_name,
			last_seen   = excluded.last_seen`,
		dev.UDID, dev.RealName, dev.CustomName, dev.LastSeen.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("device names: upsert %s: %w", dev.UDID, err)
	}
	return nil
}

func (s *SQLiteNames) Touch(ctx context.Context, udid string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE devices SET last_seen = ? WHERE udid = ?`,
		at.UTC().Format(time.RFC3339), udid)
	if err != nil {
		return fmt.Errorf("device names: touch %s: %w", udid, err)
	}
	return nil
}
