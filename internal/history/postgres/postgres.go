// Package postgres stores position history in PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnihq/omnilocation-go/internal/history"
)

type Config struct {
	ConnString string
	MaxConns   int32
}

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("postgres: connection string is empty")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	store := &Store{pool: pool}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS position_history (
			id         BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			device_id  TEXT NOT NULL,
			lat        DOUBLE PRECISION NOT NULL,
			lon        DOUBLE PRECISION NOT NULL,
			ts         TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("postgres: init schema: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_position_history_ts ON position_history(device_id, ts)`)
	if err != nil {
		return fmt.Errorf("postgres: init index: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Append(ctx context.Context, fixes []history.Fix) error {
	if len(fixes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, f := range fixes {
		batch.Queue(
			`INSERT INTO position_history(session_id, device_id, lat, lon, ts) VALUES ($1, $2, $3, $4, $5)`,
			f.SessionID, f.DeviceID, f.Lat, f.Lon, f.At)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range fixes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert fix: %w", err)
		}
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, q history.Query) ([]history.Fix, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 5)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.SessionID != "" {
		where = append(where, "session_id = "+arg(q.SessionID))
	}
	if q.DeviceID != "" {
		where = append(where, "device_id = "+arg(q.DeviceID))
	}
	if !q.From.IsZero() {
		where = append(where, "ts >= "+arg(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "ts <= "+arg(q.To))
	}

	query := `SELECT session_id, device_id, lat, lon, ts FROM position_history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC LIMIT " + arg(q.EffectiveLimit())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent query: %w", err)
	}
	defer rows.Close()

	var fixes []history.Fix
	for rows.Next() {
		var f history.Fix
		if err := rows.Scan(&f.SessionID, &f.DeviceID, &f.Lat, &f.Lon, &f.At); err != nil {
			return nil, fmt.Errorf("postgres: recent scan: %w", err)
		}
		fixes = append(fixes, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows err: %w", err)
	}

	for i, j := 0, len(fixes)-1; i < j; i, j = i+1, j-1 {
		fixes[i], fixes[j] = fixes[j], fixes[i]
	}
	return fixes, nil
}

func IsSource(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}
