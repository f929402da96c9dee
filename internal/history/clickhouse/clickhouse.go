// Package clickhouse stores position history in ClickHouse, batching inserts
// through the native protocol.
package clickhouse

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/omnihq/omnilocation-go/internal/history"
)

type Config struct {
	DSN   string
	Table string
}

type Store struct {
	conn  ch.Conn
	table string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("clickhouse: DSN is empty")
	}
	parsed, err := url.Parse(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: parse DSN: %w", err)
	}
	host := parsed.Host
	if host == "" {
		host = "localhost:9000"
	}
	if !strings.Contains(host, ":") {
		host = net.JoinHostPort(host, "9000")
	}
	database := strings.TrimPrefix(parsed.Path, "/")
	if database == "" {
		database = "default"
	}
	username := parsed.User.Username()
	password, _ := parsed.User.Password()

	conn, err := ch.Open(&ch.Options{
		Addr: []string{host},
		Auth: ch.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse: open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse: ping: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = "position_history"
	}
	if !strings.Contains(table, ".") {
		table = fmt.Sprintf("%s.%s", database, table)
	}
	store := &Store{conn: conn, table: table}
	if err := store.ensureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	err := s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			session_id String,
			device_id  String,
			lat        Float64,
			lon        Float64,
			ts         DateTime64(6, 'UTC')
		) ENGINE = MergeTree ORDER BY (device_id, ts)`, s.table))
	if err != nil {
		return fmt.Errorf("clickhouse: init schema: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *Store) Append(ctx context.Context, fixes []history.Fix) error {
	if len(fixes) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx,
		fmt.Sprintf("INSERT INTO %s (session_id, device_id, lat, lon, ts)", s.table))
	if err != nil {
		return fmt.Errorf("clickhouse: prepare batch: %w", err)
	}
	for _, f := range fixes {
		if err := batch.Append(f.SessionID, f.DeviceID, f.Lat, f.Lon, f.At); err != nil {
			return fmt.Errorf("clickhouse: append fix for %s: %w", f.DeviceID, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("clickhouse: send batch: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, q history.Query) ([]history.Fix, error) {
	where := make([]string, 0, 4)
	if q.SessionID != "" {
		where = append(where, "session_id = @session")
	}
	if q.DeviceID != "" {
		where = append(where, "device_id = @device")
	}
	if !q.From.IsZero() {
		where = append(where, "ts >= @from")
	}
	if !q.To.IsZero() {
		where = append(where, "ts <= @to")
	}

	query := fmt.Sprintf("SELECT session_id, device_id, lat, lon, ts FROM %s", s.table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC LIMIT @limit"

	rows, err := s.conn.Query(ctx, query,
		ch.Named("session", q.SessionID),
		ch.Named("device", q.DeviceID),
		ch.Named("from", q.From),
		ch.Named("to", q.To),
		ch.Named("limit", fmt.Sprintf("%d", q.EffectiveLimit())),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: recent query: %w", err)
	}
	defer rows.Close()

	var fixes []history.Fix
	for rows.Next() {
		var f history.Fix
		var ts time.Time
		if err := rows.Scan(&f.SessionID, &f.DeviceID, &f.Lat, &f.Lon, &ts); err != nil {
			return nil, fmt.Errorf("clickhouse: recent scan: %w", err)
		}
		f.At = ts
		fixes = append(fixes, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse: rows err: %w", err)
	}

	for i, j := 0, len(fixes)-1; i < j; i, j = i+1, j-1 {
		fixes[i], fixes[j] = fixes[j], fixes[i]
	}
	return fixes, nil
}

func IsSource(src string) bool {
	return strings.HasPrefix(strings.ToLower(src), "clickhouse://")
}
