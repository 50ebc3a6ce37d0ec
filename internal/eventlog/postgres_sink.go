package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventLogSchema = `
CREATE TABLE IF NOT EXISTS honeypot_events (
    id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    event_id TEXT NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL,
    message TEXT NOT NULL,
    is_error BOOLEAN NOT NULL,
    src_ip TEXT NOT NULL,
    sensor TEXT NOT NULL,
    fields JSONB NOT NULL DEFAULT '{}'::jsonb
)`

const defaultInsertTimeout = 5 * time.Second

// PostgresSink persists entries into a honeypot_events table, creating the
// schema on first use.
type PostgresSink struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresSink connects the pool and ensures the schema exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, eventLogSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure event schema: %w", err)
	}
	return &PostgresSink{pool: pool, timeout: defaultInsertTimeout}, nil
}

// Write implements Sink.
func (s *PostgresSink) Write(entry Entry) error {
	fields := entry.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode entry fields: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO honeypot_events (event_id, occurred_at, message, is_error, src_ip, sensor, fields)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.EventID, entry.Timestamp, entry.Message, entry.IsError, entry.SrcIP, entry.Sensor, encoded)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
