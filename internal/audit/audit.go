// Package audit persists fatal and subsystem-failure events to Postgres,
// entirely off the hot path: nothing in the ingest loop ever blocks on
// it, and when no DSN is configured a no-op sink satisfies the same
// interface.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Level classifies an audit event's severity.
type Level string

const (
	LevelFatalConfig           Level = "fatal_config"
	LevelTransientNetwork      Level = "transient_network_exhausted"
	LevelAggregatorFailure     Level = "aggregator_failure"
	LevelFetcherFailure        Level = "fetcher_failure"
)

// Event is one row appended to audit_log.
type Event struct {
	Component string
	Level     Level
	Message   string
}

// Sink records Events. NewNoop satisfies it for installs with no
// configured Postgres DSN.
type Sink interface {
	EnsureSchema(ctx context.Context) error
	Record(ctx context.Context, ev Event) error
	Close() error
}

type noopSink struct{}

// NewNoop returns a Sink that discards every event, used whenever no DSN
// is configured so every caller stays unaffected.
func NewNoop() Sink { return noopSink{} }

func (noopSink) EnsureSchema(context.Context) error   { return nil }
func (noopSink) Record(context.Context, Event) error  { return nil }
func (noopSink) Close() error                         { return nil }

// pgSink appends one row per Event to audit_log(id, ts, component,
// level, message).
type pgSink struct {
	db *sqlx.DB
}

// New opens a Postgres sink against dsn. The caller owns calling Close.
func New(dsn string) (Sink, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}
	return &pgSink{db: db}, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS audit_log (
	id        UUID PRIMARY KEY,
	ts        TIMESTAMPTZ NOT NULL,
	component TEXT NOT NULL,
	level     TEXT NOT NULL,
	message   TEXT NOT NULL
)`

// EnsureSchema creates audit_log if it doesn't already exist. Safe to
// call repeatedly at startup.
func (s *pgSink) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return fmt.Errorf("ensure audit_log schema: %w", err)
	}
	return nil
}

func (s *pgSink) Record(ctx context.Context, ev Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log(id, ts, component, level, message) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), time.Now().UTC(), ev.Component, string(ev.Level), ev.Message,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *pgSink) Close() error {
	return s.db.Close()
}
