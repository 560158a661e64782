package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore keeps the telemetry history in Postgres/Timescale or SQLite.
// Inserts are idempotent on event_id so WAL replays never duplicate rows.
type SQLStore struct {
	db    *sqlx.DB
	table string
}

// Open connects with driver ("postgres" or "sqlite3") and pings the database.
func Open(ctx context.Context, driver, dsn, table string) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	s, err := New(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sqlx.DB, table string) (*SQLStore, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SQLStore{db: db, table: table}, nil
}

func (s *SQLStore) Name() string { return "sql:" + s.db.DriverName() }

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	event_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	ts TIMESTAMP NOT NULL,
	payload TEXT NOT NULL
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_kind_ts_idx ON %s (kind, ts)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) WriteBatch(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.table)
	b.WriteString(" (event_id, kind, ts, payload) VALUES ")

	args := make([]any, 0, len(events)*4)
	for i, ev := range events {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?,?,?,?)")
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.ID, err)
		}
		args = append(args, ev.ID, string(ev.Type), ev.Timestamp.UTC(), string(payload))
	}

	b.WriteString(" ON CONFLICT (event_id) DO NOTHING")

	_, err := s.db.ExecContext(ctx, s.db.Rebind(b.String()), args...)
	return err
}

// Recent returns up to limit events, newest first. An empty kind matches all.
func (s *SQLStore) Recent(ctx context.Context, kind domain.EventType, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT payload FROM " + s.table
	args := []any{}
	if kind != "" {
		q += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	q += " ORDER BY ts DESC LIMIT ?"
	args = append(args, limit)

	var payloads []string
	if err := s.db.SelectContext(ctx, &payloads, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	out := make([]domain.Event, 0, len(payloads))
	for _, p := range payloads {
		var ev domain.Event
		if err := json.Unmarshal([]byte(p), &ev); err != nil {
			return nil, fmt.Errorf("decode history row: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

var _ ports.Sink = (*SQLStore)(nil)
