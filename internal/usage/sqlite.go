// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ManuGH/lessonmedia/internal/persistence/sqlite"
	"github.com/ManuGH/lessonmedia/internal/resource"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS usage_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		kind        TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		session_id  TEXT NOT NULL DEFAULT '',
		at_unix_ms  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS usage_events_resource ON usage_events(kind, resource_id)`,
}

// SQLiteSink appends events to a local SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLiteSink opens (and migrates) the event database at path.
func OpenSQLiteSink(ctx context.Context, path string) (*SQLiteSink, error) {
	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Write(ctx context.Context, events []Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO usage_events (name, kind, resource_id, session_id, at_unix_ms) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.Name, string(e.Kind), e.ResourceID, e.SessionID, e.At.UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert usage event: %w", err)
		}
	}
	return tx.Commit()
}

// Count returns the number of stored events for (kind, id), or all events
// when id is empty.
func (s *SQLiteSink) Count(ctx context.Context, kind resource.Kind, id string) (int, error) {
	var n int
	var err error
	if id == "" {
		err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM usage_events`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM usage_events WHERE kind = ? AND resource_id = ?`, string(kind), id).Scan(&n)
	}
	return n, err
}

// Recent returns the newest events, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name, kind, resource_id, session_id, at_unix_ms FROM usage_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var kind string
		var ms int64
		if err := rows.Scan(&e.Name, &kind, &e.ResourceID, &e.SessionID, &ms); err != nil {
			return nil, err
		}
		e.Kind = resource.Kind(kind)
		e.At = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Check reports database health.
func (s *SQLiteSink) Check(ctx context.Context) error {
	issues, err := sqlite.CheckIntegrity(ctx, s.db, false)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("usage database integrity: %v", issues)
	}
	return nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
