package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS preferences (
	device_id  TEXT NOT NULL,
	name       TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (device_id, name)
);
CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	name       TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_name ON events (name);
`

// DB persists visitor preferences and analytics events in SQLite
type DB struct {
	db *sql.DB
}

// EventRow is one stored analytics event
type EventRow struct {
	SessionID string
	Name      string
	Payload   map[string]any
	CreatedAt time.Time
}

// Open opens (creating if needed) the database at path; ":memory:" works for tests
func Open(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Preference returns a stored value and whether it exists
func (d *DB) Preference(ctx context.Context, deviceID, name string) (string, bool, error) {
	var value string
	err := d.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE device_id = ? AND name = ?`, deviceID, name,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read preference %s: %w", name, err)
	}
	return value, true, nil
}

// SetPreference stores a value, replacing any previous one
func (d *DB) SetPreference(ctx context.Context, deviceID, name, value string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO preferences (device_id, name, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (device_id, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		deviceID, name, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", name, err)
	}
	return nil
}

// InsertEvents writes a batch of events in one transaction
func (d *DB) InsertEvents(ctx context.Context, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (session_id, name, payload, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		payload, err := json.Marshal(row.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload for %s: %w", row.Name, err)
		}
		if _, err := stmt.ExecContext(ctx, row.SessionID, row.Name, string(payload), row.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("failed to insert event %s: %w", row.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	return nil
}

// EventCounts returns how many events of each name were stored since the given time
func (d *DB) EventCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name, COUNT(*) FROM events WHERE created_at >= ? GROUP BY name`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// SessionEvents returns a session's events in insertion order
func (d *DB) SessionEvents(ctx context.Context, sessionID string) ([]EventRow, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT session_id, name, payload, created_at FROM events WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var row EventRow
		var payload string
		var created int64
		if err := rows.Scan(&row.SessionID, &row.Name, &payload, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &row.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload: %w", err)
		}
		row.CreatedAt = time.UnixMilli(created)
		out = append(out, row)
	}
	return out, rows.Err()
}
