// Package sqlite provides SQLite-based persistent storage for clusterplug:
// the controller event journal and operator-set tunables.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/clusterplug/clusterplug/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode and a 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id     TEXT PRIMARY KEY,
			kind   TEXT NOT NULL,
			at     INTEGER NOT NULL,
			big    BOOLEAN NOT NULL DEFAULT 0,
			little BOOLEAN NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_at ON events(at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind)`,

		// Operator writes made through the API, overlaid on config at start.
		`CREATE TABLE IF NOT EXISTS tunables (
			name       TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS node_info (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Event Journal ──────────────────────────────────────────────────────────

// RecordEvent appends an event. Implements domain.EventRecorder.
func (d *DB) RecordEvent(e domain.Event) error {
	_, err := d.db.Exec(
		`INSERT INTO events (id, kind, at, big, little, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.At.UnixNano(), e.Policy.Big, e.Policy.Little, e.Detail,
	)
	return err
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	Kind  domain.EventKind
	Since time.Time
	Limit int
}

// ListEvents returns events newest first.
func (d *DB) ListEvents(f EventFilter) ([]domain.Event, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	var since int64
	if !f.Since.IsZero() {
		since = f.Since.UnixNano()
	}
	rows, err := d.db.Query(
		`SELECT id, kind, at, big, little, detail FROM events
		 WHERE (? = '' OR kind = ?) AND at >= ?
		 ORDER BY at DESC LIMIT ?`,
		string(f.Kind), string(f.Kind), since, f.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetEvent returns one event by ID.
func (d *DB) GetEvent(id string) (domain.Event, error) {
	row := d.db.QueryRow(
		`SELECT id, kind, at, big, little, detail FROM events WHERE id = ?`, id,
	)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return e, err
}

// PruneEvents keeps only the newest keep events and returns how many were
// removed.
func (d *DB) PruneEvents(keep int) (int64, error) {
	res, err := d.db.Exec(
		`DELETE FROM events WHERE id NOT IN (
			SELECT id FROM events ORDER BY at DESC LIMIT ?
		)`, keep,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountEvents returns the number of journaled events.
func (d *DB) CountEvents() (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// ─── Tunables ───────────────────────────────────────────────────────────────

// SetTunable stores an operator-set tunable value.
func (d *DB) SetTunable(name, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO tunables (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		name, value, time.Now().Unix(),
	)
	return err
}

// Tunables returns every stored tunable.
func (d *DB) Tunables() (map[string]string, error) {
	rows, err := d.db.Query(`SELECT name, value FROM tunables ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// DeleteTunable forgets a stored value so the config file wins again.
func (d *DB) DeleteTunable(name string) error {
	_, err := d.db.Exec(`DELETE FROM tunables WHERE name = ?`, name)
	return err
}

// ─── Node Info ──────────────────────────────────────────────────────────────

// SetNodeInfo stores a key-value pair in node_info.
func (d *DB) SetNodeInfo(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO node_info (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// GetNodeInfo retrieves a value from node_info.
func (d *DB) GetNodeInfo(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM node_info WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// ListNodeInfo returns every node_info entry.
func (d *DB) ListNodeInfo() (map[string]string, error) {
	rows, err := d.db.Query(`SELECT key, value FROM node_info`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	info := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		info[k] = v
	}
	return info, rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (domain.Event, error) {
	var e domain.Event
	var kind string
	var at int64
	if err := s.Scan(&e.ID, &kind, &at, &e.Policy.Big, &e.Policy.Little, &e.Detail); err != nil {
		return domain.Event{}, err
	}
	e.Kind = domain.EventKind(kind)
	e.At = time.Unix(0, at).UTC()
	return e, nil
}
