/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage keeps replay reports in a local SQLite database so snapping
// behaviour can be compared across tuning changes.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	applog "snapguide/internal/log"
	"snapguide/internal/trace"
	"snapguide/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

// schemaVersion tracks the store schema. Bump it together with a new case in runMigrations.
const schemaVersion = 2

// createdLayout is fixed width so created_at sorts chronologically as text.
const createdLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("session not found")

// Store is a handle to the report database.
type Store struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// Session is the stored header of one replay.
type Session struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Container string
	Summary   trace.Summary
}

// Open creates or opens the database at path, enables WAL and brings the schema up to date.
func Open(ctx context.Context, path string) (*Store, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "open").With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		l.Warn("enable foreign_keys failed", slog.Any("err", err))
	}
	if err := ensureVersion(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("store ready")
	return &Store{db: db, path: path, log: applog.WithComponent("storage")}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func ensureVersion(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS version (
			id         INTEGER PRIMARY KEY CHECK(id=1),
			schema     INTEGER NOT NULL,
			app        TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// fresh database: ensureSchema creates the v1 layout, migrations take it from there
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 1, ?, ?, ?)`, version.String(), now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, version.String(), now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// ensureSchema creates the v1 tables.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			container  TEXT NOT NULL,
			events     INTEGER NOT NULL,
			locks      INTEGER NOT NULL,
			releases   INTEGER NOT NULL,
			rot_locks  INTEGER NOT NULL,
			forced     INTEGER NOT NULL,
			checks     INTEGER NOT NULL,
			duration   INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			session_id TEXT    NOT NULL,
			idx        INTEGER NOT NULL,
			at_ms      INTEGER NOT NULL,
			kind       TEXT    NOT NULL,
			x          REAL    NOT NULL,
			y          REAL    NOT NULL,
			angle      REAL    NOT NULL,
			state      TEXT    NOT NULL,
			guide_h    INTEGER NOT NULL,
			guide_v    INTEGER NOT NULL,
			PRIMARY KEY(session_id, idx),
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			// rotation release counts and a lookup index for listing
			stmts = []string{
				`ALTER TABLE sessions ADD COLUMN rot_releases INTEGER NOT NULL DEFAULT 0;`,
				`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);`,
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

// SaveReport stores a replay report and returns its new session id.
func (s *Store) SaveReport(ctx context.Context, rep trace.Report) (string, error) {
	id := uuid.New().String()
	sum := rep.Summary
	c := rep.Container
	container := fmt.Sprintf("%g,%g,%g,%g", c.X, c.Y, c.W, c.H)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin save: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO sessions
		(id, name, created_at, container, events, locks, releases, rot_locks, rot_releases, forced, checks, duration)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rep.Name, formatCreated(time.Now()), container,
		sum.Events, sum.PositionLocks, sum.PositionReleases, sum.RotationLocks, sum.RotationReleases,
		sum.ForcedReleases, sum.GuideChecks, sum.DurationMs); err != nil {
		_ = tx.Rollback()
		return "", fmt.Errorf("insert session: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO steps
		(session_id, idx, at_ms, kind, x, y, angle, state, guide_h, guide_v)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return "", fmt.Errorf("prepare steps: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, st := range rep.Steps {
		if _, err := stmt.ExecContext(ctx, id, st.Index, st.AtMs, string(st.Kind), st.Applied.X, st.Applied.Y,
			st.Angle, st.State, boolInt(st.Guides.Horizontal), boolInt(st.Guides.Vertical)); err != nil {
			_ = tx.Rollback()
			return "", fmt.Errorf("insert step %d: %w", st.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit save: %w", err)
	}
	s.log.Info("report stored", slog.String("id", id), slog.String("name", rep.Name), slog.Int("steps", len(rep.Steps)))
	return id, nil
}

// ListSessions returns stored sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at, container, events, locks, releases,
		rot_locks, rot_releases, forced, checks, duration FROM sessions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Session loads one session header.
func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, created_at, container, events, locks, releases,
		rot_locks, rot_releases, forced, checks, duration FROM sessions WHERE id=?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return sess, err
}

// Steps returns the recorded steps of a session in order.
func (s *Store) Steps(ctx context.Context, id string) ([]trace.Step, error) {
	if _, err := s.Session(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT idx, at_ms, kind, x, y, angle, state, guide_h, guide_v
		FROM steps WHERE session_id=? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []trace.Step
	for rows.Next() {
		var st trace.Step
		var kind string
		var gh, gv int
		if err := rows.Scan(&st.Index, &st.AtMs, &kind, &st.Applied.X, &st.Applied.Y, &st.Angle, &st.State, &gh, &gv); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		st.Kind = trace.EventKind(kind)
		st.Guides.Horizontal = gh != 0
		st.Guides.Vertical = gv != 0
		out = append(out, st)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its steps.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(r scanner) (Session, error) {
	var sess Session
	var created string
	sum := &sess.Summary
	if err := r.Scan(&sess.ID, &sess.Name, &created, &sess.Container, &sum.Events, &sum.PositionLocks,
		&sum.PositionReleases, &sum.RotationLocks, &sum.RotationReleases, &sum.ForcedReleases,
		&sum.GuideChecks, &sum.DurationMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.CreatedAt = parseCreated(created)
	return sess, nil
}

func formatCreated(t time.Time) string { return t.UTC().Format(createdLayout) }

// parseCreated also accepts plain RFC 3339 values written by older versions.
func parseCreated(s string) time.Time {
	if ts, err := time.Parse(createdLayout, s); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts
	}
	return time.Time{}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
