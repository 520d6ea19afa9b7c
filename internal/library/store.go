// SPDX-License-Identifier: MIT

// Package library maintains a catalog of finished recordings backed by
// SQLite, kept in sync with the output directory.
package library

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

// Entry is one cataloged recording file.
type Entry struct {
	RecordingID    string `json:"recordingId"`
	Path           string `json:"path"`
	FileName       string `json:"fileName"`
	HomeName       string `json:"homeName"`
	AwayName       string `json:"awayName"`
	StartedAt      string `json:"startedAt"`
	EndedAt        string `json:"endedAt"`
	TotalSnapshots int    `json:"totalSnapshots"`
	SizeBytes      int64  `json:"sizeBytes"`
	IndexedAt      string `json:"indexedAt"`
}

// Store provides SQLite persistence for the recordings catalog.
type Store struct {
	db *sql.DB
}

// NewStore opens the catalog database and runs migrations.
// busy_timeout avoids "database locked" errors under concurrent use.
func NewStore(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS recordings (
		path TEXT PRIMARY KEY,
		recording_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		home_name TEXT NOT NULL,
		away_name TEXT NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT NOT NULL DEFAULT '',
		total_snapshots INTEGER NOT NULL DEFAULT 0,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		indexed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recordings_started ON recordings(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert inserts or refreshes a catalog entry keyed by file path.
func (s *Store) Upsert(ctx context.Context, e Entry) error {
	if e.IndexedAt == "" {
		e.IndexedAt = time.Now().UTC().Format(time.RFC3339)
	}
	query := `
	INSERT INTO recordings (path, recording_id, file_name, home_name, away_name, started_at, ended_at, total_snapshots, size_bytes, indexed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		recording_id = excluded.recording_id,
		file_name = excluded.file_name,
		home_name = excluded.home_name,
		away_name = excluded.away_name,
		started_at = excluded.started_at,
		ended_at = excluded.ended_at,
		total_snapshots = excluded.total_snapshots,
		size_bytes = excluded.size_bytes,
		indexed_at = excluded.indexed_at
	`
	_, err := s.db.ExecContext(ctx, query,
		e.Path, e.RecordingID, e.FileName, e.HomeName, e.AwayName,
		e.StartedAt, e.EndedAt, e.TotalSnapshots, e.SizeBytes, e.IndexedAt)
	if err != nil {
		return fmt.Errorf("upsert recording: %w", err)
	}
	return nil
}

// Remove drops the entry for path. Removing an unknown path is a no-op.
func (s *Store) Remove(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM recordings WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("remove recording: %w", err)
	}
	return nil
}

// List returns all cataloged recordings, newest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	query := `
	SELECT path, recording_id, file_name, home_name, away_name, started_at, ended_at, total_snapshots, size_bytes, indexed_at
	FROM recordings
	ORDER BY started_at DESC, path
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Path, &e.RecordingID, &e.FileName, &e.HomeName, &e.AwayName,
			&e.StartedAt, &e.EndedAt, &e.TotalSnapshots, &e.SizeBytes, &e.IndexedAt); err != nil {
			return nil, fmt.Errorf("scan recording row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recordings: %w", err)
	}
	return entries, nil
}

// Get looks up a single entry by path.
func (s *Store) Get(ctx context.Context, path string) (Entry, bool, error) {
	query := `
	SELECT path, recording_id, file_name, home_name, away_name, started_at, ended_at, total_snapshots, size_bytes, indexed_at
	FROM recordings WHERE path = ?
	`
	var e Entry
	err := s.db.QueryRowContext(ctx, query, path).Scan(
		&e.Path, &e.RecordingID, &e.FileName, &e.HomeName, &e.AwayName,
		&e.StartedAt, &e.EndedAt, &e.TotalSnapshots, &e.SizeBytes, &e.IndexedAt)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get recording: %w", err)
	}
	return e, true, nil
}
