// Package progress records per-video extraction outcomes in SQLite so an
// interrupted run can resume without re-extracting finished videos.
package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Status is the outcome of one video.
type Status string

const (
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
	// StatusPartial means the video row is written but its comments may
	// not be. Resume treats it as finished so the row is never duplicated.
	StatusPartial Status = "partial"
)

// Finished reports whether a video with this status must not be extracted
// again.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusPartial
}

// Store is a progress database. The zero value is not usable; call Open.
type Store struct {
	db    *sql.DB
	runID string
}

// Open opens (or creates) the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("progress: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("progress: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("progress: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			hashtags   TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS videos (
			url        TEXT PRIMARY KEY,
			hashtag    TEXT NOT NULL,
			status     TEXT NOT NULL,
			error      TEXT,
			run_id     TEXT,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// BeginRun registers a new run and returns its id. Later Marks are attributed
// to it.
func (s *Store) BeginRun(ctx context.Context, hashtags []string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, hashtags) VALUES (?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339), strings.Join(hashtags, ","),
	)
	if err != nil {
		return "", fmt.Errorf("progress: begin run: %w", err)
	}
	s.runID = id
	return id, nil
}

// Mark records the outcome for url, replacing any earlier outcome.
func (s *Store) Mark(ctx context.Context, url, hashtag string, status Status, cause error) error {
	var msg sql.NullString
	if cause != nil {
		msg = sql.NullString{String: cause.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO videos (url, hashtag, status, error, run_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
		   hashtag = excluded.hashtag,
		   status = excluded.status,
		   error = excluded.error,
		   run_id = excluded.run_id,
		   updated_at = excluded.updated_at`,
		url, hashtag, string(status), msg, s.runID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("progress: mark %s: %w", url, err)
	}
	return nil
}

// Done reports whether any run already wrote the video row for url.
func (s *Store) Done(ctx context.Context, url string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM videos WHERE url = ?`, url).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("progress: lookup %s: %w", url, err)
	}
	return Status(status).Finished(), nil
}

// Counts returns the number of videos per status.
func (s *Store) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM videos GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("progress: counts: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("progress: scan counts: %w", err)
		}
		out[Status(status)] = n
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
