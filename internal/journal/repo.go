package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/postlock/internal/apperr"
	"github.com/starford/postlock/internal/models"
)

// FileRow is a row in the files table.
type FileRow struct {
	models.FileResult
	RunID     string    `json:"run_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunRow is a row in the runs table.
type RunRow struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Processed  int        `json:"processed"`
	Locked     int        `json:"locked"`
	Unchanged  int        `json:"unchanged"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Links      int        `json:"links"`
	Images     int        `json:"images"`
}

// RecordFile upserts the outcome of processing one post.
func (db *DB) RecordFile(runID string, r models.FileResult) error {
	_, err := db.conn.Exec(`
		INSERT INTO files (path, checksum, outcome, links, reason, error, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			outcome    = excluded.outcome,
			links      = excluded.links,
			reason     = excluded.reason,
			error      = excluded.error,
			run_id     = excluded.run_id,
			updated_at = excluded.updated_at
	`, r.Path, r.Checksum, string(r.Outcome), r.Links, r.Reason, r.Error, runID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("journal: record file: %w", err)
	}
	return nil
}

// GetChecksum returns the checksum recorded after the last successful
// processing of path, or "" when there is none.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM files WHERE path = ? AND outcome != ?`,
		path, string(models.OutcomeFailed)).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("journal: get checksum: %w", err)
	}
	return cs, nil
}

// GetFile returns the journal row for path.
func (db *DB) GetFile(path string) (*FileRow, error) {
	row := db.conn.QueryRow(`
		SELECT path, checksum, outcome, links, reason, error, run_id, updated_at
		FROM files WHERE path = ?`, path)
	r, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("journal: get file: %w", err)
	}
	return r, nil
}

// ListFiles returns journal rows ordered by path, optionally filtered by
// outcome, along with the total number of matching rows.
func (db *DB) ListFiles(outcome string, limit, offset int) ([]FileRow, int, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []any{}
	if outcome != "" {
		where = "WHERE outcome = ?"
		args = append(args, outcome)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM files `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("journal: count files: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT path, checksum, outcome, links, reason, error, run_id, updated_at
		FROM files `+where+` ORDER BY path LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("journal: list files: %w", err)
	}
	defer rows.Close()

	var out []FileRow
	for rows.Next() {
		r, err := scanFile(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

// StartRun inserts a new run row.
func (db *DB) StartRun(id string, startedAt time.Time) error {
	if _, err := db.conn.Exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`, id, startedAt.UTC()); err != nil {
		return fmt.Errorf("journal: start run: %w", err)
	}
	return nil
}

// FinishRun stores the final counters of a run.
func (db *DB) FinishRun(r RunRow) error {
	finished := time.Now().UTC()
	if r.FinishedAt != nil {
		finished = r.FinishedAt.UTC()
	}
	res, err := db.conn.Exec(`
		UPDATE runs SET finished_at = ?, processed = ?, locked = ?, unchanged = ?,
			skipped = ?, failed = ?, links = ?, images = ?
		WHERE id = ?`,
		finished, r.Processed, r.Locked, r.Unchanged, r.Skipped, r.Failed, r.Links, r.Images, r.ID)
	if err != nil {
		return fmt.Errorf("journal: finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("journal: finish run %s: %w", r.ID, apperr.ErrNotFound)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, started_at, finished_at, processed, locked, unchanged, skipped, failed, links, images
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Processed, &r.Locked,
			&r.Unchanged, &r.Skipped, &r.Failed, &r.Links, &r.Images); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*FileRow, error) {
	var r FileRow
	var outcome string
	if err := s.Scan(&r.Path, &r.Checksum, &outcome, &r.Links, &r.Reason, &r.Error, &r.RunID, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Outcome = models.Outcome(outcome)
	return &r, nil
}
