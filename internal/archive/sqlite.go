package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/viperadnan-git/qrunner/internal/core/job"
)

type sqliteStore struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) Store {
	return &sqliteStore{db: db}
}

func (s *sqliteStore) Record(ctx context.Context, r Record) error {
	result := r.Result
	if result == nil {
		result = job.Counts{}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	var reason sql.NullString
	if r.Reason != "" {
		reason = sql.NullString{String: r.Reason, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO job_outcomes (job_id, username, q1, q2, status, result, reason, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.Username, r.Q1, r.Q2, string(r.Status), string(raw), reason, r.FinishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, username, q1, q2, status, result, reason, finished_at
		FROM job_outcomes
		ORDER BY finished_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r        Record
			status   string
			raw      string
			reason   sql.NullString
			finished int64
		)
		if err := rows.Scan(&r.JobID, &r.Username, &r.Q1, &r.Q2, &status, &raw, &reason, &finished); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &r.Result); err != nil {
			return nil, fmt.Errorf("decode result for %s: %w", r.JobID, err)
		}
		r.Status = job.Status(status)
		r.Reason = reason.String
		r.FinishedAt = time.UnixMilli(finished).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
