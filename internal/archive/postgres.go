package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/viperadnan-git/qrunner/internal/core/job"
)

type pgStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) Record(ctx context.Context, r Record) error {
	reason := pgtype.Text{String: r.Reason, Valid: r.Reason != ""}
	finished := pgtype.Timestamptz{Time: r.FinishedAt, Valid: true}
	result := r.Result
	if result == nil {
		result = job.Counts{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_outcomes (job_id, username, q1, q2, status, result, reason, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO NOTHING`,
		r.JobID, r.Username, r.Q1, r.Q2, string(r.Status), result, reason, finished)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

func (s *pgStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, username, q1, q2, status, result, reason, finished_at
		FROM job_outcomes
		ORDER BY finished_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r        Record
			status   string
			reason   pgtype.Text
			finished pgtype.Timestamptz
		)
		if err := rows.Scan(&r.JobID, &r.Username, &r.Q1, &r.Q2, &status, &r.Result, &reason, &finished); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		r.Status = job.Status(status)
		r.Reason = reason.String
		r.FinishedAt = finished.Time
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}
