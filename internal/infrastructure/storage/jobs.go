package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
)

const jobReturning = "RETURNING id, kind, target_id, status, attempts, last_error, created_at, updated_at"

const claimPendingQuery = `
	UPDATE enrichment_jobs
	SET status = 'processing', updated_at = NOW()
	WHERE id IN (
		SELECT id FROM enrichment_jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	` + jobReturning

// A failure below the ceiling goes back to pending; reaching it is terminal.
const failJobQuery = `
	UPDATE enrichment_jobs
	SET
		status = CASE
			WHEN attempts + 1 >= $1 THEN 'failed'
			ELSE 'pending'
		END,
		attempts = attempts + 1,
		last_error = $2,
		updated_at = NOW()
	WHERE id = $3 AND status = 'processing'
	RETURNING status`

// JobRepository is the durable enrichment queue.
type JobRepository struct {
	db DB
}

var _ ports.JobRepository = (*JobRepository)(nil)

// NewJobRepository wires a pool.
func NewJobRepository(db DB) *JobRepository {
	return &JobRepository{db: db}
}

// ClaimPending moves up to limit pending jobs to processing, oldest first.
// Rows locked by a concurrent claimer are skipped, so a job is claimed once.
func (r *JobRepository) ClaimPending(ctx context.Context, limit int) ([]domain.EnrichmentJob, error) {
	rows, err := r.db.Query(ctx, claimPendingQuery, limit)
	if err != nil {
		return nil, mapError(err, "jobs.ClaimPending")
	}
	defer rows.Close()

	jobs := make([]domain.EnrichmentJob, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, mapError(err, "jobs.ClaimPending")
		}
		jobs = append(jobs, job)
	}
	return jobs, mapError(rows.Err(), "jobs.ClaimPending")
}

// Complete finishes a processing job.
func (r *JobRepository) Complete(ctx context.Context, id uuid.UUID) error {
	n, err := exec(ctx, r.db, "jobs.Complete", psql.Update("enrichment_jobs").
		Set("status", string(domain.JobCompleted)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id, "status": string(domain.JobProcessing)}))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("jobs.Complete %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Fail records an attempt and returns the resulting status.
func (r *JobRepository) Fail(ctx context.Context, id uuid.UUID, lastError string, maxAttempts int) (domain.JobStatus, error) {
	var status string
	if err := r.db.QueryRow(ctx, failJobQuery, maxAttempts, lastError, id).Scan(&status); err != nil {
		return "", mapError(err, fmt.Sprintf("jobs.Fail %s", id))
	}
	return domain.JobStatus(status), nil
}

// ResetStale returns processing jobs untouched since before to pending.
func (r *JobRepository) ResetStale(ctx context.Context, before time.Time) (int, error) {
	n, err := exec(ctx, r.db, "jobs.ResetStale", psql.Update("enrichment_jobs").
		Set("status", string(domain.JobPending)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"status": string(domain.JobProcessing)}).
		Where(squirrel.Lt{"updated_at": before}))
	return int(n), err
}

// CountByTarget counts jobs referencing a content item.
func (r *JobRepository) CountByTarget(ctx context.Context, targetID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM enrichment_jobs WHERE target_id = $1`, targetID).Scan(&n)
	if err != nil {
		return 0, mapError(err, "jobs.CountByTarget")
	}
	return n, nil
}

func scanJob(row pgx.Row) (domain.EnrichmentJob, error) {
	var (
		job          domain.EnrichmentJob
		kind, status string
	)
	if err := row.Scan(&job.ID, &kind, &job.TargetID, &status, &job.Attempts, &job.LastError, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return domain.EnrichmentJob{}, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	return job, nil
}
