package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dizimo/internal/domain"
	"dizimo/internal/infrastructure/database"
)

const jobColumns = `id, payment_id, correlation_id, status, due_at, attempts, last_error, locked_until, created_at, updated_at`

type JobRepository struct{}

func NewJobRepository() *JobRepository {
	return &JobRepository{}
}

func (r *JobRepository) EnqueueTx(ctx context.Context, querier domain.Querier, job *domain.ReconciliationJob) error {
	query := `
		INSERT INTO reconciliation_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (correlation_id) DO NOTHING
	`
	_, err := querier.ExecContext(ctx, query,
		job.ID,
		job.PaymentID,
		job.CorrelationID,
		job.Status,
		job.DueAt,
		job.Attempts,
		database.NullString(job.LastError),
		database.NullTime(job.LockedUntil),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue reconciliation for %s: %w", job.CorrelationID, err)
	}
	return nil
}

func (r *JobRepository) ClaimDueTx(ctx context.Context, querier domain.Querier, now time.Time, lease time.Duration, limit int) ([]domain.ReconciliationJob, error) {
	query := `
		UPDATE reconciliation_jobs
		SET status = $1, locked_until = $2, attempts = attempts + 1, updated_at = $3
		WHERE id IN (
			SELECT id FROM reconciliation_jobs
			WHERE (status = $4 AND due_at <= $3) OR (status = $1 AND locked_until < $3)
			ORDER BY due_at
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns
	rows, err := querier.QueryContext(ctx, query,
		domain.ReconciliationProcessing,
		now.Add(lease),
		now,
		domain.ReconciliationPending,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim reconciliation jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ReconciliationJob
	for rows.Next() {
		var (
			job         domain.ReconciliationJob
			lastErr     sql.NullString
			lockedUntil sql.NullTime
		)
		err := rows.Scan(
			&job.ID,
			&job.PaymentID,
			&job.CorrelationID,
			&job.Status,
			&job.DueAt,
			&job.Attempts,
			&lastErr,
			&lockedUntil,
			&job.CreatedAt,
			&job.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation job: %w", err)
		}
		job.LastError = database.StringPtr(lastErr)
		job.LockedUntil = database.TimePtr(lockedUntil)
		jobs = append(jobs, job)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reconciliation jobs: %w", err)
	}
	return jobs, nil
}

func (r *JobRepository) setStatus(ctx context.Context, querier domain.Querier, id string, status domain.ReconciliationJobStatus, dueAt *time.Time, lastErr *string) error {
	query := `
		UPDATE reconciliation_jobs
		SET status = $1, due_at = COALESCE($2, due_at), last_error = $3, locked_until = NULL, updated_at = $4
		WHERE id = $5
	`
	res, err := querier.ExecContext(ctx, query, status, database.NullTime(dueAt), database.NullString(lastErr), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set reconciliation job %s to %s: %w", id, status, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("reconciliation job %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *JobRepository) MarkDoneTx(ctx context.Context, querier domain.Querier, id string) error {
	return r.setStatus(ctx, querier, id, domain.ReconciliationDone, nil, nil)
}

func (r *JobRepository) RescheduleTx(ctx context.Context, querier domain.Querier, id string, dueAt time.Time, lastErr string) error {
	return r.setStatus(ctx, querier, id, domain.ReconciliationPending, &dueAt, &lastErr)
}

func (r *JobRepository) MarkFailedTx(ctx context.Context, querier domain.Querier, id string, lastErr string) error {
	return r.setStatus(ctx, querier, id, domain.ReconciliationFailed, nil, &lastErr)
}
