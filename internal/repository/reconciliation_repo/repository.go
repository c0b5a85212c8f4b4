package reconciliation_repo

import (
	"context"
	"time"

	"dizimo/internal/domain"
)

// JobRepository stores deferred charge reconciliations.
type JobRepository interface {
	// EnqueueTx stores the job unless one already exists for its correlation id.
	EnqueueTx(ctx context.Context, querier domain.Querier, job *domain.ReconciliationJob) error
	// ClaimDueTx leases up to limit jobs that are due, or whose lease expired,
	// and increments their attempt counter.
	ClaimDueTx(ctx context.Context, querier domain.Querier, now time.Time, lease time.Duration, limit int) ([]domain.ReconciliationJob, error)
	MarkDoneTx(ctx context.Context, querier domain.Querier, id string) error
	RescheduleTx(ctx context.Context, querier domain.Querier, id string, dueAt time.Time, lastErr string) error
	MarkFailedTx(ctx context.Context, querier domain.Querier, id string, lastErr string) error
}
