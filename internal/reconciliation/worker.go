package reconciliation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"dizimo/internal/domain"
	"dizimo/internal/infrastructure/database"
	"dizimo/internal/repository/reconciliation_repo"
)

// Reconciler settles or discards the payment behind one charge.
type Reconciler interface {
	Reconcile(ctx context.Context, correlationID string) error
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
	Lease        time.Duration
}

// Result counts the outcome of one claimed batch.
type Result struct {
	Claimed     int `json:"claimed"`
	Done        int `json:"done"`
	Rescheduled int `json:"rescheduled"`
	Failed      int `json:"failed"`
}

func (r *Result) add(o Result) {
	r.Claimed += o.Claimed
	r.Done += o.Done
	r.Rescheduled += o.Rescheduled
	r.Failed += o.Failed
}

// Worker runs due reconciliation jobs. Jobs live in the database, so a
// restart loses nothing: unclaimed jobs stay PENDING and a crashed worker's
// claims become due again when their lease runs out.
type Worker struct {
	tx         database.Transactor
	jobs       reconciliation_repo.JobRepository
	reconciler Reconciler
	cfg        Config
	now        func() time.Time
	logger     *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewWorker(
	tx database.Transactor,
	jobs reconciliation_repo.JobRepository,
	reconciler Reconciler,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Minute
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	return &Worker{
		tx:         tx,
		jobs:       jobs,
		reconciler: reconciler,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
		stop:       make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting reconciliation worker",
		zap.Duration("poll_interval", w.cfg.PollInterval),
		zap.Int("batch_size", w.cfg.BatchSize))
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("Reconciliation worker context cancelled")
				return
			case <-w.stop:
				w.logger.Info("Reconciliation worker stopped")
				return
			case <-ticker.C:
				if _, err := w.RunOnce(ctx); err != nil {
					w.logger.Error("Reconciliation poll failed", zap.Error(err))
				}
			}
		}
	}()
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.done != nil {
		<-w.done
	}
}

// RunOnce claims one batch of due jobs and runs them.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	var claimed []domain.ReconciliationJob
	err := w.tx.WithinTx(ctx, func(q domain.Querier) error {
		var err error
		claimed, err = w.jobs.ClaimDueTx(ctx, q, w.now(), w.cfg.Lease, w.cfg.BatchSize)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{Claimed: len(claimed)}
	for _, job := range claimed {
		if ctx.Err() != nil {
			// Unfinished claims become due again once the lease expires.
			return result, ctx.Err()
		}
		switch w.runJob(ctx, job) {
		case domain.ReconciliationDone:
			result.Done++
		case domain.ReconciliationFailed:
			result.Failed++
		case domain.ReconciliationPending:
			result.Rescheduled++
		}
	}
	if result.Claimed > 0 {
		w.logger.Info("Reconciliation batch finished",
			zap.Int("claimed", result.Claimed),
			zap.Int("done", result.Done),
			zap.Int("rescheduled", result.Rescheduled),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

// Drain runs batches until no due job is left.
func (w *Worker) Drain(ctx context.Context) (Result, error) {
	var total Result
	for {
		result, err := w.RunOnce(ctx)
		total.add(result)
		if err != nil {
			return total, err
		}
		if result.Claimed < w.cfg.BatchSize {
			return total, nil
		}
	}
}

func (w *Worker) runJob(ctx context.Context, job domain.ReconciliationJob) domain.ReconciliationJobStatus {
	logger := w.logger.With(
		zap.String("job_id", job.ID),
		zap.String("payment_id", job.PaymentID),
		zap.Int("attempt", job.Attempts))

	runErr := w.reconciler.Reconcile(ctx, job.CorrelationID)

	next := domain.ReconciliationDone
	var lastErr string
	switch {
	case runErr == nil:
	case errors.Is(runErr, domain.ErrPaymentNotFound):
		// The charge was replaced or the payment removed.
		logger.Info("Reconciliation superseded", zap.Error(runErr))
	case job.Attempts >= w.cfg.MaxAttempts:
		next = domain.ReconciliationFailed
		lastErr = runErr.Error()
	default:
		next = domain.ReconciliationPending
		lastErr = runErr.Error()
	}

	err := w.tx.WithinTx(ctx, func(q domain.Querier) error {
		switch next {
		case domain.ReconciliationDone:
			return w.jobs.MarkDoneTx(ctx, q, job.ID)
		case domain.ReconciliationFailed:
			return w.jobs.MarkFailedTx(ctx, q, job.ID, lastErr)
		default:
			return w.jobs.RescheduleTx(ctx, q, job.ID, w.now().Add(w.backoff(job.Attempts)), lastErr)
		}
	})
	if err != nil {
		logger.Error("Failed to record reconciliation outcome",
			zap.String("outcome", string(next)),
			zap.Error(err))
		return domain.ReconciliationProcessing
	}

	switch next {
	case domain.ReconciliationFailed:
		logger.Error("Reconciliation gave up", zap.String("last_error", lastErr))
	case domain.ReconciliationPending:
		if errors.Is(runErr, domain.ErrChargeStillActive) {
			logger.Debug("Charge still active, rescheduled")
		} else {
			logger.Warn("Reconciliation attempt failed, rescheduled", zap.Error(runErr))
		}
	}
	return next
}

// backoff grows linearly with the attempt count.
func (w *Worker) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(attempts) * w.cfg.RetryBackoff
}
