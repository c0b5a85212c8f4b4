package rollover

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"dizimo/internal/app/payments"
	"dizimo/internal/domain"
)

type Runner interface {
	Run(ctx context.Context, period domain.Period) (payments.RolloverReport, error)
}

// Trigger runs the monthly rollover on the first day of each month. A period
// that completed is not run again by this process; a run that aborted is
// retried on the next check of the same day.
type Trigger struct {
	runner   Runner
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu        sync.Mutex
	lastFired string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewTrigger(runner Runner, interval time.Duration, logger *zap.Logger) *Trigger {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Trigger{
		runner:   runner,
		interval: interval,
		now:      time.Now,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

func (t *Trigger) Start(ctx context.Context) {
	t.logger.Info("Starting rollover trigger", zap.Duration("check_interval", t.interval))
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stop:
				t.logger.Info("Rollover trigger stopped")
				return
			case <-ticker.C:
				t.Check(ctx)
			}
		}
	}()
}

func (t *Trigger) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	if t.done != nil {
		<-t.done
	}
}

// Check runs the rollover when today opens a period not yet rolled over.
// It reports whether a run happened.
func (t *Trigger) Check(ctx context.Context) bool {
	now := t.now()
	if now.Day() != 1 {
		return false
	}
	period := domain.PeriodOf(now)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastFired == period.String() {
		return false
	}

	t.logger.Info("Scheduled rollover firing", zap.String("period", period.String()))
	report, err := t.runner.Run(ctx, period)
	if err != nil {
		t.logger.Error("Scheduled rollover aborted, will retry",
			zap.String("period", period.String()),
			zap.Error(err))
		return true
	}
	t.lastFired = period.String()
	if report.Failures() > 0 {
		t.logger.Warn("Scheduled rollover finished with failures",
			zap.String("period", period.String()),
			zap.Int("failures", report.Failures()))
	}
	return true
}
