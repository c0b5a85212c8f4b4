package rollover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"dizimo/internal/app/payments"
	"dizimo/internal/domain"
)

type MockRunner struct {
	mu      sync.Mutex
	Periods []domain.Period
	Err     error
}

func (m *MockRunner) Run(_ context.Context, period domain.Period) (payments.RolloverReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Periods = append(m.Periods, period)
	return payments.RolloverReport{Period: period.String()}, m.Err
}

func newTrigger(runner Runner, now *time.Time) *Trigger {
	trigger := NewTrigger(runner, time.Minute, zap.NewNop())
	trigger.now = func() time.Time { return *now }
	return trigger
}

func TestTrigger_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("Given a mid month day When Check Then nothing runs", func(t *testing.T) {
		runner := &MockRunner{}
		now := time.Date(2024, time.March, 15, 0, 5, 0, 0, time.UTC)

		if newTrigger(runner, &now).Check(ctx) {
			t.Error("Check() = true on the 15th")
		}
		if len(runner.Periods) != 0 {
			t.Errorf("runs = %v", runner.Periods)
		}
	})

	t.Run("Given the first day When Check repeatedly Then the period runs once", func(t *testing.T) {
		// Given
		runner := &MockRunner{}
		now := time.Date(2024, time.April, 1, 0, 1, 0, 0, time.UTC)
		trigger := newTrigger(runner, &now)

		// When
		first := trigger.Check(ctx)
		now = now.Add(time.Minute)
		second := trigger.Check(ctx)

		// Then
		if !first || second {
			t.Errorf("Check() = %v then %v, want true then false", first, second)
		}
		if len(runner.Periods) != 1 || runner.Periods[0] != (domain.Period{Month: domain.April, Year: 2024}) {
			t.Errorf("runs = %v", runner.Periods)
		}
	})

	t.Run("Given an aborted run When Check again Then it retries", func(t *testing.T) {
		runner := &MockRunner{Err: errors.New("db down")}
		now := time.Date(2024, time.May, 1, 0, 1, 0, 0, time.UTC)
		trigger := newTrigger(runner, &now)

		trigger.Check(ctx)
		runner.Err = nil
		trigger.Check(ctx)
		trigger.Check(ctx)

		if len(runner.Periods) != 2 {
			t.Errorf("runs = %d, want 2", len(runner.Periods))
		}
	})

	t.Run("Given the next month When Check Then the new period runs", func(t *testing.T) {
		runner := &MockRunner{}
		now := time.Date(2024, time.December, 1, 0, 1, 0, 0, time.UTC)
		trigger := newTrigger(runner, &now)

		trigger.Check(ctx)
		now = time.Date(2025, time.January, 1, 0, 1, 0, 0, time.UTC)
		trigger.Check(ctx)

		if len(runner.Periods) != 2 || runner.Periods[1] != (domain.Period{Month: domain.January, Year: 2025}) {
			t.Errorf("runs = %v", runner.Periods)
		}
	})
}
