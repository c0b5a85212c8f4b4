package payments

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"dizimo/internal/domain"
	"dizimo/internal/infrastructure/database"
	"dizimo/internal/repository/inbox_repo"
)

// Reconciler is the part of Service charge events drive.
type Reconciler interface {
	Reconcile(ctx context.Context, correlationID string) error
}

// ChargeEvents applies provider notifications about charge status changes.
// Notifications arriving through Kafka are recorded in the inbox so a
// redelivered event is applied once.
type ChargeEvents struct {
	tx         database.Transactor
	inbox      inbox_repo.InboxRepository
	reconciler Reconciler
	logger     *zap.Logger
}

func NewChargeEvents(tx database.Transactor, inbox inbox_repo.InboxRepository, reconciler Reconciler, logger *zap.Logger) *ChargeEvents {
	return &ChargeEvents{tx: tx, inbox: inbox, reconciler: reconciler, logger: logger}
}

// Handle reconciles the charge named by event when its status is final.
// record may be nil when the source has no stable event id.
func (c *ChargeEvents) Handle(ctx context.Context, record *domain.InboxMessage, event domain.ChargeEvent) error {
	correlationID := event.Charge.CorrelationID
	if correlationID == "" {
		return domain.NewValidationError("charge.correlationID", "is required")
	}

	if record != nil {
		err := c.tx.WithinTx(ctx, func(q domain.Querier) error {
			return c.inbox.CreateMessageTx(ctx, q, record)
		})
		switch {
		case errors.Is(err, inbox_repo.ErrMessageAlreadyProcessed):
			c.logger.Info("Charge event already processed",
				zap.String("event_id", record.ID),
				zap.String("correlation_id", correlationID))
			return nil
		case errors.Is(err, inbox_repo.ErrMessageAlreadyPending):
			c.logger.Info("Retrying unfinished charge event", zap.String("event_id", record.ID))
		case err != nil:
			return fmt.Errorf("failed to record charge event %s: %w", record.ID, err)
		}
	}

	if err := c.apply(ctx, event); err != nil {
		return err
	}

	if record != nil {
		err := c.tx.WithinTx(ctx, func(q domain.Querier) error {
			return c.inbox.UpdateStatusTx(ctx, q, record.ID, domain.InboxStatusProcessed)
		})
		if err != nil {
			return fmt.Errorf("failed to mark charge event %s processed: %w", record.ID, err)
		}
	}
	return nil
}

func (c *ChargeEvents) apply(ctx context.Context, event domain.ChargeEvent) error {
	correlationID := event.Charge.CorrelationID
	switch event.Charge.Status {
	case domain.ChargeStatusCompleted, domain.ChargeStatusExpired:
	default:
		c.logger.Debug("Ignoring non final charge event",
			zap.String("event", event.Event),
			zap.String("correlation_id", correlationID),
			zap.String("charge_status", string(event.Charge.Status)))
		return nil
	}

	err := c.reconciler.Reconcile(ctx, correlationID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrPaymentNotFound):
		c.logger.Warn("Charge event for unknown charge", zap.String("correlation_id", correlationID))
		return nil
	case errors.Is(err, domain.ErrChargeStillActive):
		// The provider's own view disagrees with the event; the scheduled
		// reconciliation settles it later.
		c.logger.Warn("Charge event ahead of provider state", zap.String("correlation_id", correlationID))
		return nil
	default:
		return err
	}
}
