package outbox_repo

import (
	"context"

	"dizimo/internal/domain"
)

type OutboxRepository interface {
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.OutboxMessage) error
	// GetPendingMessagesTx locks up to limit pending rows; call it inside a transaction.
	GetPendingMessagesTx(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error)
	MarkMessagesAsSentTx(ctx context.Context, querier domain.Querier, ids []string) error
	MarkMessagesAsFailedTx(ctx context.Context, querier domain.Querier, ids []string) error
	// IncrementAttemptsTx records one more failed delivery; the rows stay pending.
	IncrementAttemptsTx(ctx context.Context, querier domain.Querier, ids []string) error
}
