package inbox_repo

import (
	"context"
	"errors"

	"dizimo/internal/domain"
)

type InboxRepository interface {
	// CreateMessageTx records a received event. It returns
	// ErrMessageAlreadyProcessed or ErrMessageAlreadyPending when the event id
	// was seen before.
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error
	UpdateStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.InboxMessageStatus) error
	GetMessageTx(ctx context.Context, querier domain.Querier, id string) (*domain.InboxMessage, error)
}

var (
	ErrMessageAlreadyProcessed = errors.New("inbox message already processed")
	ErrMessageAlreadyPending   = errors.New("inbox message already pending")
)
