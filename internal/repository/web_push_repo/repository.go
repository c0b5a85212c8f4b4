package web_push_repo

import (
	"context"

	"dizimo/internal/domain"
)

type SubscriptionRepository interface {
	// UpsertTx stores a subscription, replacing the keys of an existing endpoint.
	UpsertTx(ctx context.Context, querier domain.Querier, sub *domain.WebPushSubscription) error
	ListByUserTx(ctx context.Context, querier domain.Querier, userID string) ([]domain.WebPushSubscription, error)
}
