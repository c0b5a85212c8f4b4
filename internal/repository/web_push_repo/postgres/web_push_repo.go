package postgres

import (
	"context"
	"fmt"

	"dizimo/internal/domain"
)

type SubscriptionRepository struct{}

func NewSubscriptionRepository() *SubscriptionRepository {
	return &SubscriptionRepository{}
}

func (r *SubscriptionRepository) UpsertTx(ctx context.Context, querier domain.Querier, sub *domain.WebPushSubscription) error {
	query := `
		INSERT INTO web_push_subscriptions (id, user_id, endpoint, p256dh, auth, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (endpoint) DO UPDATE
		SET user_id = EXCLUDED.user_id, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth
	`
	_, err := querier.ExecContext(ctx, query, sub.ID, sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store web push subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) ListByUserTx(ctx context.Context, querier domain.Querier, userID string) ([]domain.WebPushSubscription, error) {
	query := `
		SELECT id, user_id, endpoint, p256dh, auth, created_at
		FROM web_push_subscriptions
		WHERE user_id = $1
		ORDER BY created_at
	`
	rows, err := querier.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list web push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.WebPushSubscription
	for rows.Next() {
		var s domain.WebPushSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan web push subscription: %w", err)
		}
		subs = append(subs, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating web push subscriptions: %w", err)
	}
	return subs, nil
}
