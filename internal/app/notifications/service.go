package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"dizimo/internal/domain"
	"dizimo/internal/infrastructure/database"
	"dizimo/internal/outbox"
	"dizimo/internal/repository/outbox_repo"
	"dizimo/internal/repository/web_push_repo"
	"dizimo/internal/util"
)

// Service stores browser push subscriptions and queues notifications for
// an external delivery worker.
type Service struct {
	db            domain.Querier
	tx            database.Transactor
	subscriptions web_push_repo.SubscriptionRepository
	outboxRepo    outbox_repo.OutboxRepository
	topic         string
	logger        *zap.Logger
}

func NewService(
	db domain.Querier,
	tx database.Transactor,
	subscriptions web_push_repo.SubscriptionRepository,
	outboxRepo outbox_repo.OutboxRepository,
	topic string,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:            db,
		tx:            tx,
		subscriptions: subscriptions,
		outboxRepo:    outboxRepo,
		topic:         topic,
		logger:        logger,
	}
}

type SubscriptionInput struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (s *Service) Subscribe(ctx context.Context, userID string, in SubscriptionInput) (*domain.WebPushSubscription, error) {
	if !strings.HasPrefix(in.Endpoint, "https://") {
		return nil, domain.NewValidationError("endpoint", "must be an https URL")
	}
	if in.Keys.P256dh == "" || in.Keys.Auth == "" {
		return nil, domain.NewValidationError("keys", "p256dh and auth are required")
	}

	sub := &domain.WebPushSubscription{
		ID:        util.GenerateUUID(),
		UserID:    userID,
		Endpoint:  in.Endpoint,
		P256dh:    in.Keys.P256dh,
		Auth:      in.Keys.Auth,
		CreatedAt: time.Now(),
	}
	err := s.tx.WithinTx(ctx, func(q domain.Querier) error {
		return s.subscriptions.UpsertTx(ctx, q, sub)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store subscription: %w", err)
	}
	s.logger.Info("Web push subscription stored", zap.String("user_id", userID))
	return sub, nil
}

func (s *Service) Subscriptions(ctx context.Context, userID string) ([]domain.WebPushSubscription, error) {
	return s.subscriptions.ListByUserTx(ctx, s.db, userID)
}

type NotificationInput struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Token string `json:"token"`
}

// Send queues a notification. Delivery happens outside this service.
func (s *Service) Send(ctx context.Context, in NotificationInput) error {
	if err := util.ValidateText("title", in.Title, 1, 120); err != nil {
		return err
	}
	if err := util.ValidateText("body", in.Body, 0, 1000); err != nil {
		return err
	}
	if strings.TrimSpace(in.Token) == "" {
		return domain.NewValidationError("token", "is required")
	}

	id := util.GenerateUUID()
	event := domain.NotificationRequestedEvent{
		Title:     in.Title,
		Body:      in.Body,
		Token:     in.Token,
		Timestamp: time.Now(),
	}
	msg, err := outbox.NewMessage(domain.AggregateNotification, id, domain.EventNotificationRequested, s.topic, in.Token, event)
	if err != nil {
		return err
	}
	err = s.tx.WithinTx(ctx, func(q domain.Querier) error {
		return s.outboxRepo.CreateMessageTx(ctx, q, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	s.logger.Info("Notification queued", zap.String("notification_id", id))
	return nil
}
