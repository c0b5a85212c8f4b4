package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"dizimo/internal/domain"
	kafka_infra "dizimo/internal/infrastructure/kafka"
)

// ChargeEventApplier consumes provider charge notifications.
type ChargeEventApplier interface {
	Handle(ctx context.Context, record *domain.InboxMessage, event domain.ChargeEvent) error
}

// ChargeEventMessageHandler decodes relayed provider webhooks and applies
// them. Undecodable messages are logged and skipped so they do not block the
// partition.
func ChargeEventMessageHandler(events ChargeEventApplier, logger *zap.Logger) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		logger.Debug("Received charge event",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.String("key", string(msg.Key)),
		)

		var event domain.ChargeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("Failed to unmarshal charge event",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}

		record := &domain.InboxMessage{
			ID:         inboxID(msg, event),
			Topic:      msg.Topic,
			Partition:  msg.Partition,
			Offset:     msg.Offset,
			Payload:    msg.Value,
			Status:     domain.InboxStatusNew,
			ReceivedAt: time.Now(),
		}

		if err := events.Handle(ctx, record, event); err != nil {
			if domain.IsValidationError(err) {
				logger.Warn("Skipping invalid charge event", zap.String("event_id", record.ID), zap.Error(err))
				return nil
			}
			logger.Error("Failed to apply charge event",
				zap.String("event_id", record.ID),
				zap.String("correlation_id", event.Charge.CorrelationID),
				zap.Error(err),
			)
			return fmt.Errorf("failed to apply charge event %s: %w", record.ID, err)
		}

		logger.Info("Charge event applied",
			zap.String("event_id", record.ID),
			zap.String("correlation_id", event.Charge.CorrelationID),
			zap.String("charge_status", string(event.Charge.Status)),
		)
		return nil
	}
}

// inboxID prefers the provider's event id; without one the message position
// identifies the delivery.
func inboxID(msg kafka.Message, event domain.ChargeEvent) string {
	if event.EventID != "" {
		return event.EventID
	}
	return fmt.Sprintf("%s:%d:%d", msg.Topic, msg.Partition, msg.Offset)
}
