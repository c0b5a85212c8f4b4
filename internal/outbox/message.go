package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"dizimo/internal/domain"
	"dizimo/internal/util"
)

// NewMessage encodes event as a pending outbox message keyed by key.
func NewMessage(aggregateType, aggregateID, messageType, topic, key string, event any) (*domain.OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", messageType, err)
	}
	return &domain.OutboxMessage{
		ID:            util.GenerateUUID(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		MessageType:   messageType,
		Topic:         topic,
		Key:           key,
		Payload:       payload,
		Status:        domain.OutboxStatusPending,
		CreatedAt:     time.Now(),
	}, nil
}
