package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dizimo/internal/domain"
	"dizimo/internal/repository/inbox_repo"
)

type InboxRepository struct{}

func NewInboxRepository() *InboxRepository {
	return &InboxRepository{}
}

func (r *InboxRepository) CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error {
	query := `
		INSERT INTO inbox_messages (id, kafka_topic, kafka_partition, kafka_offset, payload, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := querier.ExecContext(ctx, query,
		msg.ID,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Status,
		msg.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert inbox message: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for inbox insert: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	existing, err := r.GetMessageTx(ctx, querier, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to retrieve existing inbox message after conflict: %w", err)
	}
	if existing.Status == domain.InboxStatusProcessed {
		return inbox_repo.ErrMessageAlreadyProcessed
	}
	return inbox_repo.ErrMessageAlreadyPending
}

func (r *InboxRepository) UpdateStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.InboxMessageStatus) error {
	query := `
		UPDATE inbox_messages
		SET status = $1::VARCHAR, processed_at = CASE WHEN $1::VARCHAR = 'PROCESSED' THEN $2 ELSE NULL END
		WHERE id = $3
	`
	res, err := querier.ExecContext(ctx, query, string(status), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update inbox message status %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for inbox message update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("inbox message with id %s not found for status update", id)
	}
	return nil
}

func (r *InboxRepository) GetMessageTx(ctx context.Context, querier domain.Querier, id string) (*domain.InboxMessage, error) {
	query := `
		SELECT id, kafka_topic, kafka_partition, kafka_offset, payload, status, received_at, processed_at
		FROM inbox_messages
		WHERE id = $1
	`
	msg := &domain.InboxMessage{}
	var processedAt sql.NullTime
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.Topic,
		&msg.Partition,
		&msg.Offset,
		&msg.Payload,
		&msg.Status,
		&msg.ReceivedAt,
		&processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get inbox message %s: %w", id, err)
	}
	if processedAt.Valid {
		msg.ProcessedAt = &processedAt.Time
	}
	return msg, nil
}
