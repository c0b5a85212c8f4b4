package outbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"dizimo/internal/domain"
	"dizimo/internal/infrastructure/database"
	kafkaInfra "dizimo/internal/infrastructure/kafka"
	"dizimo/internal/repository/outbox_repo"
)

// Processor relays pending outbox messages to Kafka.
type Processor struct {
	tx           database.Transactor
	outboxRepo   outbox_repo.OutboxRepository
	producer     kafkaInfra.Producer
	pollInterval time.Duration
	pollTimeout  time.Duration
	batchSize    int
	maxAttempts  int
	logger       *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewProcessor(
	tx database.Transactor,
	outboxRepo outbox_repo.OutboxRepository,
	producer kafkaInfra.Producer,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	batchSize int,
	maxAttempts int,
	logger *zap.Logger,
) *Processor {
	if batchSize <= 0 {
		batchSize = 10
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Processor{
		tx:           tx,
		outboxRepo:   outboxRepo,
		producer:     producer,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
		logger:       logger,
		stop:         make(chan struct{}),
	}
}

// Start polls in a background goroutine until ctx is done or Stop is called.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor", zap.Duration("poll_interval", p.pollInterval))
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.logger.Info("Outbox processor context cancelled")
				return
			case <-p.stop:
				p.logger.Info("Outbox processor stopped")
				return
			case <-ticker.C:
				if _, err := p.ProcessOnce(ctx); err != nil {
					p.logger.Error("Outbox poll failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop signals the polling loop and waits for the current batch to finish.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	if p.done != nil {
		<-p.done
	}
}

// ProcessOnce publishes one batch. Rows stay locked for the duration of the
// batch so concurrent relays skip them; only delivered messages are marked sent.
// A message that could not be published stays pending until it has failed
// maxAttempts times, then it is marked failed.
func (p *Processor) ProcessOnce(ctx context.Context) (int, error) {
	sent := 0
	err := p.tx.WithinTx(ctx, func(q domain.Querier) error {
		queryCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
		messages, err := p.outboxRepo.GetPendingMessagesTx(queryCtx, q, p.batchSize)
		cancel()
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			p.logger.Debug("No pending outbox messages found")
			return nil
		}
		p.logger.Debug("Found pending outbox messages", zap.Int("count", len(messages)))

		var ids, retry, failed []string
		for _, msg := range messages {
			if err := p.producer.Produce(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
				p.logger.Error("Failed to send outbox message to Kafka",
					zap.String("message_id", msg.ID),
					zap.String("message_type", msg.MessageType),
					zap.String("topic", msg.Topic),
					zap.Int("attempt", msg.Attempts+1),
					zap.Error(err))
				if msg.Attempts+1 >= p.maxAttempts {
					failed = append(failed, msg.ID)
				} else {
					retry = append(retry, msg.ID)
				}
				continue
			}
			ids = append(ids, msg.ID)
		}

		if err := p.outboxRepo.MarkMessagesAsSentTx(ctx, q, ids); err != nil {
			return err
		}
		if err := p.outboxRepo.IncrementAttemptsTx(ctx, q, retry); err != nil {
			return err
		}
		if err := p.outboxRepo.MarkMessagesAsFailedTx(ctx, q, failed); err != nil {
			return err
		}
		if len(failed) > 0 {
			p.logger.Warn("Outbox messages given up", zap.Strings("message_ids", failed))
		}
		sent = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if sent > 0 {
		p.logger.Info("Outbox messages relayed", zap.Int("count", sent))
	}
	return sent, nil
}
