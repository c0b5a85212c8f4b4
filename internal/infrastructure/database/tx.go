package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"dizimo/internal/domain"
)

// Transactor runs fn inside one transaction: commit when fn returns nil,
// rollback on error or panic.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(q domain.Querier) error) error
}

type TxRunner struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTxRunner(db *sql.DB, logger *zap.Logger) *TxRunner {
	return &TxRunner{db: db, logger: logger}
}

func (r *TxRunner) WithinTx(ctx context.Context, fn func(q domain.Querier) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic during transaction, rolling back", zap.Any("panic", p))
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
