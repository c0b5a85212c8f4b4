package users_repo

import (
	"context"

	"dizimo/internal/domain"
)

type UserRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, user *domain.User) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.User, error)
	UpdateTx(ctx context.Context, querier domain.Querier, id string, update domain.UserUpdate) (*domain.User, error)
	// ListActiveTx pages active users ordered by id, starting after afterID.
	ListActiveTx(ctx context.Context, querier domain.Querier, afterID string, limit int) ([]domain.User, error)
}
