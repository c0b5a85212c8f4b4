package logins_repo

import (
	"context"

	"dizimo/internal/domain"
)

type LoginRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, login *domain.Login) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Login, error)
	GetByCPFHashTx(ctx context.Context, querier domain.Querier, cpfHash string) (*domain.Login, error)
	UpdateTx(ctx context.Context, querier domain.Querier, id string, update domain.LoginUpdate) (*domain.Login, error)
	DeleteTx(ctx context.Context, querier domain.Querier, id string) error
}
