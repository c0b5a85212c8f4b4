package communities_repo

import (
	"context"

	"dizimo/internal/domain"
)

type CommunityRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, community *domain.Community) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Community, error)
	GetByNameTx(ctx context.Context, querier domain.Querier, name string) (*domain.Community, error)
	GetByPatronTx(ctx context.Context, querier domain.Querier, patron string) (*domain.Community, error)
	ListByLocationTx(ctx context.Context, querier domain.Querier, location string) ([]domain.Community, error)
	// ListTx pages communities ordered by id, starting after afterID.
	ListTx(ctx context.Context, querier domain.Querier, afterID string, limit int) ([]domain.Community, error)
	UpdateTx(ctx context.Context, querier domain.Querier, id string, update domain.CommunityUpdate) (*domain.Community, error)
	DeleteTx(ctx context.Context, querier domain.Querier, id string) error
	// IncreaseActualMonthPaymentValueTx is the only way paid amounts reach a community.
	IncreaseActualMonthPaymentValueTx(ctx context.Context, querier domain.Querier, id string, amount int64) error
	// RolloverTx moves the actual total into last month and resets it, once
	// per period. It reports false when the period was already rolled.
	RolloverTx(ctx context.Context, querier domain.Querier, id string, period domain.Period) (bool, error)
}
