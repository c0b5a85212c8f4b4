package warnings_repo

import (
	"context"

	"dizimo/internal/domain"
)

type WarningRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, warning *domain.Warning) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Warning, error)
	// ListByCommunityTx returns warnings newest first. A non-empty afterID
	// continues after that warning.
	ListByCommunityTx(ctx context.Context, querier domain.Querier, communityID, afterID string, limit int) ([]domain.Warning, error)
	UpdateTx(ctx context.Context, querier domain.Querier, id string, update domain.WarningUpdate) (*domain.Warning, error)
	DeleteTx(ctx context.Context, querier domain.Querier, id string) error
}
