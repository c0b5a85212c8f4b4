package payments_repo

import (
	"context"
	"time"

	"dizimo/internal/domain"
)

// PaymentRepository persists tithe payments. Every method takes the querier
// it runs on, so callers decide the transaction scope.
type PaymentRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error
	// CreateIfAbsentTx inserts the payment unless one already exists for its
	// (user, month, year) and reports whether a row was written.
	CreateIfAbsentTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) (bool, error)
	GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Payment, error)
	GetByCorrelationIDTx(ctx context.Context, querier domain.Querier, correlationID string) (*domain.Payment, error)
	GetByCorrelationIDForUpdateTx(ctx context.Context, querier domain.Querier, correlationID string) (*domain.Payment, error)
	GetByIDForUpdateTx(ctx context.Context, querier domain.Querier, id string) (*domain.Payment, error)
	GetByIdentifierTx(ctx context.Context, querier domain.Querier, identifier string) (*domain.Payment, error)
	GetByPeriodTx(ctx context.Context, querier domain.Querier, userID string, period domain.Period) (*domain.Payment, error)
	// GetByPeriodForUpdateTx locks the row until the surrounding transaction ends.
	GetByPeriodForUpdateTx(ctx context.Context, querier domain.Querier, userID string, period domain.Period) (*domain.Payment, error)
	ListByUserYearTx(ctx context.Context, querier domain.Querier, userID string, year int) ([]domain.Payment, error)
	ListByUserMonthTx(ctx context.Context, querier domain.Querier, userID string, month domain.Month) ([]domain.Payment, error)
	ListByCommunityYearTx(ctx context.Context, querier domain.Querier, communityID string, year int) ([]ReportRow, error)
	UpdateTx(ctx context.Context, querier domain.Querier, id string, update domain.PaymentUpdate) (*domain.Payment, error)
	// MarkPaidTx flips the payment to paid unless it already is, and reports
	// whether the row changed.
	MarkPaidTx(ctx context.Context, querier domain.Querier, id string, value int64, paidAt time.Time) (bool, error)
	DeleteTx(ctx context.Context, querier domain.Querier, id string) error
}

// ReportRow is one line of a community payment report.
type ReportRow struct {
	UserName string
	UserCPF  string
	Payment  domain.Payment
}
