package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dizimo/internal/domain"
	"dizimo/internal/infrastructure/database"
	"dizimo/internal/repository/payments_repo"
)

const paymentColumns = `id, user_id, year, month, value, identifier, correlation_id, status, date, created_at, updated_at`

type PaymentRepository struct{}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{}
}

func scanPayment(row database.RowScanner) (*domain.Payment, error) {
	p := &domain.Payment{}
	var (
		value         sql.NullInt64
		identifier    sql.NullString
		correlationID sql.NullString
		date          sql.NullTime
	)
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Year,
		&p.Month,
		&value,
		&identifier,
		&correlationID,
		&p.Status,
		&date,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if value.Valid {
		p.Value = &value.Int64
	}
	p.Identifier = database.StringPtr(identifier)
	p.CorrelationID = database.StringPtr(correlationID)
	p.Date = database.TimePtr(date)
	return p, nil
}

func (r *PaymentRepository) CreateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error {
	query := `
		INSERT INTO dizimo_payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := querier.ExecContext(ctx, query,
		payment.ID,
		payment.UserID,
		payment.Year,
		payment.Month,
		database.NullInt64(payment.Value),
		database.NullString(payment.Identifier),
		database.NullString(payment.CorrelationID),
		payment.Status,
		database.NullTime(payment.Date),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("payment for user %s period %s: %w", payment.UserID, payment.Period(), domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) CreateIfAbsentTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) (bool, error) {
	query := `
		INSERT INTO dizimo_payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, month, year) DO NOTHING
	`
	res, err := querier.ExecContext(ctx, query,
		payment.ID,
		payment.UserID,
		payment.Year,
		payment.Month,
		database.NullInt64(payment.Value),
		database.NullString(payment.Identifier),
		database.NullString(payment.CorrelationID),
		payment.Status,
		database.NullTime(payment.Date),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create payment for user %s: %w", payment.UserID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for payment insert: %w", err)
	}
	return rowsAffected == 1, nil
}

func (r *PaymentRepository) getOne(ctx context.Context, querier domain.Querier, where string, args ...any) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM dizimo_payments WHERE ` + where
	payment, err := scanPayment(querier.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

func (r *PaymentRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Payment, error) {
	return r.getOne(ctx, querier, `id = $1`, id)
}

func (r *PaymentRepository) GetByCorrelationIDTx(ctx context.Context, querier domain.Querier, correlationID string) (*domain.Payment, error) {
	return r.getOne(ctx, querier, `correlation_id = $1`, correlationID)
}

func (r *PaymentRepository) GetByCorrelationIDForUpdateTx(ctx context.Context, querier domain.Querier, correlationID string) (*domain.Payment, error) {
	return r.getOne(ctx, querier, `correlation_id = $1 FOR UPDATE`, correlationID)
}

func (r *PaymentRepository) GetByIDForUpdateTx(ctx context.Context, querier domain.Querier, id string) (*domain.Payment, error) {
	return r.getOne(ctx, querier, `id = $1 FOR UPDATE`, id)
}

func (r *PaymentRepository) GetByIdentifierTx(ctx context.Context, querier domain.Querier, identifier string) (*domain.Payment, error) {
	return r.getOne(ctx, querier, `identifier = $1`, identifier)
}

func (r *PaymentRepository) GetByPeriodTx(ctx context.Context, querier domain.Querier, userID string, period domain.Period) (*domain.Payment, error) {
	return r.getOne(ctx, querier, `user_id = $1 AND month = $2 AND year = $3`, userID, period.Month, period.Year)
}

func (r *PaymentRepository) GetByPeriodForUpdateTx(ctx context.Context, querier domain.Querier, userID string, period domain.Period) (*domain.Payment, error) {
	return r.getOne(ctx, querier, `user_id = $1 AND month = $2 AND year = $3 FOR UPDATE`, userID, period.Month, period.Year)
}

func (r *PaymentRepository) list(ctx context.Context, querier domain.Querier, where string, args ...any) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM dizimo_payments WHERE ` + where
	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

func (r *PaymentRepository) ListByUserYearTx(ctx context.Context, querier domain.Querier, userID string, year int) ([]domain.Payment, error) {
	return r.list(ctx, querier, `user_id = $1 AND year = $2 ORDER BY created_at`, userID, year)
}

func (r *PaymentRepository) ListByUserMonthTx(ctx context.Context, querier domain.Querier, userID string, month domain.Month) ([]domain.Payment, error) {
	return r.list(ctx, querier, `user_id = $1 AND month = $2 ORDER BY year`, userID, month)
}

func (r *PaymentRepository) ListByCommunityYearTx(ctx context.Context, querier domain.Querier, communityID string, year int) ([]payments_repo.ReportRow, error) {
	query := `
		SELECT u.name, u.cpf, p.id, p.user_id, p.year, p.month, p.value, p.identifier, p.correlation_id,
		       p.status, p.date, p.created_at, p.updated_at
		FROM dizimo_payments p
		JOIN users u ON u.id = p.user_id
		WHERE u.community_id = $1 AND p.year = $2
		ORDER BY u.name, p.created_at
	`
	rows, err := querier.QueryContext(ctx, query, communityID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list community payments: %w", err)
	}
	defer rows.Close()

	var result []payments_repo.ReportRow
	for rows.Next() {
		var name, cpf string
		p, err := scanPayment(prefixScanner{rows: rows, prefix: []any{&name, &cpf}})
		if err != nil {
			return nil, fmt.Errorf("failed to scan community payment: %w", err)
		}
		result = append(result, payments_repo.ReportRow{UserName: name, UserCPF: cpf, Payment: *p})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating community payments: %w", err)
	}
	return result, nil
}

// prefixScanner scans leading join columns before the payment columns.
type prefixScanner struct {
	rows   *sql.Rows
	prefix []any
}

func (s prefixScanner) Scan(dest ...any) error {
	return s.rows.Scan(append(s.prefix, dest...)...)
}

func (r *PaymentRepository) UpdateTx(ctx context.Context, querier domain.Querier, id string, update domain.PaymentUpdate) (*domain.Payment, error) {
	var set database.SetClause
	for _, a := range update.Assignments() {
		set.Add(a.Column, a.Value)
	}

	if set.Len() == 0 {
		return r.GetByIDTx(ctx, querier, id)
	}
	set.Add("updated_at", time.Now())

	query, args := set.Build("dizimo_payments", "id", id, paymentColumns)
	payment, err := scanPayment(querier.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("payment %s: %w", id, domain.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to update payment %s: %w", id, err)
	}
	return payment, nil
}

func (r *PaymentRepository) MarkPaidTx(ctx context.Context, querier domain.Querier, id string, value int64, paidAt time.Time) (bool, error) {
	query := `
		UPDATE dizimo_payments
		SET status = $1, value = $2, date = $3, updated_at = $4
		WHERE id = $5 AND status <> $1
	`
	res, err := querier.ExecContext(ctx, query, domain.PaymentStatusPaid, value, paidAt, time.Now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment %s as paid: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for payment %s: %w", id, err)
	}
	return rowsAffected == 1, nil
}

func (r *PaymentRepository) DeleteTx(ctx context.Context, querier domain.Querier, id string) error {
	res, err := querier.ExecContext(ctx, `DELETE FROM dizimo_payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for payment delete: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}
