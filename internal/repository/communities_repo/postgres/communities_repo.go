package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dizimo/internal/domain"
	"dizimo/internal/infrastructure/database"
)

const communityColumns = `id, name, patron, location, email, image, actual_month_payment_value, last_month_payment_value, last_rollover_period, created_at, updated_at`

type CommunityRepository struct{}

func NewCommunityRepository() *CommunityRepository {
	return &CommunityRepository{}
}

func scanCommunity(row database.RowScanner) (*domain.Community, error) {
	c := &domain.Community{}
	var image, lastRollover sql.NullString
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Patron,
		&c.Location,
		&c.Email,
		&image,
		&c.ActualMonthPaymentValue,
		&c.LastMonthPaymentValue,
		&lastRollover,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Image = database.StringPtr(image)
	c.LastRolloverPeriod = database.StringPtr(lastRollover)
	return c, nil
}

func (r *CommunityRepository) CreateTx(ctx context.Context, querier domain.Querier, community *domain.Community) error {
	query := `
		INSERT INTO communities (` + communityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := querier.ExecContext(ctx, query,
		community.ID,
		community.Name,
		community.Patron,
		community.Location,
		community.Email,
		database.NullString(community.Image),
		community.ActualMonthPaymentValue,
		community.LastMonthPaymentValue,
		database.NullString(community.LastRolloverPeriod),
		community.CreatedAt,
		community.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("community %s: %w", community.Patron, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create community: %w", err)
	}
	return nil
}

func (r *CommunityRepository) getOne(ctx context.Context, querier domain.Querier, column, value string) (*domain.Community, error) {
	query := `SELECT ` + communityColumns + ` FROM communities WHERE ` + column + ` = $1`
	c, err := scanCommunity(querier.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCommunityNotFound
		}
		return nil, fmt.Errorf("failed to get community by %s %s: %w", column, value, err)
	}
	return c, nil
}

func (r *CommunityRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Community, error) {
	return r.getOne(ctx, querier, "id", id)
}

func (r *CommunityRepository) GetByNameTx(ctx context.Context, querier domain.Querier, name string) (*domain.Community, error) {
	return r.getOne(ctx, querier, "name", name)
}

func (r *CommunityRepository) GetByPatronTx(ctx context.Context, querier domain.Querier, patron string) (*domain.Community, error) {
	return r.getOne(ctx, querier, "patron", patron)
}

func (r *CommunityRepository) list(ctx context.Context, querier domain.Querier, query string, args ...any) ([]domain.Community, error) {
	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list communities: %w", err)
	}
	defer rows.Close()

	var communities []domain.Community
	for rows.Next() {
		c, err := scanCommunity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan community: %w", err)
		}
		communities = append(communities, *c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating communities: %w", err)
	}
	return communities, nil
}

func (r *CommunityRepository) ListByLocationTx(ctx context.Context, querier domain.Querier, location string) ([]domain.Community, error) {
	query := `SELECT ` + communityColumns + ` FROM communities WHERE location = $1 ORDER BY name`
	return r.list(ctx, querier, query, location)
}

func (r *CommunityRepository) ListTx(ctx context.Context, querier domain.Querier, afterID string, limit int) ([]domain.Community, error) {
	query := `SELECT ` + communityColumns + ` FROM communities WHERE id > $1 ORDER BY id LIMIT $2`
	return r.list(ctx, querier, query, afterID, limit)
}

func (r *CommunityRepository) UpdateTx(ctx context.Context, querier domain.Querier, id string, update domain.CommunityUpdate) (*domain.Community, error) {
	var set database.SetClause
	if update.Name != nil {
		set.Add("name", *update.Name)
	}
	if update.Patron != nil {
		set.Add("patron", *update.Patron)
	}
	if update.Email != nil {
		set.Add("email", *update.Email)
	}
	if update.Image != nil {
		set.Add("image", *update.Image)
	}
	if update.Location != nil {
		set.Add("location", *update.Location)
	}
	if set.Len() == 0 {
		return r.GetByIDTx(ctx, querier, id)
	}
	set.Add("updated_at", time.Now())

	query, args := set.Build("communities", "id", id, communityColumns)
	c, err := scanCommunity(querier.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCommunityNotFound
		}
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("community %s: %w", id, domain.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to update community %s: %w", id, err)
	}
	return c, nil
}

func (r *CommunityRepository) DeleteTx(ctx context.Context, querier domain.Querier, id string) error {
	res, err := querier.ExecContext(ctx, `DELETE FROM communities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete community %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrCommunityNotFound
	}
	return nil
}

func (r *CommunityRepository) IncreaseActualMonthPaymentValueTx(ctx context.Context, querier domain.Querier, id string, amount int64) error {
	query := `
		UPDATE communities
		SET actual_month_payment_value = actual_month_payment_value + $1, updated_at = $2
		WHERE id = $3
	`
	res, err := querier.ExecContext(ctx, query, amount, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to increase payment total for community %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrCommunityNotFound
	}
	return nil
}

func (r *CommunityRepository) RolloverTx(ctx context.Context, querier domain.Querier, id string, period domain.Period) (bool, error) {
	query := `
		UPDATE communities
		SET last_month_payment_value = actual_month_payment_value,
		    actual_month_payment_value = 0,
		    last_rollover_period = $1,
		    updated_at = $2
		WHERE id = $3 AND last_rollover_period IS DISTINCT FROM $1
	`
	res, err := querier.ExecContext(ctx, query, period.String(), time.Now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to roll over community %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}
