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

const warningColumns = `id, community_id, scope, title, description, image, posted_at, edited_at`

type WarningRepository struct{}

func NewWarningRepository() *WarningRepository {
	return &WarningRepository{}
}

func scanWarning(row database.RowScanner) (*domain.Warning, error) {
	w := &domain.Warning{}
	var (
		image    sql.NullString
		editedAt sql.NullTime
	)
	err := row.Scan(&w.ID, &w.CommunityID, &w.Scope, &w.Title, &w.Description, &image, &w.PostedAt, &editedAt)
	if err != nil {
		return nil, err
	}
	w.Image = database.StringPtr(image)
	w.EditedAt = database.TimePtr(editedAt)
	return w, nil
}

func (r *WarningRepository) CreateTx(ctx context.Context, querier domain.Querier, warning *domain.Warning) error {
	query := `
		INSERT INTO warnings (` + warningColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := querier.ExecContext(ctx, query,
		warning.ID,
		warning.CommunityID,
		warning.Scope,
		warning.Title,
		warning.Description,
		database.NullString(warning.Image),
		warning.PostedAt,
		database.NullTime(warning.EditedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create warning: %w", err)
	}
	return nil
}

func (r *WarningRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Warning, error) {
	query := `SELECT ` + warningColumns + ` FROM warnings WHERE id = $1`
	w, err := scanWarning(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWarningNotFound
		}
		return nil, fmt.Errorf("failed to get warning %s: %w", id, err)
	}
	return w, nil
}

func (r *WarningRepository) ListByCommunityTx(ctx context.Context, querier domain.Querier, communityID, afterID string, limit int) ([]domain.Warning, error) {
	query := `
		SELECT ` + warningColumns + `
		FROM warnings
		WHERE community_id = $1
		  AND ($2 = '' OR (posted_at, id) < (SELECT posted_at, id FROM warnings WHERE id = $2))
		ORDER BY posted_at DESC, id DESC
		LIMIT $3
	`
	rows, err := querier.QueryContext(ctx, query, communityID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list warnings for community %s: %w", communityID, err)
	}
	defer rows.Close()

	var warnings []domain.Warning
	for rows.Next() {
		w, err := scanWarning(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan warning: %w", err)
		}
		warnings = append(warnings, *w)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating warnings: %w", err)
	}
	return warnings, nil
}

func (r *WarningRepository) UpdateTx(ctx context.Context, querier domain.Querier, id string, update domain.WarningUpdate) (*domain.Warning, error) {
	var set database.SetClause
	if update.Scope != nil {
		set.Add("scope", *update.Scope)
	}
	if update.Title != nil {
		set.Add("title", *update.Title)
	}
	if update.Description != nil {
		set.Add("description", *update.Description)
	}
	if update.Image != nil {
		set.Add("image", *update.Image)
	}
	if set.Len() == 0 {
		return r.GetByIDTx(ctx, querier, id)
	}
	set.Add("edited_at", time.Now())

	query, args := set.Build("warnings", "id", id, warningColumns)
	w, err := scanWarning(querier.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWarningNotFound
		}
		return nil, fmt.Errorf("failed to update warning %s: %w", id, err)
	}
	return w, nil
}

func (r *WarningRepository) DeleteTx(ctx context.Context, querier domain.Querier, id string) error {
	res, err := querier.ExecContext(ctx, `DELETE FROM warnings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete warning %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrWarningNotFound
	}
	return nil
}
