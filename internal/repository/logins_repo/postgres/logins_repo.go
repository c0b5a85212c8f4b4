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

const loginColumns = `id, cpf_hash, password_hash, position, created_at, updated_at`

type LoginRepository struct{}

func NewLoginRepository() *LoginRepository {
	return &LoginRepository{}
}

func scanLogin(row database.RowScanner) (*domain.Login, error) {
	l := &domain.Login{}
	err := row.Scan(&l.ID, &l.CPFHash, &l.PasswordHash, &l.Position, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (r *LoginRepository) CreateTx(ctx context.Context, querier domain.Querier, login *domain.Login) error {
	query := `
		INSERT INTO logins (` + loginColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := querier.ExecContext(ctx, query,
		login.ID, login.CPFHash, login.PasswordHash, login.Position, login.CreatedAt, login.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("login: %w", domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create login: %w", err)
	}
	return nil
}

func (r *LoginRepository) getOne(ctx context.Context, querier domain.Querier, column, value string) (*domain.Login, error) {
	query := `SELECT ` + loginColumns + ` FROM logins WHERE ` + column + ` = $1`
	l, err := scanLogin(querier.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrLoginNotFound
		}
		return nil, fmt.Errorf("failed to get login: %w", err)
	}
	return l, nil
}

func (r *LoginRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Login, error) {
	return r.getOne(ctx, querier, "id", id)
}

func (r *LoginRepository) GetByCPFHashTx(ctx context.Context, querier domain.Querier, cpfHash string) (*domain.Login, error) {
	return r.getOne(ctx, querier, "cpf_hash", cpfHash)
}

func (r *LoginRepository) UpdateTx(ctx context.Context, querier domain.Querier, id string, update domain.LoginUpdate) (*domain.Login, error) {
	var set database.SetClause
	if update.PasswordHash != nil {
		set.Add("password_hash", *update.PasswordHash)
	}
	if update.Position != nil && update.Position.Valid() {
		set.Add("position", *update.Position)
	}
	if set.Len() == 0 {
		return r.GetByIDTx(ctx, querier, id)
	}
	set.Add("updated_at", time.Now())

	query, args := set.Build("logins", "id", id, loginColumns)
	l, err := scanLogin(querier.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrLoginNotFound
		}
		return nil, fmt.Errorf("failed to update login %s: %w", id, err)
	}
	return l, nil
}

func (r *LoginRepository) DeleteTx(ctx context.Context, querier domain.Querier, id string) error {
	res, err := querier.ExecContext(ctx, `DELETE FROM logins WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete login %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrLoginNotFound
	}
	return nil
}
