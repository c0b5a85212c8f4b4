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

const userColumns = `id, name, cpf, phone, email, position, birthday, image, community_id, active, created_at, updated_at`

type UserRepository struct{}

func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

func scanUser(row database.RowScanner) (*domain.User, error) {
	u := &domain.User{}
	var (
		birthday sql.NullTime
		image    sql.NullString
	)
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.CPF,
		&u.Phone,
		&u.Email,
		&u.Position,
		&birthday,
		&image,
		&u.CommunityID,
		&u.Active,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Birthday = database.TimePtr(birthday)
	u.Image = database.StringPtr(image)
	return u, nil
}

func (r *UserRepository) CreateTx(ctx context.Context, querier domain.Querier, user *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := querier.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.CPF,
		user.Phone,
		user.Email,
		user.Position,
		database.NullTime(user.Birthday),
		database.NullString(user.Image),
		user.CommunityID,
		user.Active,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("user: %w", domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return u, nil
}

func (r *UserRepository) UpdateTx(ctx context.Context, querier domain.Querier, id string, update domain.UserUpdate) (*domain.User, error) {
	var set database.SetClause
	if update.Name != nil {
		set.Add("name", *update.Name)
	}
	if update.Position != nil && update.Position.Valid() {
		set.Add("position", *update.Position)
	}
	if update.Birthday != nil {
		set.Add("birthday", *update.Birthday)
	}
	if update.Email != nil {
		set.Add("email", *update.Email)
	}
	if update.Image != nil {
		set.Add("image", *update.Image)
	}
	if update.Phone != nil {
		set.Add("phone", *update.Phone)
	}
	if update.CommunityID != nil {
		set.Add("community_id", *update.CommunityID)
	}
	if set.Len() == 0 {
		return r.GetByIDTx(ctx, querier, id)
	}
	set.Add("updated_at", time.Now())

	query, args := set.Build("users", "id", id, userColumns)
	u, err := scanUser(querier.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update user %s: %w", id, err)
	}
	return u, nil
}

func (r *UserRepository) ListActiveTx(ctx context.Context, querier domain.Querier, afterID string, limit int) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE active AND id > $1 ORDER BY id LIMIT $2`
	rows, err := querier.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}
