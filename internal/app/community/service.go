package community

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"dizimo/internal/domain"
	"dizimo/internal/infrastructure/database"
	"dizimo/internal/infrastructure/objectstore"
	"dizimo/internal/repository/communities_repo"
	"dizimo/internal/repository/logins_repo"
	"dizimo/internal/repository/users_repo"
	"dizimo/internal/util"
)

const birthdayLayout = "2006/01/02"

type AuthConfig struct {
	JWTSecret  string
	JWTTTL     time.Duration
	CPFHashKey string
	BcryptCost int
}

// Service manages communities, their members and member credentials.
type Service struct {
	db          domain.Querier
	tx          database.Transactor
	communities communities_repo.CommunityRepository
	users       users_repo.UserRepository
	logins      logins_repo.LoginRepository
	images      objectstore.ImageStore
	auth        AuthConfig
	logger      *zap.Logger
}

func NewService(
	db domain.Querier,
	tx database.Transactor,
	communities communities_repo.CommunityRepository,
	users users_repo.UserRepository,
	logins logins_repo.LoginRepository,
	images objectstore.ImageStore,
	auth AuthConfig,
	logger *zap.Logger,
) *Service {
	if images == nil {
		images = objectstore.PassthroughStore{}
	}
	return &Service{
		db:          db,
		tx:          tx,
		communities: communities,
		users:       users,
		logins:      logins,
		images:      images,
		auth:        auth,
		logger:      logger,
	}
}

type CreateCommunityInput struct {
	Name     string  `json:"name"`
	Patron   string  `json:"patron"`
	Location string  `json:"location"`
	Email    string  `json:"email"`
	Image    *string `json:"image,omitempty"`
}

func (in CreateCommunityInput) validate() error {
	if err := util.ValidateText("name", in.Name, 1, 255); err != nil {
		return err
	}
	if err := util.ValidateText("patron", in.Patron, 1, 255); err != nil {
		return err
	}
	if in.Email != "" {
		return util.ValidateEmail(in.Email)
	}
	return nil
}

func (s *Service) CreateCommunity(ctx context.Context, in CreateCommunityInput) (*domain.Community, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	image, err := s.storeImage(ctx, "communities", in.Image)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	community := &domain.Community{
		ID:        util.GenerateUUID(),
		Name:      strings.TrimSpace(in.Name),
		Patron:    strings.TrimSpace(in.Patron),
		Location:  strings.TrimSpace(in.Location),
		Email:     in.Email,
		Image:     image,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.tx.WithinTx(ctx, func(q domain.Querier) error {
		return s.communities.CreateTx(ctx, q, community)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create community: %w", err)
	}
	s.logger.Info("Community created",
		zap.String("community_id", community.ID),
		zap.String("name", community.Name))
	return community, nil
}

func (s *Service) GetCommunity(ctx context.Context, id string) (*domain.Community, error) {
	return s.communities.GetByIDTx(ctx, s.db, id)
}

func (s *Service) GetCommunityByName(ctx context.Context, name string) (*domain.Community, error) {
	return s.communities.GetByNameTx(ctx, s.db, name)
}

func (s *Service) GetCommunityByPatron(ctx context.Context, patron string) (*domain.Community, error) {
	return s.communities.GetByPatronTx(ctx, s.db, patron)
}

func (s *Service) ListCommunitiesByLocation(ctx context.Context, location string) ([]domain.Community, error) {
	return s.communities.ListByLocationTx(ctx, s.db, location)
}

// ListCommunities pages communities ordered by id, starting after afterID.
func (s *Service) ListCommunities(ctx context.Context, afterID string, limit int) ([]domain.Community, error) {
	return s.communities.ListTx(ctx, s.db, afterID, clampLimit(limit))
}

func (s *Service) UpdateCommunity(ctx context.Context, id string, update domain.CommunityUpdate) (*domain.Community, error) {
	if update.Name != nil {
		if err := util.ValidateText("name", *update.Name, 1, 255); err != nil {
			return nil, err
		}
	}
	if update.Email != nil && *update.Email != "" {
		if err := util.ValidateEmail(*update.Email); err != nil {
			return nil, err
		}
	}
	image, err := s.storeImage(ctx, "communities", update.Image)
	if err != nil {
		return nil, err
	}
	update.Image = image

	var updated *domain.Community
	err = s.tx.WithinTx(ctx, func(q domain.Querier) error {
		var err error
		updated, err = s.communities.UpdateTx(ctx, q, id, update)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update community %s: %w", id, err)
	}
	s.logger.Info("Community updated", zap.String("community_id", id))
	return updated, nil
}

func (s *Service) DeleteCommunity(ctx context.Context, id string) error {
	err := s.tx.WithinTx(ctx, func(q domain.Querier) error {
		return s.communities.DeleteTx(ctx, q, id)
	})
	if err != nil {
		return fmt.Errorf("failed to delete community %s: %w", id, err)
	}
	s.logger.Info("Community deleted", zap.String("community_id", id))
	return nil
}

type CreateUserInput struct {
	Name      string          `json:"name"`
	CPF       string          `json:"cpf"`
	Phone     string          `json:"phone"`
	Email     string          `json:"email"`
	Position  domain.Position `json:"position"`
	Birthday  string          `json:"birthday"`
	Image     *string         `json:"image,omitempty"`
	Community string          `json:"community"`
	Password  string          `json:"password"`
}

// CreateUser registers a member of the named community. When a password is
// given the member's login is created in the same transaction.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	if err := util.ValidateText("name", in.Name, 1, 255); err != nil {
		return nil, err
	}
	if err := util.ValidateCPF(in.CPF); err != nil {
		return nil, err
	}
	if in.Email != "" {
		if err := util.ValidateEmail(in.Email); err != nil {
			return nil, err
		}
	}
	position := in.Position
	if position == "" {
		position = domain.PositionMember
	}
	if !position.Valid() {
		return nil, domain.NewValidationError("position", fmt.Sprintf("unknown position %q", in.Position))
	}
	birthday, err := parseBirthday(in.Birthday)
	if err != nil {
		return nil, err
	}
	image, err := s.storeImage(ctx, "users", in.Image)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &domain.User{
		ID:        util.GenerateUUID(),
		Name:      strings.TrimSpace(in.Name),
		CPF:       util.NormalizeCPF(in.CPF),
		Phone:     in.Phone,
		Email:     in.Email,
		Position:  position,
		Birthday:  birthday,
		Image:     image,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var passwordHash string
	if in.Password != "" {
		passwordHash, err = util.HashPassword(in.Password, s.auth.BcryptCost)
		if err != nil {
			return nil, err
		}
	}

	err = s.tx.WithinTx(ctx, func(q domain.Querier) error {
		community, err := s.communities.GetByNameTx(ctx, q, in.Community)
		if err != nil {
			return err
		}
		user.CommunityID = community.ID
		if err := s.users.CreateTx(ctx, q, user); err != nil {
			return err
		}
		if passwordHash == "" {
			return nil
		}
		return s.logins.CreateTx(ctx, q, &domain.Login{
			ID:           user.ID,
			CPFHash:      util.HashCPF(s.auth.CPFHashKey, user.CPF),
			PasswordHash: passwordHash,
			Position:     user.Position,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info("User created",
		zap.String("user_id", user.ID),
		zap.String("community_id", user.CommunityID),
		zap.Bool("with_login", passwordHash != ""))
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByIDTx(ctx, s.db, id)
}

func (s *Service) ListActiveUsers(ctx context.Context, afterID string, limit int) ([]domain.User, error) {
	return s.users.ListActiveTx(ctx, s.db, afterID, clampLimit(limit))
}

// ProfileUpdate is the client-facing partial profile. Birthday uses
// YYYY/MM/DD and Community is a community name.
type ProfileUpdate struct {
	Name      *string          `json:"name,omitempty"`
	Position  *domain.Position `json:"position,omitempty"`
	Birthday  *string          `json:"birthday,omitempty"`
	Email     *string          `json:"email,omitempty"`
	Image     *string          `json:"image,omitempty"`
	Phone     *string          `json:"phone,omitempty"`
	Community *string          `json:"community,omitempty"`
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*domain.User, error) {
	update := domain.UserUpdate{
		Name:     in.Name,
		Position: in.Position,
		Email:    in.Email,
		Phone:    in.Phone,
	}
	if in.Name != nil {
		if err := util.ValidateText("name", *in.Name, 1, 255); err != nil {
			return nil, err
		}
	}
	if in.Email != nil && *in.Email != "" {
		if err := util.ValidateEmail(*in.Email); err != nil {
			return nil, err
		}
	}
	if in.Birthday != nil {
		birthday, err := parseBirthday(*in.Birthday)
		if err != nil {
			return nil, err
		}
		update.Birthday = birthday
	}
	image, err := s.storeImage(ctx, "users", in.Image)
	if err != nil {
		return nil, err
	}
	update.Image = image

	var updated *domain.User
	err = s.tx.WithinTx(ctx, func(q domain.Querier) error {
		if in.Community != nil {
			community, err := s.communities.GetByNameTx(ctx, q, *in.Community)
			if err != nil {
				return err
			}
			update.CommunityID = &community.ID
		}
		var err error
		updated, err = s.users.UpdateTx(ctx, q, userID, update)
		if err != nil {
			return err
		}
		if in.Position != nil && in.Position.Valid() {
			_, err = s.logins.UpdateTx(ctx, q, userID, domain.LoginUpdate{Position: in.Position})
			if errors.Is(err, domain.ErrLoginNotFound) {
				return nil
			}
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update profile of %s: %w", userID, err)
	}
	s.logger.Info("User profile updated", zap.String("user_id", userID))
	return updated, nil
}

// LoginChange is a partial credentials update with a clear text password.
type LoginChange struct {
	Password *string          `json:"password,omitempty"`
	Position *domain.Position `json:"position,omitempty"`
}

// CreateLogin gives an existing user credentials.
func (s *Service) CreateLogin(ctx context.Context, userID, password string) (*domain.Login, error) {
	hash, err := util.HashPassword(password, s.auth.BcryptCost)
	if err != nil {
		return nil, domain.NewValidationError("password", err.Error())
	}
	var login *domain.Login
	err = s.tx.WithinTx(ctx, func(q domain.Querier) error {
		user, err := s.users.GetByIDTx(ctx, q, userID)
		if err != nil {
			return err
		}
		now := time.Now()
		login = &domain.Login{
			ID:           user.ID,
			CPFHash:      util.HashCPF(s.auth.CPFHashKey, user.CPF),
			PasswordHash: hash,
			Position:     user.Position,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return s.logins.CreateTx(ctx, q, login)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create login for %s: %w", userID, err)
	}
	s.logger.Info("Login created", zap.String("user_id", userID))
	return login, nil
}

func (s *Service) GetLogin(ctx context.Context, id string) (*domain.Login, error) {
	return s.logins.GetByIDTx(ctx, s.db, id)
}

func (s *Service) GetLoginByCPF(ctx context.Context, cpf string) (*domain.Login, error) {
	return s.logins.GetByCPFHashTx(ctx, s.db, util.HashCPF(s.auth.CPFHashKey, cpf))
}

func (s *Service) UpdateLogin(ctx context.Context, id string, in LoginChange) (*domain.Login, error) {
	var update domain.LoginUpdate
	if in.Password != nil {
		hash, err := util.HashPassword(*in.Password, s.auth.BcryptCost)
		if err != nil {
			return nil, domain.NewValidationError("password", err.Error())
		}
		update.PasswordHash = &hash
	}
	update.Position = in.Position

	var updated *domain.Login
	err := s.tx.WithinTx(ctx, func(q domain.Querier) error {
		var err error
		updated, err = s.logins.UpdateTx(ctx, q, id, update)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update login %s: %w", id, err)
	}
	s.logger.Info("Login updated", zap.String("user_id", id))
	return updated, nil
}

func (s *Service) DeleteLogin(ctx context.Context, id string) error {
	err := s.tx.WithinTx(ctx, func(q domain.Querier) error {
		return s.logins.DeleteTx(ctx, q, id)
	})
	if err != nil {
		return fmt.Errorf("failed to delete login %s: %w", id, err)
	}
	s.logger.Info("Login deleted", zap.String("user_id", id))
	return nil
}

type Session struct {
	Token    string          `json:"token"`
	UserID   string          `json:"user_id"`
	Position domain.Position `json:"position"`
}

// Authenticate checks CPF and password and issues a signed token. Unknown
// CPFs and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, cpf, password string) (*Session, error) {
	login, err := s.logins.GetByCPFHashTx(ctx, s.db, util.HashCPF(s.auth.CPFHashKey, cpf))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("Login attempt for unknown CPF")
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to load login: %w", err)
	}
	if !util.CheckPassword(password, login.PasswordHash) {
		s.logger.Warn("Login attempt with wrong password", zap.String("user_id", login.ID))
		return nil, domain.ErrUnauthorized
	}

	token, err := util.GenerateToken(s.auth.JWTSecret, login.ID, string(login.Position), s.auth.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	s.logger.Info("User authenticated", zap.String("user_id", login.ID))
	return &Session{Token: token, UserID: login.ID, Position: login.Position}, nil
}

func (s *Service) storeImage(ctx context.Context, prefix string, image *string) (*string, error) {
	if image == nil || *image == "" {
		return image, nil
	}
	url, err := s.images.StoreImage(ctx, prefix, *image)
	if err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}
	return &url, nil
}

func parseBirthday(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(birthdayLayout, value)
	if err != nil {
		return nil, domain.NewValidationError("birthday", "expected YYYY/MM/DD")
	}
	return &t, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	}
	return limit
}
