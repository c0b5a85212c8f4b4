package warnings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"dizimo/internal/domain"
	"dizimo/internal/infrastructure/database"
	"dizimo/internal/infrastructure/objectstore"
	"dizimo/internal/outbox"
	"dizimo/internal/repository/communities_repo"
	"dizimo/internal/repository/outbox_repo"
	"dizimo/internal/repository/users_repo"
	"dizimo/internal/repository/warnings_repo"
	"dizimo/internal/util"
)

const (
	maxTitleLength       = 120
	maxDescriptionLength = 5000
	defaultLatest        = 10
	maxPageSize          = 100
)

type Service struct {
	db          domain.Querier
	tx          database.Transactor
	warnings    warnings_repo.WarningRepository
	communities communities_repo.CommunityRepository
	users       users_repo.UserRepository
	outboxRepo  outbox_repo.OutboxRepository
	images      objectstore.ImageStore
	topic       string
	logger      *zap.Logger
}

func NewService(
	db domain.Querier,
	tx database.Transactor,
	warnings warnings_repo.WarningRepository,
	communities communities_repo.CommunityRepository,
	users users_repo.UserRepository,
	outboxRepo outbox_repo.OutboxRepository,
	images objectstore.ImageStore,
	topic string,
	logger *zap.Logger,
) *Service {
	if images == nil {
		images = objectstore.PassthroughStore{}
	}
	return &Service{
		db:          db,
		tx:          tx,
		warnings:    warnings,
		communities: communities,
		users:       users,
		outboxRepo:  outboxRepo,
		images:      images,
		topic:       topic,
		logger:      logger,
	}
}

type CreateInput struct {
	Scope       domain.WarningScope `json:"scope"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Image       *string             `json:"image,omitempty"`
}

func validateScope(scope domain.WarningScope) error {
	if !scope.Valid() {
		return domain.NewValidationError("scope", fmt.Sprintf("unknown scope %q", scope))
	}
	return nil
}

func validateTitle(title string) error {
	return util.ValidateText("title", title, 1, maxTitleLength)
}

func validateDescription(description string) error {
	return util.ValidateText("description", description, 0, maxDescriptionLength)
}

// Create posts a warning to the author's community.
func (s *Service) Create(ctx context.Context, authorID string, in CreateInput) (*domain.Warning, error) {
	if in.Scope == "" {
		in.Scope = domain.WarningScopeCommunity
	}
	if err := validateScope(in.Scope); err != nil {
		return nil, err
	}
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	if err := validateDescription(in.Description); err != nil {
		return nil, err
	}
	image, err := s.storeImage(ctx, in.Image)
	if err != nil {
		return nil, err
	}

	warning := &domain.Warning{
		ID:          util.GenerateUUID(),
		Scope:       in.Scope,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Image:       image,
		PostedAt:    time.Now(),
	}
	err = s.tx.WithinTx(ctx, func(q domain.Querier) error {
		author, err := s.users.GetByIDTx(ctx, q, authorID)
		if err != nil {
			return err
		}
		warning.CommunityID = author.CommunityID
		if err := s.warnings.CreateTx(ctx, q, warning); err != nil {
			return err
		}
		if s.topic == "" {
			return nil
		}
		msg, err := outbox.NewMessage(domain.AggregateWarning, warning.ID, domain.EventWarningCreated, s.topic, warning.CommunityID,
			domain.WarningCreatedEvent{
				WarningID:   warning.ID,
				CommunityID: warning.CommunityID,
				Scope:       warning.Scope,
				Title:       warning.Title,
				Timestamp:   warning.PostedAt,
			})
		if err != nil {
			return err
		}
		return s.outboxRepo.CreateMessageTx(ctx, q, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create warning: %w", err)
	}
	s.logger.Info("Warning created",
		zap.String("warning_id", warning.ID),
		zap.String("community_id", warning.CommunityID),
		zap.String("scope", string(warning.Scope)))
	return warning, nil
}

// Latest returns the newest total warnings of the community with patron.
func (s *Service) Latest(ctx context.Context, patron string, total int) ([]domain.Warning, error) {
	if total < 1 {
		total = defaultLatest
	}
	if total > maxPageSize {
		total = maxPageSize
	}
	community, err := s.communities.GetByPatronTx(ctx, s.db, patron)
	if err != nil {
		return nil, err
	}
	return s.warnings.ListByCommunityTx(ctx, s.db, community.ID, "", total)
}

type Page struct {
	Items []domain.Warning `json:"items"`
	Next  string           `json:"next,omitempty"`
}

// List pages the community's warnings newest first. Next is the cursor for
// the following page and is empty on the last one.
func (s *Service) List(ctx context.Context, patron, after string, limit int) (*Page, error) {
	if limit < 1 {
		limit = defaultLatest
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	community, err := s.communities.GetByPatronTx(ctx, s.db, patron)
	if err != nil {
		return nil, err
	}
	items, err := s.warnings.ListByCommunityTx(ctx, s.db, community.ID, after, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list warnings: %w", err)
	}
	page := &Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.Next = items[limit-1].ID
	}
	return page, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Warning, error) {
	return s.warnings.GetByIDTx(ctx, s.db, id)
}

func (s *Service) Update(ctx context.Context, id string, update domain.WarningUpdate) (*domain.Warning, error) {
	if update.Scope != nil {
		if err := validateScope(*update.Scope); err != nil {
			return nil, err
		}
	}
	if update.Title != nil {
		if err := validateTitle(*update.Title); err != nil {
			return nil, err
		}
	}
	if update.Description != nil {
		if err := validateDescription(*update.Description); err != nil {
			return nil, err
		}
	}
	image, err := s.storeImage(ctx, update.Image)
	if err != nil {
		return nil, err
	}
	update.Image = image

	var updated *domain.Warning
	err = s.tx.WithinTx(ctx, func(q domain.Querier) error {
		var err error
		updated, err = s.warnings.UpdateTx(ctx, q, id, update)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update warning %s: %w", id, err)
	}
	s.logger.Info("Warning updated", zap.String("warning_id", id))
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.tx.WithinTx(ctx, func(q domain.Querier) error {
		return s.warnings.DeleteTx(ctx, q, id)
	})
	if err != nil {
		return fmt.Errorf("failed to delete warning %s: %w", id, err)
	}
	s.logger.Info("Warning deleted", zap.String("warning_id", id))
	return nil
}

func (s *Service) storeImage(ctx context.Context, image *string) (*string, error) {
	if image == nil || *image == "" {
		return image, nil
	}
	url, err := s.images.StoreImage(ctx, "warnings", *image)
	if err != nil {
		return nil, fmt.Errorf("failed to store warning image: %w", err)
	}
	return &url, nil
}
