package payments

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dizimo/internal/domain"
	"dizimo/internal/infrastructure/database"
	"dizimo/internal/repository/communities_repo"
	"dizimo/internal/repository/payments_repo"
	"dizimo/internal/repository/users_repo"
	"dizimo/internal/util"
)

// RolloverReport counts what one rollover run did.
type RolloverReport struct {
	Period             string `json:"period"`
	UsersSeen          int    `json:"users_seen"`
	PaymentsCreated    int    `json:"payments_created"`
	PaymentsSkipped    int    `json:"payments_skipped"`
	UserFailures       int    `json:"user_failures"`
	CommunitiesSeen    int    `json:"communities_seen"`
	CommunitiesRolled  int    `json:"communities_rolled"`
	CommunitiesSkipped int    `json:"communities_skipped"`
	CommunityFailures  int    `json:"community_failures"`
}

func (r RolloverReport) Failures() int {
	return r.UserFailures + r.CommunityFailures
}

// Rollover opens the next billing period: one payment per active user, and
// every community's running total frozen into last month.
type Rollover struct {
	db          domain.Querier
	tx          database.Transactor
	payments    payments_repo.PaymentRepository
	users       users_repo.UserRepository
	communities communities_repo.CommunityRepository
	pageSize    int
	logger      *zap.Logger
}

func NewRollover(
	db domain.Querier,
	tx database.Transactor,
	payments payments_repo.PaymentRepository,
	users users_repo.UserRepository,
	communities communities_repo.CommunityRepository,
	pageSize int,
	logger *zap.Logger,
) *Rollover {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Rollover{
		db:          db,
		tx:          tx,
		payments:    payments,
		users:       users,
		communities: communities,
		pageSize:    pageSize,
		logger:      logger,
	}
}

// Run executes both phases for period. Item failures are counted and do not
// stop the run; a failed page read ends its phase early and is returned
// after the other phase has still run.
func (r *Rollover) Run(ctx context.Context, period domain.Period) (RolloverReport, error) {
	report := RolloverReport{Period: period.String()}
	r.logger.Info("Rollover started", zap.String("period", report.Period))

	usersErr := r.createPayments(ctx, period, &report)
	if usersErr != nil {
		r.logger.Error("Rollover payment phase aborted", zap.String("period", report.Period), zap.Error(usersErr))
	}
	communitiesErr := r.rollCommunities(ctx, period, &report)
	if communitiesErr != nil {
		r.logger.Error("Rollover community phase aborted", zap.String("period", report.Period), zap.Error(communitiesErr))
	}

	r.logger.Info("Rollover finished",
		zap.String("period", report.Period),
		zap.Int("users_seen", report.UsersSeen),
		zap.Int("payments_created", report.PaymentsCreated),
		zap.Int("payments_skipped", report.PaymentsSkipped),
		zap.Int("user_failures", report.UserFailures),
		zap.Int("communities_seen", report.CommunitiesSeen),
		zap.Int("communities_rolled", report.CommunitiesRolled),
		zap.Int("communities_skipped", report.CommunitiesSkipped),
		zap.Int("community_failures", report.CommunityFailures))

	switch {
	case usersErr != nil && communitiesErr != nil:
		return report, fmt.Errorf("rollover %s: payments: %w; communities: %v", report.Period, usersErr, communitiesErr)
	case usersErr != nil:
		return report, fmt.Errorf("rollover %s: payments: %w", report.Period, usersErr)
	case communitiesErr != nil:
		return report, fmt.Errorf("rollover %s: communities: %w", report.Period, communitiesErr)
	}
	return report, nil
}

func (r *Rollover) createPayments(ctx context.Context, period domain.Period, report *RolloverReport) error {
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		users, err := r.users.ListActiveTx(ctx, r.db, after, r.pageSize)
		if err != nil {
			return fmt.Errorf("failed to page users after %q: %w", after, err)
		}
		for _, user := range users {
			report.UsersSeen++
			payment := domain.NewPayment(util.GenerateUUID(), user.ID, period)
			var created bool
			err := r.tx.WithinTx(ctx, func(q domain.Querier) error {
				var err error
				created, err = r.payments.CreateIfAbsentTx(ctx, q, payment)
				return err
			})
			switch {
			case err != nil:
				report.UserFailures++
				r.logger.Error("Rollover failed to create payment",
					zap.String("user_id", user.ID),
					zap.String("period", report.Period),
					zap.Error(err))
			case created:
				report.PaymentsCreated++
			default:
				report.PaymentsSkipped++
			}
		}
		if len(users) < r.pageSize {
			return nil
		}
		after = users[len(users)-1].ID
	}
}

func (r *Rollover) rollCommunities(ctx context.Context, period domain.Period, report *RolloverReport) error {
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		communities, err := r.communities.ListTx(ctx, r.db, after, r.pageSize)
		if err != nil {
			return fmt.Errorf("failed to page communities after %q: %w", after, err)
		}
		for _, community := range communities {
			report.CommunitiesSeen++
			var rolled bool
			err := r.tx.WithinTx(ctx, func(q domain.Querier) error {
				var err error
				rolled, err = r.communities.RolloverTx(ctx, q, community.ID, period)
				return err
			})
			switch {
			case err != nil:
				report.CommunityFailures++
				r.logger.Error("Rollover failed to shift community total",
					zap.String("community_id", community.ID),
					zap.String("period", report.Period),
					zap.Error(err))
			case rolled:
				report.CommunitiesRolled++
			default:
				report.CommunitiesSkipped++
			}
		}
		if len(communities) < r.pageSize {
			return nil
		}
		after = communities[len(communities)-1].ID
	}
}
