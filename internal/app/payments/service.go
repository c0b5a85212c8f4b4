package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dizimo/internal/domain"
	"dizimo/internal/infrastructure/database"
	"dizimo/internal/outbox"
	"dizimo/internal/repository/communities_repo"
	"dizimo/internal/repository/outbox_repo"
	"dizimo/internal/repository/payments_repo"
	"dizimo/internal/repository/reconciliation_repo"
	"dizimo/internal/repository/users_repo"
	"dizimo/internal/util"
)

// ChargeGateway is the remote PIX charge service.
type ChargeGateway interface {
	CreateCharge(ctx context.Context, value int64, customer domain.Customer, correlationID string) (*domain.ChargeInfo, error)
	GetCharge(ctx context.Context, correlationID string) (*domain.ChargeInfo, error)
	DeleteCharge(ctx context.Context, correlationID string) error
}

type Config struct {
	ReconcileDelay     time.Duration
	PaymentEventsTopic string
}

// Service is the payment lifecycle engine.
type Service struct {
	db          domain.Querier
	tx          database.Transactor
	payments    payments_repo.PaymentRepository
	users       users_repo.UserRepository
	communities communities_repo.CommunityRepository
	jobs        reconciliation_repo.JobRepository
	outboxRepo  outbox_repo.OutboxRepository
	gateway     ChargeGateway
	cfg         Config
	now         func() time.Time
	logger      *zap.Logger
}

func NewService(
	db domain.Querier,
	tx database.Transactor,
	payments payments_repo.PaymentRepository,
	users users_repo.UserRepository,
	communities communities_repo.CommunityRepository,
	jobs reconciliation_repo.JobRepository,
	outboxRepo outbox_repo.OutboxRepository,
	gateway ChargeGateway,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.ReconcileDelay <= 0 {
		cfg.ReconcileDelay = 30 * time.Minute
	}
	return &Service{
		db:          db,
		tx:          tx,
		payments:    payments,
		users:       users,
		communities: communities,
		jobs:        jobs,
		outboxRepo:  outboxRepo,
		gateway:     gateway,
		cfg:         cfg,
		now:         time.Now,
		logger:      logger,
	}
}

// PaymentView is what a payment owner sees of a payment.
type PaymentView struct {
	Month      domain.Month         `json:"month"`
	Year       int                  `json:"year"`
	Status     domain.PaymentStatus `json:"status"`
	Value      *int64               `json:"value,omitempty"`
	Identifier *string              `json:"identifier,omitempty"`
	Date       *time.Time           `json:"date,omitempty"`
	Charge     *domain.ChargeView   `json:"charge,omitempty"`
}

// CreatePayment opens an obligation for a single period on demand.
func (s *Service) CreatePayment(ctx context.Context, userID string, period domain.Period) (*domain.Payment, error) {
	payment := domain.NewPayment(util.GenerateUUID(), userID, period)
	err := s.tx.WithinTx(ctx, func(q domain.Querier) error {
		if _, err := s.users.GetByIDTx(ctx, q, userID); err != nil {
			return err
		}
		return s.payments.CreateTx(ctx, q, payment)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment for %s: %w", period, err)
	}
	s.logger.Info("Payment created",
		zap.String("payment_id", payment.ID),
		zap.String("user_id", userID),
		zap.String("month", string(period.Month)),
		zap.Int("year", period.Year))
	return payment, nil
}

// RequestCharge returns a payable charge for the user's payment of period.
// A still active charge is reused; otherwise a new one is issued and a
// reconciliation is scheduled. The payment row stays locked for the whole
// decision, so concurrent requests for one period issue at most one charge.
func (s *Service) RequestCharge(ctx context.Context, userID string, period domain.Period, value int64) (*domain.ChargeView, error) {
	if err := util.ValidateChargeValue(value); err != nil {
		return nil, err
	}

	var (
		view      *domain.ChargeView
		issuedFor string
		settled   bool
	)
	err := s.tx.WithinTx(ctx, func(q domain.Querier) error {
		payment, err := s.payments.GetByPeriodForUpdateTx(ctx, q, userID, period)
		if err != nil {
			return err
		}
		if err := payment.CanRequestCharge(); err != nil {
			return err
		}

		if payment.HasCharge() {
			reused, paid, err := s.reuseChargeTx(ctx, q, payment)
			if err != nil {
				return err
			}
			if paid {
				settled = true
				return nil
			}
			if reused != nil {
				view = reused.View()
				return nil
			}
		}

		user, err := s.users.GetByIDTx(ctx, q, userID)
		if err != nil {
			return err
		}

		correlationID := util.NewCorrelationID()
		charge, err := s.gateway.CreateCharge(ctx, value, user.Customer(), correlationID)
		if err != nil {
			return err
		}
		issuedFor = correlationID

		status := domain.PaymentStatusChargePending
		chargeValue := charge.Value
		if chargeValue == 0 {
			chargeValue = value
		}
		update := domain.PaymentUpdate{Status: &status, CorrelationID: &correlationID, Value: &chargeValue}
		if _, err := s.payments.UpdateTx(ctx, q, payment.ID, update); err != nil {
			return err
		}

		job := domain.NewReconciliationJob(util.GenerateUUID(), payment.ID, correlationID, s.now().Add(s.cfg.ReconcileDelay))
		if err := s.jobs.EnqueueTx(ctx, q, job); err != nil {
			return err
		}

		view = charge.View()
		return nil
	})
	if err != nil {
		if issuedFor != "" {
			s.discardOrphanCharge(ctx, issuedFor)
		}
		s.logRejection("Charge request failed", err,
			zap.String("user_id", userID),
			zap.String("month", string(period.Month)),
			zap.Int("year", period.Year))
		return nil, fmt.Errorf("failed to request charge for %s: %w", period, err)
	}
	if settled {
		s.logger.Warn("Charge request for a payment settled on lookup",
			zap.String("user_id", userID),
			zap.String("month", string(period.Month)),
			zap.Int("year", period.Year))
		return nil, fmt.Errorf("failed to request charge for %s: %w", period, domain.ErrAlreadyPaid)
	}

	if issuedFor != "" {
		s.logger.Info("Charge issued",
			zap.String("user_id", userID),
			zap.String("correlation_id", issuedFor),
			zap.String("month", string(period.Month)),
			zap.Int("year", period.Year),
			zap.Int64("value", view.Value))
	} else {
		s.logger.Info("Active charge reused",
			zap.String("user_id", userID),
			zap.String("month", string(period.Month)),
			zap.Int("year", period.Year))
	}
	return view, nil
}

// reuseChargeTx inspects the payment's current charge. It returns the charge
// when it is still active. A charge paid but not yet reconciled is settled
// here and reported through paid; any other charge is dropped so a new one
// can be issued. A charge the provider no longer knows needs no drop.
func (s *Service) reuseChargeTx(ctx context.Context, q domain.Querier, payment *domain.Payment) (charge *domain.ChargeInfo, paid bool, err error) {
	correlationID := *payment.CorrelationID
	charge, err = s.gateway.GetCharge(ctx, correlationID)
	if errors.Is(err, domain.ErrChargeNotFound) {
		s.logger.Warn("Charge unknown to provider, issuing a new one",
			zap.String("payment_id", payment.ID),
			zap.String("correlation_id", correlationID))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	switch {
	case charge.IsActive():
		return charge, false, nil
	case charge.IsCompleted():
		if err := s.settleTx(ctx, q, payment, charge); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	default:
		if err := s.gateway.DeleteCharge(ctx, correlationID); err != nil {
			return nil, false, err
		}
		s.logger.Info("Stale charge dropped before reissue",
			zap.String("payment_id", payment.ID),
			zap.String("correlation_id", correlationID),
			zap.String("charge_status", string(charge.Status)))
		return nil, false, nil
	}
}

func (s *Service) discardOrphanCharge(ctx context.Context, correlationID string) {
	if err := s.gateway.DeleteCharge(context.WithoutCancel(ctx), correlationID); err != nil {
		s.logger.Error("Failed to delete charge after rollback",
			zap.String("correlation_id", correlationID),
			zap.Error(err))
	}
}

// Reconcile finalizes the payment behind correlationID from the gateway's
// view of the charge. It is safe to call repeatedly: a paid payment is left
// untouched and the community total is increased at most once.
func (s *Service) Reconcile(ctx context.Context, correlationID string) error {
	var outcome string
	err := s.tx.WithinTx(ctx, func(q domain.Querier) error {
		payment, err := s.payments.GetByCorrelationIDForUpdateTx(ctx, q, correlationID)
		if err != nil {
			return err
		}
		if payment.Status == domain.PaymentStatusPaid {
			outcome = "already_paid"
			return nil
		}

		charge, err := s.gateway.GetCharge(ctx, correlationID)
		if errors.Is(err, domain.ErrChargeNotFound) {
			outcome = "discarded_missing"
			return s.discardTx(ctx, q, payment, domain.ChargeStatusNotFound)
		}
		if err != nil {
			return err
		}

		switch {
		case charge.IsCompleted():
			outcome = "paid"
			return s.settleTx(ctx, q, payment, charge)
		case charge.IsActive():
			return domain.ErrChargeStillActive
		default:
			outcome = "discarded"
			if err := s.discardTx(ctx, q, payment, charge.Status); err != nil {
				return err
			}
			return s.gateway.DeleteCharge(ctx, correlationID)
		}
	})
	if err != nil {
		if errors.Is(err, domain.ErrChargeStillActive) {
			s.logger.Debug("Charge still active", zap.String("correlation_id", correlationID))
			return err
		}
		s.logRejection("Reconciliation failed", err, zap.String("correlation_id", correlationID))
		return fmt.Errorf("failed to reconcile charge %s: %w", correlationID, err)
	}

	s.logger.Info("Charge reconciled",
		zap.String("correlation_id", correlationID),
		zap.String("outcome", outcome))
	return nil
}

// settleTx marks the payment paid and credits the owner's community once.
func (s *Service) settleTx(ctx context.Context, q domain.Querier, payment *domain.Payment, charge *domain.ChargeInfo) error {
	value := charge.Value
	if value == 0 && payment.Value != nil {
		value = *payment.Value
	}
	paidAt := s.now()

	changed, err := s.payments.MarkPaidTx(ctx, q, payment.ID, value, paidAt)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	user, err := s.users.GetByIDTx(ctx, q, payment.UserID)
	if err != nil {
		return err
	}
	if err := s.communities.IncreaseActualMonthPaymentValueTx(ctx, q, user.CommunityID, value); err != nil {
		return err
	}

	event := domain.PaymentPaidEvent{
		PaymentID:   payment.ID,
		UserID:      payment.UserID,
		CommunityID: user.CommunityID,
		Month:       payment.Month,
		Year:        payment.Year,
		Value:       value,
		Timestamp:   paidAt,
	}
	return s.enqueueTx(ctx, q, payment.ID, domain.EventPaymentPaid, user.CommunityID, event)
}

// discardTx puts the payment back to active and records why its charge was
// dropped. Removing the charge at the provider is left to the caller.
func (s *Service) discardTx(ctx context.Context, q domain.Querier, payment *domain.Payment, chargeStatus domain.ChargeStatus) error {
	if _, err := s.payments.UpdateTx(ctx, q, payment.ID, domain.DiscardChargeUpdate()); err != nil {
		return err
	}

	event := domain.PaymentChargeDiscardedEvent{
		PaymentID:    payment.ID,
		UserID:       payment.UserID,
		Month:        payment.Month,
		Year:         payment.Year,
		ChargeStatus: chargeStatus,
		Timestamp:    s.now(),
	}
	return s.enqueueTx(ctx, q, payment.ID, domain.EventPaymentChargeDiscarded, payment.UserID, event)
}

func (s *Service) enqueueTx(ctx context.Context, q domain.Querier, paymentID, messageType, key string, event any) error {
	if s.cfg.PaymentEventsTopic == "" {
		return nil
	}
	msg, err := outbox.NewMessage(domain.AggregatePayment, paymentID, messageType, s.cfg.PaymentEventsTopic, key, event)
	if err != nil {
		return err
	}
	return s.outboxRepo.CreateMessageTx(ctx, q, msg)
}

// ListPayments returns the user's payments of year. Pending charges are
// looked up so the owner can still pay them; a failed lookup only omits the
// charge from that entry.
func (s *Service) ListPayments(ctx context.Context, userID string, year int) ([]PaymentView, error) {
	payments, err := s.payments.ListByUserYearTx(ctx, s.db, userID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments of %d: %w", year, err)
	}
	views := make([]PaymentView, 0, len(payments))
	for i := range payments {
		views = append(views, s.view(ctx, &payments[i]))
	}
	return views, nil
}

func (s *Service) ListPaymentsByMonth(ctx context.Context, userID string, month domain.Month) ([]PaymentView, error) {
	payments, err := s.payments.ListByUserMonthTx(ctx, s.db, userID, month)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments of %s: %w", month, err)
	}
	views := make([]PaymentView, 0, len(payments))
	for i := range payments {
		views = append(views, s.view(ctx, &payments[i]))
	}
	return views, nil
}

func (s *Service) GetPayment(ctx context.Context, userID string, period domain.Period) (*PaymentView, error) {
	payment, err := s.payments.GetByPeriodTx(ctx, s.db, userID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment for %s: %w", period, err)
	}
	view := s.view(ctx, payment)
	return &view, nil
}

func (s *Service) GetPaymentByIdentifier(ctx context.Context, identifier string) (*domain.Payment, error) {
	payment, err := s.payments.GetByIdentifierTx(ctx, s.db, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by identifier: %w", err)
	}
	return payment, nil
}

func (s *Service) view(ctx context.Context, payment *domain.Payment) PaymentView {
	view := PaymentView{
		Month:      payment.Month,
		Year:       payment.Year,
		Status:     payment.Status,
		Value:      payment.Value,
		Identifier: payment.Identifier,
		Date:       payment.Date,
	}
	if payment.Status == domain.PaymentStatusChargePending && payment.HasCharge() {
		charge, err := s.gateway.GetCharge(ctx, *payment.CorrelationID)
		if err != nil {
			s.logger.Warn("Failed to load charge for payment view",
				zap.String("payment_id", payment.ID),
				zap.Error(err))
			return view
		}
		view.Charge = charge.View()
	}
	return view
}

// ExpirePayment closes a payment administratively. A pending charge is
// deleted at the gateway once the local update succeeded.
func (s *Service) ExpirePayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	var expired *domain.Payment
	err := s.tx.WithinTx(ctx, func(q domain.Querier) error {
		payment, err := s.payments.GetByIDForUpdateTx(ctx, q, paymentID)
		if err != nil {
			return err
		}
		switch payment.Status {
		case domain.PaymentStatusPaid:
			return domain.ErrAlreadyPaid
		case domain.PaymentStatusExpired:
			expired = payment
			return nil
		}

		status := domain.PaymentStatusExpired
		update := domain.PaymentUpdate{Status: &status, ClearCorrelationID: true, ClearValue: true, ClearDate: true}
		expired, err = s.payments.UpdateTx(ctx, q, paymentID, update)
		if err != nil {
			return err
		}
		if payment.HasCharge() {
			return s.gateway.DeleteCharge(ctx, *payment.CorrelationID)
		}
		return nil
	})
	if err != nil {
		s.logRejection("Expire payment failed", err, zap.String("payment_id", paymentID))
		return nil, fmt.Errorf("failed to expire payment %s: %w", paymentID, err)
	}
	s.logger.Info("Payment expired", zap.String("payment_id", paymentID))
	return expired, nil
}

// UpdatePayment applies an administrative partial update. Fields left nil
// are untouched and an unknown status is ignored.
func (s *Service) UpdatePayment(ctx context.Context, paymentID string, update domain.PaymentUpdate) (*domain.Payment, error) {
	var updated *domain.Payment
	err := s.tx.WithinTx(ctx, func(q domain.Querier) error {
		var err error
		updated, err = s.payments.UpdateTx(ctx, q, paymentID, update)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update payment %s: %w", paymentID, err)
	}
	s.logger.Info("Payment updated", zap.String("payment_id", paymentID))
	return updated, nil
}

func (s *Service) DeletePayment(ctx context.Context, paymentID string) error {
	err := s.tx.WithinTx(ctx, func(q domain.Querier) error {
		return s.payments.DeleteTx(ctx, q, paymentID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete payment %s: %w", paymentID, err)
	}
	s.logger.Info("Payment deleted", zap.String("payment_id", paymentID))
	return nil
}

// logRejection logs business rule rejections as warnings and everything
// else as errors.
func (s *Service) logRejection(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrAlreadyPaid),
		errors.Is(err, domain.ErrPaymentExpired),
		errors.Is(err, domain.ErrAlreadyExists),
		domain.IsValidationError(err):
		s.logger.Warn(msg, fields...)
	default:
		s.logger.Error(msg, fields...)
	}
}
