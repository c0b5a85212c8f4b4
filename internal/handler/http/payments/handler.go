package payments_http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dizimo/internal/app/payments"
	"dizimo/internal/domain"
	common "dizimo/internal/handler/http/common"
)

type PaymentService interface {
	RequestCharge(ctx context.Context, userID string, period domain.Period, value int64) (*domain.ChargeView, error)
	ListPayments(ctx context.Context, userID string, year int) ([]payments.PaymentView, error)
	ListPaymentsByMonth(ctx context.Context, userID string, month domain.Month) ([]payments.PaymentView, error)
	GetPayment(ctx context.Context, userID string, period domain.Period) (*payments.PaymentView, error)
	CreatePayment(ctx context.Context, userID string, period domain.Period) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, paymentID string, update domain.PaymentUpdate) (*domain.Payment, error)
	ExpirePayment(ctx context.Context, paymentID string) (*domain.Payment, error)
	DeletePayment(ctx context.Context, paymentID string) error
	GetPaymentByIdentifier(ctx context.Context, identifier string) (*domain.Payment, error)
}

type RolloverRunner interface {
	Run(ctx context.Context, period domain.Period) (payments.RolloverReport, error)
}

type PaymentHandler struct {
	service  PaymentService
	rollover RolloverRunner
	now      func() time.Time
	logger   *zap.Logger
}

func NewPaymentHandler(s PaymentService, rollover RolloverRunner, l *zap.Logger) *PaymentHandler {
	return &PaymentHandler{service: s, rollover: rollover, now: time.Now, logger: l}
}

type RequestChargeRequest struct {
	Month string `json:"month"`
	Year  int    `json:"year"`
	Value int64  `json:"value"`
}

type CreatePaymentRequest struct {
	UserID string `json:"user_id"`
	Month  string `json:"month"`
	Year   int    `json:"year"`
}

type UpdatePaymentRequest struct {
	Status        *domain.PaymentStatus `json:"status,omitempty"`
	CorrelationID *string               `json:"correlation_id,omitempty"`
	Value         *int64                `json:"value,omitempty"`
	Identifier    *string               `json:"identifier,omitempty"`
	Date          *time.Time            `json:"date,omitempty"`

	ClearCorrelationID bool `json:"clear_correlation_id,omitempty"`
	ClearValue         bool `json:"clear_value,omitempty"`
	ClearDate          bool `json:"clear_date,omitempty"`
}

func (r UpdatePaymentRequest) toUpdate() domain.PaymentUpdate {
	return domain.PaymentUpdate{
		Status:             r.Status,
		CorrelationID:      r.CorrelationID,
		Value:              r.Value,
		Identifier:         r.Identifier,
		Date:               r.Date,
		ClearCorrelationID: r.ClearCorrelationID,
		ClearValue:         r.ClearValue,
		ClearDate:          r.ClearDate,
	}
}

type RolloverRequest struct {
	Month string `json:"month"`
	Year  int    `json:"year"`
}

type PaymentResponse struct {
	ID            string               `json:"id"`
	UserID        string               `json:"user_id"`
	Month         domain.Month         `json:"month"`
	Year          int                  `json:"year"`
	Status        domain.PaymentStatus `json:"status"`
	Value         *int64               `json:"value,omitempty"`
	Identifier    *string              `json:"identifier,omitempty"`
	CorrelationID *string              `json:"correlation_id,omitempty"`
	Date          *time.Time           `json:"date,omitempty"`
	CreatedAt     string               `json:"created_at"`
	UpdatedAt     string               `json:"updated_at"`
}

func toPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		UserID:        p.UserID,
		Month:         p.Month,
		Year:          p.Year,
		Status:        p.Status,
		Value:         p.Value,
		Identifier:    p.Identifier,
		CorrelationID: p.CorrelationID,
		Date:          p.Date,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     p.UpdatedAt.Format(time.RFC3339),
	}
}

// RequestChargeHandler returns a payable charge for the caller's payment of
// the given period.
func (h *PaymentHandler) RequestChargeHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := common.IdentityFrom(r.Context())

	var req RequestChargeRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	period, err := domain.NewPeriod(req.Month, req.Year)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	charge, err := h.service.RequestCharge(r.Context(), id.UserID, period, req.Value)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, charge)
}

func (h *PaymentHandler) ListByYearHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := common.IdentityFrom(r.Context())

	year, err := common.IntParam(r, "year")
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	views, err := h.service.ListPayments(r.Context(), id.UserID, year)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, views)
}

// ListByMonthHandler returns the caller's payments of one month across all
// years.
func (h *PaymentHandler) ListByMonthHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := common.IdentityFrom(r.Context())

	month, err := domain.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	views, err := h.service.ListPaymentsByMonth(r.Context(), id.UserID, month)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, views)
}

func (h *PaymentHandler) GetByPeriodHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := common.IdentityFrom(r.Context())

	year, err := common.IntParam(r, "year")
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	period, err := domain.NewPeriod(chi.URLParam(r, "month"), year)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	view, err := h.service.GetPayment(r.Context(), id.UserID, period)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, view)
}

func (h *PaymentHandler) GetByIdentifierHandler(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.GetPaymentByIdentifier(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, toPaymentResponse(payment))
}

func (h *PaymentHandler) CreatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	if req.UserID == "" {
		common.WriteError(w, h.logger, domain.NewValidationError("user_id", "is required"))
		return
	}
	period, err := domain.NewPeriod(req.Month, req.Year)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	payment, err := h.service.CreatePayment(r.Context(), req.UserID, period)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusCreated, toPaymentResponse(payment))
}

func (h *PaymentHandler) UpdatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdatePaymentRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	payment, err := h.service.UpdatePayment(r.Context(), chi.URLParam(r, "id"), req.toUpdate())
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, toPaymentResponse(payment))
}

func (h *PaymentHandler) ExpirePaymentHandler(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.ExpirePayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, toPaymentResponse(payment))
}

func (h *PaymentHandler) DeletePaymentHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePayment(r.Context(), chi.URLParam(r, "id")); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RolloverHandler runs the monthly rollover for the given period, or the
// current one when the body names none.
func (h *PaymentHandler) RolloverHandler(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		common.WriteError(w, h.logger, domain.NewValidationError("body", err.Error()))
		return
	}

	period := domain.PeriodOf(h.now())
	if req.Month != "" || req.Year != 0 {
		var err error
		if period, err = domain.NewPeriod(req.Month, req.Year); err != nil {
			common.WriteError(w, h.logger, err)
			return
		}
	}

	report, err := h.rollover.Run(r.Context(), period)
	if err != nil {
		common.WriteError(w, h.logger, fmt.Errorf("rollover %s: %w", period, err))
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, report)
}
