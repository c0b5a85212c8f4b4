package payments_http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dizimo/internal/app/payments"
	"dizimo/internal/domain"
	common "dizimo/internal/handler/http/common"
	"dizimo/internal/util"
)

const testSecret = "test-secret"

type MockPaymentService struct {
	mu sync.Mutex

	ChargeErr    error
	ChargeCalls  int
	LastUserID   string
	LastPeriod   domain.Period
	LastValue    int64
	LastUpdate   domain.PaymentUpdate
	ExpireErr    error
	DeletedIDs   []string
	ListedYears  []int
	ListedMonth  domain.Month
	Identifiers  []string
	GetPaymentFn func(userID string, period domain.Period) (*payments.PaymentView, error)
}

func (m *MockPaymentService) RequestCharge(_ context.Context, userID string, period domain.Period, value int64) (*domain.ChargeView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChargeCalls++
	m.LastUserID, m.LastPeriod, m.LastValue = userID, period, value
	if m.ChargeErr != nil {
		return nil, m.ChargeErr
	}
	return &domain.ChargeView{Value: value, Status: domain.ChargeStatusActive, BRCode: "000201"}, nil
}

func (m *MockPaymentService) ListPayments(_ context.Context, userID string, year int) ([]payments.PaymentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastUserID = userID
	m.ListedYears = append(m.ListedYears, year)
	return []payments.PaymentView{{Month: domain.March, Year: year, Status: domain.PaymentStatusActive}}, nil
}

func (m *MockPaymentService) ListPaymentsByMonth(_ context.Context, userID string, month domain.Month) ([]payments.PaymentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastUserID, m.ListedMonth = userID, month
	return []payments.PaymentView{{Month: month, Year: 2023}, {Month: month, Year: 2024}}, nil
}

func (m *MockPaymentService) GetPayment(_ context.Context, userID string, period domain.Period) (*payments.PaymentView, error) {
	if m.GetPaymentFn != nil {
		return m.GetPaymentFn(userID, period)
	}
	return &payments.PaymentView{Month: period.Month, Year: period.Year, Status: domain.PaymentStatusPaid}, nil
}

func (m *MockPaymentService) CreatePayment(_ context.Context, userID string, period domain.Period) (*domain.Payment, error) {
	return domain.NewPayment("p-new", userID, period), nil
}

func (m *MockPaymentService) UpdatePayment(_ context.Context, paymentID string, update domain.PaymentUpdate) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastUpdate = update
	p := domain.NewPayment(paymentID, "u1", domain.Period{Month: domain.March, Year: 2024})
	update.Apply(p)
	return p, nil
}

func (m *MockPaymentService) ExpirePayment(_ context.Context, paymentID string) (*domain.Payment, error) {
	if m.ExpireErr != nil {
		return nil, m.ExpireErr
	}
	p := domain.NewPayment(paymentID, "u1", domain.Period{Month: domain.March, Year: 2024})
	p.Status = domain.PaymentStatusExpired
	return p, nil
}

func (m *MockPaymentService) DeletePayment(_ context.Context, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeletedIDs = append(m.DeletedIDs, paymentID)
	return nil
}

func (m *MockPaymentService) GetPaymentByIdentifier(_ context.Context, identifier string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Identifiers = append(m.Identifiers, identifier)
	if identifier != "ref-1" {
		return nil, domain.ErrPaymentNotFound
	}
	p := domain.NewPayment("p1", "u1", domain.Period{Month: domain.March, Year: 2024})
	p.Identifier = &identifier
	return p, nil
}

type MockRollover struct {
	Periods []domain.Period
}

func (m *MockRollover) Run(_ context.Context, period domain.Period) (payments.RolloverReport, error) {
	m.Periods = append(m.Periods, period)
	return payments.RolloverReport{Period: period.String(), PaymentsCreated: 3}, nil
}

type MockApplier struct {
	Events []domain.ChargeEvent
	Err    error
}

func (m *MockApplier) Handle(_ context.Context, record *domain.InboxMessage, event domain.ChargeEvent) error {
	if record != nil {
		return errors.New("webhook must not record inbox messages")
	}
	m.Events = append(m.Events, event)
	return m.Err
}

func newTestRouter(svc *MockPaymentService, rollover *MockRollover, applier *MockApplier) chi.Router {
	r := chi.NewRouter()
	auth := common.NewAuth(testSecret, zap.NewNop())
	RegisterRoutes(r, auth, svc, rollover, zap.NewNop())
	RegisterWebhookRoutes(r, applier, "app-id", zap.NewNop())
	return r
}

func bearer(t *testing.T, userID string, position domain.Position) string {
	t.Helper()
	token, err := util.GenerateToken(testSecret, userID, string(position), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error = %v", err)
	}
	return "Bearer " + token
}

func do(r http.Handler, method, path, auth string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequestChargeHandler(t *testing.T) {
	t.Run("Given a member token When requesting a charge Then the charge is returned for the caller", func(t *testing.T) {
		// Given
		svc := &MockPaymentService{}
		r := newTestRouter(svc, &MockRollover{}, &MockApplier{})

		// When
		rec := do(r, http.MethodPost, "/dizimo_payment", bearer(t, "u1", domain.PositionMember),
			RequestChargeRequest{Month: "march", Year: 2024, Value: 2500})

		// Then
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body)
		}
		if svc.LastUserID != "u1" || svc.LastPeriod != (domain.Period{Month: domain.March, Year: 2024}) || svc.LastValue != 2500 {
			t.Errorf("call = %s %v %d", svc.LastUserID, svc.LastPeriod, svc.LastValue)
		}
		var view domain.ChargeView
		if err := json.NewDecoder(rec.Body).Decode(&view); err != nil || view.BRCode != "000201" {
			t.Errorf("body = %+v, %v", view, err)
		}
	})

	t.Run("Given no token When requesting a charge Then 401", func(t *testing.T) {
		svc := &MockPaymentService{}
		r := newTestRouter(svc, &MockRollover{}, &MockApplier{})

		rec := do(r, http.MethodPost, "/dizimo_payment", "", RequestChargeRequest{Month: "march", Year: 2024, Value: 1})

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
		if svc.ChargeCalls != 0 {
			t.Error("service reached without a token")
		}
	})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"already paid", domain.ErrAlreadyPaid, http.StatusBadRequest},
		{"expired", domain.ErrPaymentExpired, http.StatusNotAcceptable},
		{"missing payment", domain.ErrPaymentNotFound, http.StatusNotFound},
		{"invalid value", domain.NewValidationError("value", "must be positive"), http.StatusBadRequest},
		{"gateway failure", &domain.GatewayError{Op: "create charge", StatusCode: 502, Err: errors.New("bad gateway")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run("Given "+tt.name+" When requesting a charge Then mapped status", func(t *testing.T) {
			svc := &MockPaymentService{ChargeErr: tt.err}
			r := newTestRouter(svc, &MockRollover{}, &MockApplier{})

			rec := do(r, http.MethodPost, "/dizimo_payment", bearer(t, "u1", domain.PositionMember),
				RequestChargeRequest{Month: "march", Year: 2024, Value: 2500})

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	t.Run("Given an unknown month When requesting a charge Then 400 before the service", func(t *testing.T) {
		svc := &MockPaymentService{}
		r := newTestRouter(svc, &MockRollover{}, &MockApplier{})

		rec := do(r, http.MethodPost, "/dizimo_payment", bearer(t, "u1", domain.PositionMember),
			RequestChargeRequest{Month: "smarch", Year: 2024, Value: 2500})

		if rec.Code != http.StatusBadRequest || svc.ChargeCalls != 0 {
			t.Errorf("status = %d calls = %d", rec.Code, svc.ChargeCalls)
		}
	})
}

func TestPaymentReadHandlers(t *testing.T) {
	t.Run("Given a year When listing Then the caller's payments of that year", func(t *testing.T) {
		svc := &MockPaymentService{}
		r := newTestRouter(svc, &MockRollover{}, &MockApplier{})

		rec := do(r, http.MethodGet, "/dizimo_payment/2024", bearer(t, "u7", domain.PositionMember), nil)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if svc.LastUserID != "u7" || len(svc.ListedYears) != 1 || svc.ListedYears[0] != 2024 {
			t.Errorf("call = %s %v", svc.LastUserID, svc.ListedYears)
		}
	})

	t.Run("Given a non numeric year When listing Then 400", func(t *testing.T) {
		r := newTestRouter(&MockPaymentService{}, &MockRollover{}, &MockApplier{})

		rec := do(r, http.MethodGet, "/dizimo_payment/next", bearer(t, "u1", domain.PositionMember), nil)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("Given a numeric month When getting a payment Then the label period is used", func(t *testing.T) {
		var got domain.Period
		svc := &MockPaymentService{GetPaymentFn: func(_ string, period domain.Period) (*payments.PaymentView, error) {
			got = period
			return &payments.PaymentView{Month: period.Month, Year: period.Year}, nil
		}}
		r := newTestRouter(svc, &MockRollover{}, &MockApplier{})

		rec := do(r, http.MethodGet, "/dizimo_payment/2024/03", bearer(t, "u1", domain.PositionMember), nil)

		if rec.Code != http.StatusOK || got.Month != domain.March {
			t.Errorf("status = %d period = %v", rec.Code, got)
		}
	})

	t.Run("Given a month When listing by month Then the caller's payments of every year", func(t *testing.T) {
		// Given
		svc := &MockPaymentService{}
		r := newTestRouter(svc, &MockRollover{}, &MockApplier{})

		// When
		rec := do(r, http.MethodGet, "/dizimo_payment/month/3", bearer(t, "u7", domain.PositionMember), nil)

		// Then
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d (%s)", rec.Code, rec.Body)
		}
		if svc.LastUserID != "u7" || svc.ListedMonth != domain.March {
			t.Errorf("call = %s %q", svc.LastUserID, svc.ListedMonth)
		}
		var views []payments.PaymentView
		if err := json.NewDecoder(rec.Body).Decode(&views); err != nil || len(views) != 2 {
			t.Errorf("body = %+v, %v", views, err)
		}
	})

	t.Run("Given an unknown month When listing by month Then 400", func(t *testing.T) {
		svc := &MockPaymentService{}
		r := newTestRouter(svc, &MockRollover{}, &MockApplier{})

		rec := do(r, http.MethodGet, "/dizimo_payment/month/brumaire", bearer(t, "u1", domain.PositionMember), nil)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		if svc.ListedMonth != "" {
			t.Error("service reached with an invalid month")
		}
	})
}

func TestGetByIdentifierHandler(t *testing.T) {
	t.Run("Given a manager When looking up a known identifier Then the payment is returned", func(t *testing.T) {
		// Given
		svc := &MockPaymentService{}
		r := newTestRouter(svc, &MockRollover{}, &MockApplier{})

		// When
		rec := do(r, http.MethodGet, "/admin/payments/by-identifier/ref-1", bearer(t, "admin", domain.PositionParishLeader), nil)

		// Then
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d (%s)", rec.Code, rec.Body)
		}
		var resp PaymentResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.ID != "p1" || resp.Identifier == nil || *resp.Identifier != "ref-1" {
			t.Errorf("body = %+v, %v", resp, err)
		}
	})

	t.Run("Given an unknown identifier When looking it up Then 404", func(t *testing.T) {
		r := newTestRouter(&MockPaymentService{}, &MockRollover{}, &MockApplier{})

		rec := do(r, http.MethodGet, "/admin/payments/by-identifier/nope", bearer(t, "admin", domain.PositionParishLeader), nil)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("Given a member When looking up an identifier Then 403", func(t *testing.T) {
		svc := &MockPaymentService{}
		r := newTestRouter(svc, &MockRollover{}, &MockApplier{})

		rec := do(r, http.MethodGet, "/admin/payments/by-identifier/ref-1", bearer(t, "u1", domain.PositionMember), nil)

		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
		if len(svc.Identifiers) != 0 {
			t.Error("service reached without the manager position")
		}
	})
}

func TestAdminHandlers(t *testing.T) {
	t.Run("Given a member token When calling an admin route Then 403", func(t *testing.T) {
		svc := &MockPaymentService{}
		r := newTestRouter(svc, &MockRollover{}, &MockApplier{})

		rec := do(r, http.MethodDelete, "/admin/payments/p1", bearer(t, "u1", domain.PositionMember), nil)

		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
		if len(svc.DeletedIDs) != 0 {
			t.Error("payment deleted by a member")
		}
	})

	t.Run("Given a leader When deleting Then 204", func(t *testing.T) {
		svc := &MockPaymentService{}
		r := newTestRouter(svc, &MockRollover{}, &MockApplier{})

		rec := do(r, http.MethodDelete, "/admin/payments/p1", bearer(t, "admin", domain.PositionParishLeader), nil)

		if rec.Code != http.StatusNoContent || len(svc.DeletedIDs) != 1 || svc.DeletedIDs[0] != "p1" {
			t.Errorf("status = %d deleted = %v", rec.Code, svc.DeletedIDs)
		}
	})

	t.Run("Given clear flags When patching Then the update carries them", func(t *testing.T) {
		svc := &MockPaymentService{}
		r := newTestRouter(svc, &MockRollover{}, &MockApplier{})

		rec := do(r, http.MethodPatch, "/admin/payments/p1", bearer(t, "admin", domain.PositionCouncilMember),
			map[string]any{"identifier": "REC-1", "clear_correlation_id": true})

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d (%s)", rec.Code, rec.Body)
		}
		if !svc.LastUpdate.ClearCorrelationID || svc.LastUpdate.Identifier == nil || *svc.LastUpdate.Identifier != "REC-1" {
			t.Errorf("update = %+v", svc.LastUpdate)
		}
	})

	t.Run("Given a paid payment When expiring Then 400", func(t *testing.T) {
		svc := &MockPaymentService{ExpireErr: domain.ErrAlreadyPaid}
		r := newTestRouter(svc, &MockRollover{}, &MockApplier{})

		rec := do(r, http.MethodPost, "/admin/payments/p1/expire", bearer(t, "admin", domain.PositionParishLeader), nil)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("Given no body When triggering rollover Then the current period runs", func(t *testing.T) {
		rollover := &MockRollover{}
		r := chi.NewRouter()
		RegisterRoutes(r, common.NewAuth(testSecret, zap.NewNop()), &MockPaymentService{}, rollover, zap.NewNop())

		rec := do(r, http.MethodPost, "/admin/rollover", bearer(t, "admin", domain.PositionParishLeader), nil)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d (%s)", rec.Code, rec.Body)
		}
		if len(rollover.Periods) != 1 || rollover.Periods[0] != domain.PeriodOf(time.Now()) {
			t.Errorf("periods = %v", rollover.Periods)
		}
	})

	t.Run("Given a period When triggering rollover Then that period runs", func(t *testing.T) {
		rollover := &MockRollover{}
		r := newTestRouter(&MockPaymentService{}, rollover, &MockApplier{})

		rec := do(r, http.MethodPost, "/admin/rollover", bearer(t, "admin", domain.PositionParishLeader),
			RolloverRequest{Month: "january", Year: 2025})

		var report payments.RolloverReport
		json.NewDecoder(rec.Body).Decode(&report)
		if rec.Code != http.StatusOK || report.Period != "2025-01" {
			t.Errorf("status = %d report = %+v", rec.Code, report)
		}
	})
}

func TestPixWebhook(t *testing.T) {
	body := map[string]any{
		"event":  "OPENPIX:CHARGE_COMPLETED",
		"charge": map[string]any{"correlationID": "corr-1", "status": "COMPLETED"},
	}

	t.Run("Given the app id When the provider posts Then the event is applied without inbox", func(t *testing.T) {
		applier := &MockApplier{}
		r := newTestRouter(&MockPaymentService{}, &MockRollover{}, applier)

		rec := do(r, http.MethodPost, "/webhooks/pix", "app-id", body)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d (%s)", rec.Code, rec.Body)
		}
		if len(applier.Events) != 1 || applier.Events[0].Charge.CorrelationID != "corr-1" {
			t.Errorf("events = %+v", applier.Events)
		}
	})

	t.Run("Given a wrong app id When the provider posts Then 401", func(t *testing.T) {
		applier := &MockApplier{}
		r := newTestRouter(&MockPaymentService{}, &MockRollover{}, applier)

		rec := do(r, http.MethodPost, "/webhooks/pix", "other", body)

		if rec.Code != http.StatusUnauthorized || len(applier.Events) != 0 {
			t.Errorf("status = %d events = %d", rec.Code, len(applier.Events))
		}
	})

	t.Run("Given reconciliation fails When the provider posts Then 500 so it retries", func(t *testing.T) {
		applier := &MockApplier{Err: errors.New("db down")}
		r := newTestRouter(&MockPaymentService{}, &MockRollover{}, applier)

		rec := do(r, http.MethodPost, "/webhooks/pix", "app-id", body)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}
