package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"dizimo/internal/domain"
	"dizimo/internal/repository/payments_repo"
)

var ErrMockStorage = errors.New("mock storage error")

// memStore keeps every table in memory. WithinTx snapshots the tables and
// restores them when fn fails, like a rolled back transaction.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	payments    map[string]domain.Payment
	users       map[string]domain.User
	communities map[string]domain.Community
	jobs        map[string]domain.ReconciliationJob
	outbox      []domain.OutboxMessage

	// FailOn makes the named repository method return the error.
	FailOn map[string]error
	// FailUserIDs makes payment creation fail for these users.
	FailUserIDs map[string]bool
	// FailCommunityIDs makes the rollover fail for these communities.
	FailCommunityIDs map[string]bool

	TxCount       int
	RollbackCount int
}

func newMemStore() *memStore {
	return &memStore{
		payments:         map[string]domain.Payment{},
		users:            map[string]domain.User{},
		communities:      map[string]domain.Community{},
		jobs:             map[string]domain.ReconciliationJob{},
		FailOn:           map[string]error{},
		FailUserIDs:      map[string]bool{},
		FailCommunityIDs: map[string]bool{},
	}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(q domain.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.TxCount++
	snapshot := s.cloneLocked()
	s.mu.Unlock()

	if err := fn(nil); err != nil {
		s.mu.Lock()
		s.restoreLocked(snapshot)
		s.RollbackCount++
		s.mu.Unlock()
		return err
	}
	return nil
}

type memSnapshot struct {
	payments    map[string]domain.Payment
	communities map[string]domain.Community
	jobs        map[string]domain.ReconciliationJob
	outbox      []domain.OutboxMessage
}

func (s *memStore) cloneLocked() memSnapshot {
	snap := memSnapshot{
		payments:    make(map[string]domain.Payment, len(s.payments)),
		communities: make(map[string]domain.Community, len(s.communities)),
		jobs:        make(map[string]domain.ReconciliationJob, len(s.jobs)),
		outbox:      append([]domain.OutboxMessage(nil), s.outbox...),
	}
	for k, v := range s.payments {
		snap.payments[k] = v
	}
	for k, v := range s.communities {
		snap.communities[k] = v
	}
	for k, v := range s.jobs {
		snap.jobs[k] = v
	}
	return snap
}

func (s *memStore) restoreLocked(snap memSnapshot) {
	s.payments = snap.payments
	s.communities = snap.communities
	s.jobs = snap.jobs
	s.outbox = snap.outbox
}

func (s *memStore) fail(method string) error {
	return s.FailOn[method]
}

func (s *memStore) addUser(id, communityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = domain.User{
		ID:          id,
		Name:        "User " + id,
		CPF:         "52998224725",
		Phone:       "5511999999999",
		Position:    domain.PositionMember,
		CommunityID: communityID,
		Active:      true,
	}
}

func (s *memStore) addCommunity(id string, actual, last int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.communities[id] = domain.Community{
		ID:                      id,
		Name:                    "Community " + id,
		Patron:                  "patron-" + id,
		ActualMonthPaymentValue: actual,
		LastMonthPaymentValue:   last,
	}
}

func (s *memStore) addPayment(p domain.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = p
}

func (s *memStore) payment(id string) domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[id]
}

func (s *memStore) community(id string) domain.Community {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.communities[id]
}

func (s *memStore) jobList() []domain.ReconciliationJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]domain.ReconciliationJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	return jobs
}

func (s *memStore) outboxTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.outbox))
	for _, m := range s.outbox {
		types = append(types, m.MessageType)
	}
	return types
}

func (s *memStore) paymentsForPeriod(period domain.Period) []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Payment
	for _, p := range s.payments {
		if p.Month == period.Month && p.Year == period.Year {
			out = append(out, p)
		}
	}
	return out
}

// memPayments implements payments_repo.PaymentRepository.
type memPayments struct{ s *memStore }

func (r memPayments) CreateTx(ctx context.Context, _ domain.Querier, p *domain.Payment) error {
	created, err := r.CreateIfAbsentTx(ctx, nil, p)
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("payment: %w", domain.ErrAlreadyExists)
	}
	return nil
}

func (r memPayments) CreateIfAbsentTx(_ context.Context, _ domain.Querier, p *domain.Payment) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("CreateIfAbsentTx"); err != nil {
		return false, err
	}
	if r.s.FailUserIDs[p.UserID] {
		return false, ErrMockStorage
	}
	for _, existing := range r.s.payments {
		if existing.UserID == p.UserID && existing.Month == p.Month && existing.Year == p.Year {
			return false, nil
		}
	}
	r.s.payments[p.ID] = *p
	return true, nil
}

func (r memPayments) find(match func(domain.Payment) bool) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if match(p) {
			found := p
			return &found, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r memPayments) GetByIDTx(_ context.Context, _ domain.Querier, id string) (*domain.Payment, error) {
	return r.find(func(p domain.Payment) bool { return p.ID == id })
}

func (r memPayments) GetByIDForUpdateTx(ctx context.Context, q domain.Querier, id string) (*domain.Payment, error) {
	return r.GetByIDTx(ctx, q, id)
}

func (r memPayments) GetByCorrelationIDTx(_ context.Context, _ domain.Querier, correlationID string) (*domain.Payment, error) {
	return r.find(func(p domain.Payment) bool {
		return p.CorrelationID != nil && *p.CorrelationID == correlationID
	})
}

func (r memPayments) GetByCorrelationIDForUpdateTx(ctx context.Context, q domain.Querier, correlationID string) (*domain.Payment, error) {
	return r.GetByCorrelationIDTx(ctx, q, correlationID)
}

func (r memPayments) GetByIdentifierTx(_ context.Context, _ domain.Querier, identifier string) (*domain.Payment, error) {
	return r.find(func(p domain.Payment) bool { return p.Identifier != nil && *p.Identifier == identifier })
}

func (r memPayments) GetByPeriodTx(_ context.Context, _ domain.Querier, userID string, period domain.Period) (*domain.Payment, error) {
	return r.find(func(p domain.Payment) bool {
		return p.UserID == userID && p.Month == period.Month && p.Year == period.Year
	})
}

func (r memPayments) GetByPeriodForUpdateTx(ctx context.Context, q domain.Querier, userID string, period domain.Period) (*domain.Payment, error) {
	return r.GetByPeriodTx(ctx, q, userID, period)
}

func (r memPayments) filter(match func(domain.Payment) bool) []domain.Payment {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.s.payments {
		if match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Number() < out[j].Month.Number() })
	return out
}

func (r memPayments) ListByUserYearTx(_ context.Context, _ domain.Querier, userID string, year int) ([]domain.Payment, error) {
	return r.filter(func(p domain.Payment) bool { return p.UserID == userID && p.Year == year }), nil
}

func (r memPayments) ListByUserMonthTx(_ context.Context, _ domain.Querier, userID string, month domain.Month) ([]domain.Payment, error) {
	return r.filter(func(p domain.Payment) bool { return p.UserID == userID && p.Month == month }), nil
}

func (r memPayments) ListByCommunityYearTx(_ context.Context, _ domain.Querier, communityID string, year int) ([]payments_repo.ReportRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var rows []payments_repo.ReportRow
	for _, p := range r.s.payments {
		u, ok := r.s.users[p.UserID]
		if ok && u.CommunityID == communityID && p.Year == year {
			rows = append(rows, payments_repo.ReportRow{UserName: u.Name, UserCPF: u.CPF, Payment: p})
		}
	}
	return rows, nil
}

func (r memPayments) UpdateTx(_ context.Context, _ domain.Querier, id string, update domain.PaymentUpdate) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("UpdateTx"); err != nil {
		return nil, err
	}
	p, ok := r.s.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	update.Apply(&p)
	r.s.payments[id] = p
	return &p, nil
}

func (r memPayments) MarkPaidTx(_ context.Context, _ domain.Querier, id string, value int64, paidAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok || p.Status == domain.PaymentStatusPaid {
		return false, nil
	}
	p.Status = domain.PaymentStatusPaid
	p.Value = &value
	p.Date = &paidAt
	r.s.payments[id] = p
	return true, nil
}

func (r memPayments) DeleteTx(_ context.Context, _ domain.Querier, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[id]; !ok {
		return domain.ErrPaymentNotFound
	}
	delete(r.s.payments, id)
	return nil
}

// memUsers implements users_repo.UserRepository.
type memUsers struct{ s *memStore }

func (r memUsers) CreateTx(_ context.Context, _ domain.Querier, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.users[u.ID] = *u
	return nil
}

func (r memUsers) GetByIDTx(_ context.Context, _ domain.Querier, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r memUsers) UpdateTx(ctx context.Context, q domain.Querier, id string, update domain.UserUpdate) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	update.Apply(&u)
	r.s.users[id] = u
	return &u, nil
}

func (r memUsers) ListActiveTx(_ context.Context, _ domain.Querier, afterID string, limit int) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("ListActiveTx"); err != nil {
		return nil, err
	}
	var out []domain.User
	for _, u := range r.s.users {
		if u.Active && u.ID > afterID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memCommunities implements communities_repo.CommunityRepository.
type memCommunities struct{ s *memStore }

func (r memCommunities) CreateTx(_ context.Context, _ domain.Querier, c *domain.Community) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.communities[c.ID] = *c
	return nil
}

func (r memCommunities) get(match func(domain.Community) bool) (*domain.Community, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.communities {
		if match(c) {
			found := c
			return &found, nil
		}
	}
	return nil, domain.ErrCommunityNotFound
}

func (r memCommunities) GetByIDTx(_ context.Context, _ domain.Querier, id string) (*domain.Community, error) {
	return r.get(func(c domain.Community) bool { return c.ID == id })
}

func (r memCommunities) GetByNameTx(_ context.Context, _ domain.Querier, name string) (*domain.Community, error) {
	return r.get(func(c domain.Community) bool { return c.Name == name })
}

func (r memCommunities) GetByPatronTx(_ context.Context, _ domain.Querier, patron string) (*domain.Community, error) {
	return r.get(func(c domain.Community) bool { return c.Patron == patron })
}

func (r memCommunities) ListByLocationTx(_ context.Context, _ domain.Querier, location string) ([]domain.Community, error) {
	return nil, nil
}

func (r memCommunities) ListTx(_ context.Context, _ domain.Querier, afterID string, limit int) ([]domain.Community, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Community
	for _, c := range r.s.communities {
		if c.ID > afterID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memCommunities) UpdateTx(_ context.Context, _ domain.Querier, id string, update domain.CommunityUpdate) (*domain.Community, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.communities[id]
	if !ok {
		return nil, domain.ErrCommunityNotFound
	}
	update.Apply(&c)
	r.s.communities[id] = c
	return &c, nil
}

func (r memCommunities) DeleteTx(_ context.Context, _ domain.Querier, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.communities, id)
	return nil
}

func (r memCommunities) IncreaseActualMonthPaymentValueTx(_ context.Context, _ domain.Querier, id string, amount int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("IncreaseActualMonthPaymentValueTx"); err != nil {
		return err
	}
	c, ok := r.s.communities[id]
	if !ok {
		return domain.ErrCommunityNotFound
	}
	c.ActualMonthPaymentValue += amount
	r.s.communities[id] = c
	return nil
}

func (r memCommunities) RolloverTx(_ context.Context, _ domain.Querier, id string, period domain.Period) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailCommunityIDs[id] {
		return false, ErrMockStorage
	}
	c, ok := r.s.communities[id]
	if !ok {
		return false, domain.ErrCommunityNotFound
	}
	key := period.String()
	if c.LastRolloverPeriod != nil && *c.LastRolloverPeriod == key {
		return false, nil
	}
	c.LastMonthPaymentValue = c.ActualMonthPaymentValue
	c.ActualMonthPaymentValue = 0
	c.LastRolloverPeriod = &key
	r.s.communities[id] = c
	return true, nil
}

// memJobs implements reconciliation_repo.JobRepository.
type memJobs struct{ s *memStore }

func (r memJobs) EnqueueTx(_ context.Context, _ domain.Querier, job *domain.ReconciliationJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("EnqueueTx"); err != nil {
		return err
	}
	for _, j := range r.s.jobs {
		if j.CorrelationID == job.CorrelationID {
			return nil
		}
	}
	r.s.jobs[job.ID] = *job
	return nil
}

func (r memJobs) ClaimDueTx(_ context.Context, _ domain.Querier, now time.Time, lease time.Duration, limit int) ([]domain.ReconciliationJob, error) {
	return nil, nil
}

func (r memJobs) MarkDoneTx(context.Context, domain.Querier, string) error { return nil }

func (r memJobs) RescheduleTx(context.Context, domain.Querier, string, time.Time, string) error {
	return nil
}

func (r memJobs) MarkFailedTx(context.Context, domain.Querier, string, string) error { return nil }

// memOutbox implements outbox_repo.OutboxRepository.
type memOutbox struct{ s *memStore }

func (r memOutbox) CreateMessageTx(_ context.Context, _ domain.Querier, msg *domain.OutboxMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("CreateMessageTx"); err != nil {
		return err
	}
	r.s.outbox = append(r.s.outbox, *msg)
	return nil
}

func (r memOutbox) GetPendingMessagesTx(context.Context, domain.Querier, int) ([]domain.OutboxMessage, error) {
	return nil, nil
}

func (r memOutbox) MarkMessagesAsSentTx(context.Context, domain.Querier, []string) error { return nil }

func (r memOutbox) MarkMessagesAsFailedTx(context.Context, domain.Querier, []string) error {
	return nil
}

func (r memOutbox) IncrementAttemptsTx(context.Context, domain.Querier, []string) error { return nil }

// MockGateway is an in-memory charge provider.
type MockGateway struct {
	mu      sync.Mutex
	charges map[string]*domain.ChargeInfo

	CreateCalls  int
	GetCalls     int
	DeleteCalls  int
	Deleted      []string
	LastCustomer domain.Customer

	CreateErr error
	GetErr    error
	DeleteErr error
}

func NewMockGateway() *MockGateway {
	return &MockGateway{charges: map[string]*domain.ChargeInfo{}}
}

func (g *MockGateway) CreateCharge(_ context.Context, value int64, customer domain.Customer, correlationID string) (*domain.ChargeInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CreateCalls++
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	g.LastCustomer = customer
	charge := &domain.ChargeInfo{
		CorrelationID: correlationID,
		Value:         value,
		Status:        domain.ChargeStatusActive,
		ExpiresDate:   "2024-03-01T10:30:00Z",
		ExpiresIn:     1800,
		CreatedAt:     "2024-03-01T10:00:00Z",
		BRCode:        "br-" + correlationID,
		QRCodeImage:   "qr-" + correlationID,
		Customer:      &customer,
	}
	g.charges[correlationID] = charge
	copied := *charge
	return &copied, nil
}

func (g *MockGateway) GetCharge(_ context.Context, correlationID string) (*domain.ChargeInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.GetCalls++
	if g.GetErr != nil {
		return nil, g.GetErr
	}
	charge, ok := g.charges[correlationID]
	if !ok {
		return nil, &domain.GatewayError{Op: "get charge", StatusCode: 404, Err: domain.ErrChargeNotFound}
	}
	copied := *charge
	return &copied, nil
}

func (g *MockGateway) DeleteCharge(_ context.Context, correlationID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.DeleteCalls++
	if g.DeleteErr != nil {
		return g.DeleteErr
	}
	g.Deleted = append(g.Deleted, correlationID)
	delete(g.charges, correlationID)
	return nil
}

func (g *MockGateway) setStatus(correlationID string, status domain.ChargeStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if charge, ok := g.charges[correlationID]; ok {
		charge.Status = status
	}
}

func (g *MockGateway) put(charge domain.ChargeInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges[charge.CorrelationID] = &charge
}

func (g *MockGateway) chargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}

type fixture struct {
	store   *memStore
	gateway *MockGateway
	service *Service
}

func newFixture() *fixture {
	store := newMemStore()
	gateway := NewMockGateway()
	service := NewService(
		nil,
		store,
		memPayments{store},
		memUsers{store},
		memCommunities{store},
		memJobs{store},
		memOutbox{store},
		gateway,
		Config{ReconcileDelay: 30 * time.Minute, PaymentEventsTopic: "dizimo_payment_events"},
		zap.NewNop(),
	)
	return &fixture{store: store, gateway: gateway, service: service}
}

func newRollover(store *memStore, pageSize int) *Rollover {
	return NewRollover(nil, store, memPayments{store}, memUsers{store}, memCommunities{store}, pageSize, zap.NewNop())
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }
