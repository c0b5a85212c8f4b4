package community

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"go.uber.org/zap"

	"dizimo/internal/domain"
)

type mockTransactor struct{}

func (mockTransactor) WithinTx(ctx context.Context, fn func(q domain.Querier) error) error {
	return fn(nil)
}

type MockCommunityRepository struct {
	mu          sync.Mutex
	communities map[string]domain.Community
}

func NewMockCommunityRepository() *MockCommunityRepository {
	return &MockCommunityRepository{communities: map[string]domain.Community{}}
}

func (m *MockCommunityRepository) CreateTx(_ context.Context, _ domain.Querier, c *domain.Community) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.communities {
		if existing.Name == c.Name || existing.Patron == c.Patron {
			return fmt.Errorf("community: %w", domain.ErrAlreadyExists)
		}
	}
	m.communities[c.ID] = *c
	return nil
}

func (m *MockCommunityRepository) find(match func(domain.Community) bool) (*domain.Community, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.communities {
		if match(c) {
			found := c
			return &found, nil
		}
	}
	return nil, domain.ErrCommunityNotFound
}

func (m *MockCommunityRepository) GetByIDTx(_ context.Context, _ domain.Querier, id string) (*domain.Community, error) {
	return m.find(func(c domain.Community) bool { return c.ID == id })
}

func (m *MockCommunityRepository) GetByNameTx(_ context.Context, _ domain.Querier, name string) (*domain.Community, error) {
	return m.find(func(c domain.Community) bool { return c.Name == name })
}

func (m *MockCommunityRepository) GetByPatronTx(_ context.Context, _ domain.Querier, patron string) (*domain.Community, error) {
	return m.find(func(c domain.Community) bool { return c.Patron == patron })
}

func (m *MockCommunityRepository) ListByLocationTx(_ context.Context, _ domain.Querier, location string) ([]domain.Community, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Community
	for _, c := range m.communities {
		if c.Location == location {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockCommunityRepository) ListTx(_ context.Context, _ domain.Querier, afterID string, limit int) ([]domain.Community, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Community
	for _, c := range m.communities {
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

func (m *MockCommunityRepository) UpdateTx(_ context.Context, _ domain.Querier, id string, update domain.CommunityUpdate) (*domain.Community, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.communities[id]
	if !ok {
		return nil, domain.ErrCommunityNotFound
	}
	update.Apply(&c)
	m.communities[id] = c
	return &c, nil
}

func (m *MockCommunityRepository) DeleteTx(_ context.Context, _ domain.Querier, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.communities[id]; !ok {
		return domain.ErrCommunityNotFound
	}
	delete(m.communities, id)
	return nil
}

func (m *MockCommunityRepository) IncreaseActualMonthPaymentValueTx(context.Context, domain.Querier, string, int64) error {
	return nil
}

func (m *MockCommunityRepository) RolloverTx(context.Context, domain.Querier, string, domain.Period) (bool, error) {
	return false, nil
}

type MockUserRepository struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: map[string]domain.User{}}
}

func (m *MockUserRepository) CreateTx(_ context.Context, _ domain.Querier, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.CPF == u.CPF {
			return fmt.Errorf("user: %w", domain.ErrAlreadyExists)
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *MockUserRepository) GetByIDTx(_ context.Context, _ domain.Querier, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (m *MockUserRepository) UpdateTx(_ context.Context, _ domain.Querier, id string, update domain.UserUpdate) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	update.Apply(&u)
	m.users[id] = u
	return &u, nil
}

func (m *MockUserRepository) ListActiveTx(_ context.Context, _ domain.Querier, afterID string, limit int) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.User
	for _, u := range m.users {
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

type MockLoginRepository struct {
	mu     sync.Mutex
	logins map[string]domain.Login
}

func NewMockLoginRepository() *MockLoginRepository {
	return &MockLoginRepository{logins: map[string]domain.Login{}}
}

func (m *MockLoginRepository) CreateTx(_ context.Context, _ domain.Querier, l *domain.Login) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.logins[l.ID]; ok {
		return fmt.Errorf("login: %w", domain.ErrAlreadyExists)
	}
	m.logins[l.ID] = *l
	return nil
}

func (m *MockLoginRepository) GetByIDTx(_ context.Context, _ domain.Querier, id string) (*domain.Login, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logins[id]
	if !ok {
		return nil, domain.ErrLoginNotFound
	}
	return &l, nil
}

func (m *MockLoginRepository) GetByCPFHashTx(_ context.Context, _ domain.Querier, cpfHash string) (*domain.Login, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.logins {
		if l.CPFHash == cpfHash {
			found := l
			return &found, nil
		}
	}
	return nil, domain.ErrLoginNotFound
}

func (m *MockLoginRepository) UpdateTx(_ context.Context, _ domain.Querier, id string, update domain.LoginUpdate) (*domain.Login, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logins[id]
	if !ok {
		return nil, domain.ErrLoginNotFound
	}
	update.Apply(&l)
	m.logins[id] = l
	return &l, nil
}

func (m *MockLoginRepository) DeleteTx(_ context.Context, _ domain.Querier, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.logins[id]; !ok {
		return domain.ErrLoginNotFound
	}
	delete(m.logins, id)
	return nil
}

type MockImageStore struct {
	Prefixes []string
}

func (m *MockImageStore) StoreImage(_ context.Context, prefix, encoded string) (string, error) {
	m.Prefixes = append(m.Prefixes, prefix)
	return "https://bucket.example/" + prefix + "/img", nil
}

type fixture struct {
	communities *MockCommunityRepository
	users       *MockUserRepository
	logins      *MockLoginRepository
	images      *MockImageStore
	service     *Service
}

func newFixture() *fixture {
	f := &fixture{
		communities: NewMockCommunityRepository(),
		users:       NewMockUserRepository(),
		logins:      NewMockLoginRepository(),
		images:      &MockImageStore{},
	}
	f.service = NewService(nil, mockTransactor{}, f.communities, f.users, f.logins, f.images, AuthConfig{
		JWTSecret:  "test-secret",
		JWTTTL:     0,
		CPFHashKey: "test-key",
		BcryptCost: bcrypt.MinCost,
	}, zap.NewNop())
	return f
}
