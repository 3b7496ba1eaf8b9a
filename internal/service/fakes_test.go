package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fastplat/auth/internal/domain"
	"github.com/fastplat/auth/internal/repository"
	outboxDomain "github.com/fastplat/auth/pkg/outbox/domain"
	"github.com/jackc/pgx/v5"
)

type fakeTx struct {
	pgx.Tx
	done bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.done = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	return nil
}

type fakeDB struct{}

func (fakeDB) Begin(context.Context) (pgx.Tx, error) { return &fakeTx{}, nil }

// memStore backs both fake repositories so they share one view of the data.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	order    []string
	sessions []*domain.SessionToken
	events   []*outboxDomain.OutboxEvent
	reads    int
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*domain.User{}}
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	if u.PasswordHash != nil {
		v := *u.PasswordHash
		c.PasswordHash = &v
	}
	if u.ActivationCode != nil {
		v := *u.ActivationCode
		c.ActivationCode = &v
	}
	if u.ForgetCode != nil {
		v := *u.ForgetCode
		c.ForgetCode = &v
	}
	return &c
}

func (m *memStore) userByEmail(email string) *domain.User {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (m *memStore) sessionsOf(userID string) []*domain.SessionToken {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.SessionToken
	for _, s := range m.sessions {
		if s.UserID == userID {
			c := *s
			out = append(out, &c)
		}
	}
	return out
}

func (m *memStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	types := make([]string, 0, len(m.events))
	for _, e := range m.events {
		types = append(types, e.EventType)
	}
	return types
}

type fakeUsers struct{ *memStore }

func (f fakeUsers) Create(_ context.Context, _ pgx.Tx, user *domain.User) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.userByEmail(user.Email) != nil {
		return nil, repository.ErrUserAlreadyExists
	}

	u := cloneUser(user)
	u.RecoveryState = domain.RecoveryNone
	u.Status = domain.StatusOffline
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	f.users[u.ID] = u
	f.order = append(f.order, u.ID)

	return cloneUser(u), nil
}

func (f fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++

	u := f.userByEmail(email)
	if u == nil {
		return nil, repository.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (f fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (f fakeUsers) List(_ context.Context, limit, offset int) ([]*domain.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := slices.Clone(f.order)
	slices.Reverse(ids)

	var out []*domain.User
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, cloneUser(f.users[ids[i]]))
	}
	return out, len(ids), nil
}

func (f fakeUsers) Activate(_ context.Context, _ pgx.Tx, code string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.ActivationCode != nil && *u.ActivationCode == code && !u.IsConfirmed {
			u.IsConfirmed = true
			u.ActivationCode = nil
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f fakeUsers) RotateActivationCode(_ context.Context, _ pgx.Tx, userID, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok || u.IsConfirmed {
		return repository.ErrAlreadyConfirmed
	}
	u.ActivationCode = &code
	return nil
}

func (f fakeUsers) SetForgetCode(_ context.Context, _ pgx.Tx, userID, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.ForgetCode = &code
	u.RecoveryState = domain.RecoveryCodeIssued
	return nil
}

func (f fakeUsers) ConsumeForgetCode(_ context.Context, userID, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok || u.ForgetCode == nil || *u.ForgetCode != code {
		return repository.ErrCodeMismatch
	}
	u.ForgetCode = nil
	u.RecoveryState = domain.RecoveryVerified
	return nil
}

func (f fakeUsers) UpdatePassword(_ context.Context, _ pgx.Tx, userID, passwordHash string, requireVerified bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if requireVerified && u.RecoveryState != domain.RecoveryVerified {
		return repository.ErrRecoveryNotVerified
	}
	u.PasswordHash = &passwordHash
	u.ForgetCode = nil
	u.RecoveryState = domain.RecoveryNone
	return nil
}

func (f fakeUsers) SetStatus(_ context.Context, _ pgx.Tx, userID string, status domain.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Status = status
	return nil
}

type fakeSessions struct{ *memStore }

func (f fakeSessions) Create(_ context.Context, _ pgx.Tx, session *domain.SessionToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	session.ID = int64(len(f.sessions) + 1)
	session.IsValid = true
	session.CreatedAt = time.Now()
	c := *session
	f.sessions = append(f.sessions, &c)
	return nil
}

func (f fakeSessions) FindByToken(_ context.Context, token string) (*domain.SessionToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.sessions {
		if s.Token == token {
			c := *s
			return &c, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (f fakeSessions) Invalidate(_ context.Context, _ pgx.Tx, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.sessions {
		if s.Token == token && s.IsValid {
			s.IsValid = false
			return nil
		}
	}
	return repository.ErrSessionNotFound
}

func (f fakeSessions) InvalidateAllForUser(_ context.Context, _ pgx.Tx, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var tokens []string
	for _, s := range f.sessions {
		if s.UserID == userID && s.IsValid {
			s.IsValid = false
			tokens = append(tokens, s.Token)
		}
	}
	return tokens, nil
}

func (f fakeSessions) ListByUser(_ context.Context, userID string) ([]*domain.SessionToken, error) {
	return f.sessionsOf(userID), nil
}

type fakeEvents struct{ *memStore }

func (f fakeEvents) SaveOutboxEvent(_ context.Context, _ pgx.Tx, event *outboxDomain.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	event.Id = int64(len(f.events) + 1)
	f.events = append(f.events, event)
	return nil
}

type fakeMailer struct {
	mu              sync.Mutex
	err             error
	activationCodes map[string]string
	recoveryCodes   map[string]string
	passwordChanged []string
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{activationCodes: map[string]string{}, recoveryCodes: map[string]string{}}
}

func (m *fakeMailer) SendActivationEmail(_ context.Context, to, _, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.activationCodes[to] = code
	return nil
}

func (m *fakeMailer) SendRecoveryCodeEmail(_ context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recoveryCodes[to] = code
	return nil
}

func (m *fakeMailer) SendPasswordChangedEmail(_ context.Context, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.passwordChanged = append(m.passwordChanged, to)
	return nil
}

var errSMTPDown = errors.New("smtp: connection refused")
