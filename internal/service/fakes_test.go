package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/contacts-auth/internal/cache"
	"github.com/iliyamo/contacts-auth/internal/model"
	"github.com/iliyamo/contacts-auth/internal/repository"
	"github.com/iliyamo/contacts-auth/internal/utils"
)

const bootstrapEmail = "admin@ex.ua"

type memStore struct {
	mu           sync.Mutex
	users        map[int64]*model.User
	nextID       int64
	emailLookups int
	err          error
}

func newMemStore() *memStore { return &memStore{users: map[int64]*model.User{}} }

func clone(u *model.User) *model.User {
	cp := *u
	if u.RefreshToken != nil {
		s := *u.RefreshToken
		cp.RefreshToken = &s
	}
	return &cp
}

func (s *memStore) FindByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emailLookups++
	if s.err != nil {
		return nil, s.err
	}
	for _, u := range s.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (s *memStore) FindByID(_ context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.users[id]; ok {
		return clone(u), nil
	}
	return nil, nil
}

func (s *memStore) Create(_ context.Context, nu model.NewUser) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == nu.Email {
			return nil, repository.ErrEmailExists
		}
	}
	s.nextID++
	u := &model.User{
		ID:           s.nextID,
		Username:     nu.Username,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		Role:         nu.Role,
	}
	s.users[u.ID] = u
	return clone(u), nil
}

func (s *memStore) update(id int64, fn func(*model.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if u, ok := s.users[id]; ok {
		fn(u)
	}
	return nil
}

func (s *memStore) UpdateRefreshToken(_ context.Context, id int64, token *string) error {
	return s.update(id, func(u *model.User) { u.RefreshToken = token })
}

func (s *memStore) UpdateConfirmed(_ context.Context, id int64) error {
	return s.update(id, func(u *model.User) { u.Confirmed = true })
}

func (s *memStore) UpdateRole(_ context.Context, id int64, role model.Role) error {
	return s.update(id, func(u *model.User) { u.Role = role })
}

func (s *memStore) UpdateEmail(_ context.Context, id int64, email string, role model.Role) error {
	s.mu.Lock()
	for uid, u := range s.users {
		if uid != id && u.Email == email {
			s.mu.Unlock()
			return repository.ErrEmailExists
		}
	}
	s.mu.Unlock()
	return s.update(id, func(u *model.User) { u.Email, u.Role = email, role })
}

func (s *memStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

func (s *memStore) get(id int64) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.users[id])
}

func (s *memStore) lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emailLookups
}

type sentMail struct {
	Email, Name, Link string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *fakeNotifier) SendConfirmation(_ context.Context, email, name, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{Email: email, Name: name, Link: link})
	return nil
}

func (n *fakeNotifier) all() []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMail(nil), n.sent...)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	auth     *Authenticator
	store    *memStore
	notifier *fakeNotifier
	codec    *utils.TokenCodec
	clock    *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &testClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := newMemStore()
	notifier := &fakeNotifier{}
	codec := utils.NewTokenCodec([]byte("test-secret"), utils.DefaultLifetimes, clk.Now)
	ic := cache.NewIdentityCache(cache.NewMemoryBackend(clk.Now), store, cache.DefaultTTL)
	auth := NewAuthenticator(store, ic, codec, notifier, Options{
		BcryptCost:    bcrypt.MinCost,
		AdminEmail:    bootstrapEmail,
		PublicBaseURL: "http://localhost:8000/",
	})
	return &fixture{auth: auth, store: store, notifier: notifier, codec: codec, clock: clk}
}

// seed inserts an account directly into the store.
func (f *fixture) seed(t *testing.T, email, password string, role model.Role, confirmed bool) *model.User {
	t.Helper()
	hash, err := utils.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	u, err := f.store.Create(context.Background(), model.NewUser{Username: "name", Email: email, PasswordHash: hash, Role: role})
	require.NoError(t, err)
	if confirmed {
		require.NoError(t, f.store.UpdateConfirmed(context.Background(), u.ID))
		u.Confirmed = true
	}
	return u
}

var errStoreDown = errors.New("store down")
