package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/iliyamo/contacts-auth/internal/logging"
	"github.com/iliyamo/contacts-auth/internal/model"
	"github.com/iliyamo/contacts-auth/internal/repository"
	"github.com/iliyamo/contacts-auth/internal/utils"
)

// IdentityStore is the persistence the Authenticator needs. Lookups return
// nil, nil when nothing matches.
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
	Create(ctx context.Context, u model.NewUser) (*model.User, error)
	UpdateRefreshToken(ctx context.Context, id int64, token *string) error
	UpdateConfirmed(ctx context.Context, id int64) error
	UpdateRole(ctx context.Context, id int64, role model.Role) error
	// UpdateEmail stores the new address together with the role that
	// applies to it.
	UpdateEmail(ctx context.Context, id int64, email string, role model.Role) error
	Delete(ctx context.Context, id int64) error
}

// IdentityCache is the read-through cache consulted on every access-token
// resolution.
type IdentityCache interface {
	Get(ctx context.Context, email string) (*model.User, error)
	Invalidate(ctx context.Context, email string)
}

// Notifier delivers confirmation links. Failures are logged, never surfaced
// to the caller of the Authenticator.
type Notifier interface {
	SendConfirmation(ctx context.Context, email, displayName, link string) error
}

// Options is the immutable configuration of an Authenticator.
type Options struct {
	BcryptCost int
	// AdminEmail is the bootstrap address always stored with the admin role.
	AdminEmail string
	// PublicBaseURL prefixes confirmation links.
	PublicBaseURL string
	NotifyTimeout time.Duration
}

// TokenPair is the result of a login or a refresh.
type TokenPair struct {
	Access  utils.IssuedToken
	Refresh utils.IssuedToken
}

// ConfirmOutcome distinguishes a first confirmation from a repeated one.
type ConfirmOutcome int

const (
	EmailConfirmed ConfirmOutcome = iota + 1
	EmailAlreadyConfirmed
)

const confirmPath = "api/auth/confirmed_email"

// Authenticator orchestrates login, refresh rotation, email confirmation and
// access-token resolution. It is safe for concurrent use.
type Authenticator struct {
	store    IdentityStore
	cache    IdentityCache
	codec    *utils.TokenCodec
	notifier Notifier
	opts     Options

	pending sync.WaitGroup
}

// NewAuthenticator wires the collaborators. A zero NotifyTimeout means ten
// seconds per notification.
func NewAuthenticator(store IdentityStore, cache IdentityCache, codec *utils.TokenCodec, notifier Notifier, opts Options) *Authenticator {
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	return &Authenticator{store: store, cache: cache, codec: codec, notifier: notifier, opts: opts}
}

// Login checks credentials and returns a fresh token pair. Unknown email and
// wrong password are both ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, email, password string) (TokenPair, error) {
	u, err := a.store.FindByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, storeErr("find by email", err)
	}
	if u == nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	if !u.Confirmed {
		return TokenPair{}, ErrEmailNotConfirmed
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return TokenPair{}, ErrInvalidCredentials
	}
	pair, err := a.rotate(ctx, u)
	if err != nil {
		return TokenPair{}, err
	}
	logging.FromContext(ctx).Info("login succeeded", "user_id", u.ID)
	return pair, nil
}

// Refresh exchanges a current refresh token for a new pair. A token that
// decodes but is not the stored one clears the stored token and fails with
// ErrInvalidRefreshToken. Scope and signature failures are returned as
// utils.ErrInvalidScope and utils.ErrInvalidToken.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	email, err := a.codec.Decode(refreshToken, utils.ScopeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	u, err := a.store.FindByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, storeErr("find by email", err)
	}
	if u == nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	if !utils.SameRefreshToken(u.RefreshToken, refreshToken) {
		if err := a.store.UpdateRefreshToken(ctx, u.ID, nil); err != nil {
			return TokenPair{}, storeErr("clear refresh token", err)
		}
		a.cache.Invalidate(ctx, u.Email)
		logging.FromContext(ctx).Warn("stale refresh token presented", "user_id", u.ID)
		return TokenPair{}, ErrInvalidRefreshToken
	}
	return a.rotate(ctx, u)
}

func (a *Authenticator) rotate(ctx context.Context, u *model.User) (TokenPair, error) {
	access, err := a.codec.IssueAccessToken(u.Email)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := a.codec.IssueRefreshToken(u.Email)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	digest := utils.HashRefreshRaw(refresh.Token)
	if err := a.store.UpdateRefreshToken(ctx, u.ID, &digest); err != nil {
		return TokenPair{}, storeErr("update refresh token", err)
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// ResolveCurrentIdentity returns the identity an access token was issued
// for, going through the identity cache.
func (a *Authenticator) ResolveCurrentIdentity(ctx context.Context, accessToken string) (*model.User, error) {
	email, err := a.codec.Decode(accessToken, utils.ScopeAccess)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	u, err := a.cache.Get(ctx, email)
	if err != nil {
		return nil, storeErr("identity lookup", err)
	}
	if u == nil {
		return nil, ErrUnauthenticated
	}
	return u, nil
}

// RequestEmailConfirmation sends a confirmation link to an unconfirmed
// account. Unknown and already confirmed addresses are silently ignored so
// callers cannot probe which emails are registered.
func (a *Authenticator) RequestEmailConfirmation(ctx context.Context, email string) error {
	u, err := a.store.FindByEmail(ctx, email)
	if err != nil {
		return storeErr("find by email", err)
	}
	if u == nil || u.Confirmed {
		return nil
	}
	return a.sendConfirmation(ctx, u)
}

// ConfirmEmail consumes an email token. Repeating it reports
// EmailAlreadyConfirmed; confirmation never reverts.
func (a *Authenticator) ConfirmEmail(ctx context.Context, emailToken string) (ConfirmOutcome, error) {
	email, err := a.codec.Decode(emailToken, utils.ScopeEmail)
	if err != nil {
		return 0, err
	}
	u, err := a.store.FindByEmail(ctx, email)
	if err != nil {
		return 0, storeErr("find by email", err)
	}
	if u == nil {
		return 0, ErrVerification
	}
	if u.Confirmed {
		return EmailAlreadyConfirmed, nil
	}
	if err := a.store.UpdateConfirmed(ctx, u.ID); err != nil {
		return 0, storeErr("update confirmed", err)
	}
	a.cache.Invalidate(ctx, u.Email)
	logging.FromContext(ctx).Info("email confirmed", "user_id", u.ID)
	return EmailConfirmed, nil
}

// Register hashes the password, creates the account and sends the first
// confirmation link.
func (a *Authenticator) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	existing, err := a.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, storeErr("find by email", err)
	}
	if existing != nil {
		return nil, ErrAccountExists
	}
	hash, err := utils.HashPassword(password, a.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := a.store.Create(ctx, model.NewUser{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         model.EffectiveRole(email, model.RoleUser, a.opts.AdminEmail),
	})
	if errors.Is(err, repository.ErrEmailExists) {
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, storeErr("create user", err)
	}
	if err := a.sendConfirmation(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser looks up an identity by id.
func (a *Authenticator) GetUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := a.store.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr("find by id", err)
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// UpdateRole changes an identity's role. The bootstrap address stays admin
// whatever is requested. Cached snapshots are left to expire.
func (a *Authenticator) UpdateRole(ctx context.Context, id int64, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	u, err := a.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	effective := model.EffectiveRole(u.Email, role, a.opts.AdminEmail)
	if err := a.store.UpdateRole(ctx, id, effective); err != nil {
		return nil, storeErr("update role", err)
	}
	u.Role = effective
	return u, nil
}

// UpdateEmail moves an identity to a new address. The role is re-derived
// for the new address, so moving onto the bootstrap address grants admin.
// The old address's cache entry is dropped; tokens issued for it stop
// resolving.
func (a *Authenticator) UpdateEmail(ctx context.Context, id int64, email string) (*model.User, error) {
	u, err := a.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if email == u.Email {
		return u, nil
	}
	taken, err := a.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, storeErr("find by email", err)
	}
	if taken != nil {
		return nil, ErrAccountExists
	}
	role := model.EffectiveRole(email, u.Role, a.opts.AdminEmail)
	err = a.store.UpdateEmail(ctx, id, email, role)
	if errors.Is(err, repository.ErrEmailExists) {
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, storeErr("update email", err)
	}
	a.cache.Invalidate(ctx, u.Email)
	logging.FromContext(ctx).Info("email updated", "user_id", id)

	u.Email, u.Role = email, role
	return u, nil
}

// DeleteUser removes an identity and drops its cache entry.
func (a *Authenticator) DeleteUser(ctx context.Context, id int64) error {
	u, err := a.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := a.store.Delete(ctx, id); err != nil {
		return storeErr("delete user", err)
	}
	a.cache.Invalidate(ctx, u.Email)
	return nil
}

func (a *Authenticator) sendConfirmation(ctx context.Context, u *model.User) error {
	tok, err := a.codec.IssueEmailToken(u.Email)
	if err != nil {
		return fmt.Errorf("issue email token: %w", err)
	}
	link, err := url.JoinPath(a.opts.PublicBaseURL, confirmPath, tok.Token)
	if err != nil {
		return fmt.Errorf("build confirmation link: %w", err)
	}
	a.dispatch(ctx, u.Email, u.Username, link)
	return nil
}

// dispatch hands the link to the notifier without blocking the caller.
func (a *Authenticator) dispatch(ctx context.Context, email, name, link string) {
	l := logging.FromContext(ctx)
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.NotifyTimeout)
		defer cancel()
		if err := a.notifier.SendConfirmation(nctx, email, name, link); err != nil {
			l.Error("confirmation mail dispatch failed", "email", email, "error", err)
		}
	}()
}

// Wait blocks until all in-flight notifications have returned.
func (a *Authenticator) Wait() { a.pending.Wait() }
