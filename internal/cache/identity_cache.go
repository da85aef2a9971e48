// Package cache implements the read-through identity cache that sits in front
// of the identity store on every authenticated request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/iliyamo/contacts-auth/internal/logging"
	"github.com/iliyamo/contacts-auth/internal/model"
)

// DefaultTTL is how long a snapshot stays valid after it is written.
const DefaultTTL = 900 * time.Second

// ErrMiss is returned by a Backend when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Backend stores opaque snapshots with a TTL. Values are replaced, never
// mutated in place.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Source is the source of truth consulted on a miss.
type Source interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// IdentityCache maps email to an identity snapshot.
type IdentityCache struct {
	backend Backend
	source  Source
	ttl     time.Duration
}

// NewIdentityCache builds a cache over backend that falls back to source on
// a miss. A non-positive ttl means DefaultTTL.
func NewIdentityCache(backend Backend, source Source, ttl time.Duration) *IdentityCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &IdentityCache{backend: backend, source: source, ttl: ttl}
}

func key(email string) string { return "user:" + email }

// snapshot is the cached form of a user. It carries neither the refresh
// token nor the password hash: session state and credentials are always read
// from the store.
type snapshot struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	Confirmed bool       `json:"confirmed"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func toSnapshot(u *model.User) snapshot {
	return snapshot{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Confirmed: u.Confirmed,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (s snapshot) user() *model.User {
	return &model.User{
		ID:        s.ID,
		Username:  s.Username,
		Email:     s.Email,
		Role:      s.Role,
		Confirmed: s.Confirmed,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// Get returns the identity for email, consulting the source on a miss and
// populating the cache on a source hit. An unknown email yields nil, nil and
// writes nothing. Backend failures degrade to a miss; source failures are
// returned.
func (c *IdentityCache) Get(ctx context.Context, email string) (*model.User, error) {
	l := logging.FromContext(ctx)
	k := key(email)

	bs, err := c.backend.Get(ctx, k)
	switch {
	case err == nil:
		var s snapshot
		if jerr := json.Unmarshal(bs, &s); jerr == nil {
			return s.user(), nil
		}
		l.Warn("identity cache: dropping undecodable entry", "key", k)
	case !errors.Is(err, ErrMiss):
		l.Warn("identity cache: backend read failed", "key", k, "error", err)
	}

	u, err := c.source.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, nil
	}

	if payload, jerr := json.Marshal(toSnapshot(u)); jerr == nil {
		if werr := c.backend.Set(ctx, k, payload, c.ttl); werr != nil {
			l.Warn("identity cache: backend write failed", "key", k, "error", werr)
		}
	}
	return u, nil
}

// Invalidate drops any cached entry for email.
func (c *IdentityCache) Invalidate(ctx context.Context, email string) {
	if err := c.backend.Del(ctx, key(email)); err != nil {
		logging.FromContext(ctx).Warn("identity cache: invalidate failed", "email", email, "error", err)
	}
}
