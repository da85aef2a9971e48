package utils // package utils provides password hashing and the token codec

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scope declares the purpose of a token. Decode checks it strictly.
type Scope string

const (
	ScopeAccess  Scope = "access_token"
	ScopeRefresh Scope = "refresh_token"
	ScopeEmail   Scope = "email_token"
)

// ErrInvalidToken is returned when a token is malformed, carries a bad
// signature or has expired.
var ErrInvalidToken = errors.New("could not validate credentials")

// ErrInvalidScope is returned for a cryptographically valid token presented
// to the wrong operation. It also matches ErrInvalidToken under errors.Is.
var ErrInvalidScope = fmt.Errorf("%w: invalid scope for token", ErrInvalidToken)

// Lifetimes holds the validity window of each token kind.
type Lifetimes struct {
	Access  time.Duration
	Refresh time.Duration
	Email   time.Duration
}

// DefaultLifetimes are 20 minutes, 7 days and 1 day.
var DefaultLifetimes = Lifetimes{
	Access:  20 * time.Minute,
	Refresh: 7 * 24 * time.Hour,
	Email:   24 * time.Hour,
}

// Claims is the signed claim set shared by all three token kinds.
type Claims struct {
	Scope Scope `json:"scope"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed token together with its expiry.
type IssuedToken struct {
	Token string
	Exp   time.Time
}

// TokenCodec signs and verifies HS256 tokens. It is immutable after
// construction and safe for concurrent use.
type TokenCodec struct {
	secret    []byte
	lifetimes Lifetimes
	now       func() time.Time
}

// NewTokenCodec builds a codec. A nil clock means time.Now; zero lifetimes
// fall back to DefaultLifetimes.
func NewTokenCodec(secret []byte, lifetimes Lifetimes, now func() time.Time) *TokenCodec {
	if now == nil {
		now = time.Now
	}
	if lifetimes.Access <= 0 {
		lifetimes.Access = DefaultLifetimes.Access
	}
	if lifetimes.Refresh <= 0 {
		lifetimes.Refresh = DefaultLifetimes.Refresh
	}
	if lifetimes.Email <= 0 {
		lifetimes.Email = DefaultLifetimes.Email
	}
	return &TokenCodec{secret: secret, lifetimes: lifetimes, now: now}
}

// IssueAccessToken signs a short-lived token that authenticates API calls
// for subject.
func (c *TokenCodec) IssueAccessToken(subject string) (IssuedToken, error) {
	return c.issue(subject, ScopeAccess, c.lifetimes.Access)
}

// IssueRefreshToken signs a token that can be exchanged once for a new
// pair. Only its digest is persisted.
func (c *TokenCodec) IssueRefreshToken(subject string) (IssuedToken, error) {
	return c.issue(subject, ScopeRefresh, c.lifetimes.Refresh)
}

// IssueEmailToken signs the token embedded in a confirmation link.
func (c *TokenCodec) IssueEmailToken(subject string) (IssuedToken, error) {
	return c.issue(subject, ScopeEmail, c.lifetimes.Email)
}

// issue builds and signs the claims. NumericDate has whole-second
// precision, so iat is truncated and exp is rounded up: a token never
// expires before now+ttl and the returned Exp equals the signed claim.
func (c *TokenCodec) issue(subject string, scope Scope, ttl time.Duration) (IssuedToken, error) {
	now := c.now().UTC()
	exp := ceilSecond(now.Add(ttl))
	now = now.Truncate(time.Second)
	claims := Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: signed, Exp: exp}, nil
}

func ceilSecond(t time.Time) time.Time {
	if tr := t.Truncate(time.Second); !tr.Equal(t) {
		return tr.Add(time.Second)
	}
	return t
}

// Decode verifies raw and returns its subject. Any verification failure
// yields ErrInvalidToken; a verified token with a different scope yields
// ErrInvalidScope.
func (c *TokenCodec) Decode(raw string, expected Scope) (string, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !tok.Valid {
		return "", ErrInvalidToken
	}
	if claims.Scope != expected {
		return "", ErrInvalidScope
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// HashRefreshRaw returns the SHA‑256 hex digest of a refresh token. Only the
// digest is persisted.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// SameRefreshToken reports whether raw hashes to stored, in constant time.
func SameRefreshToken(stored *string, raw string) bool {
	if stored == nil || *stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(HashRefreshRaw(raw))) == 1
}
