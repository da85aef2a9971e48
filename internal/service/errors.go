package service

import (
	"errors"
	"fmt"
)

// Rejections. Handlers map each of these to a response carrying only the
// reason, never internal detail.
var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	// ErrInvalidRefreshToken means the token decoded but is no longer the
	// current one for its identity.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUnauthenticated     = errors.New("could not validate credentials")
	ErrForbidden           = errors.New("operation forbidden")
	// ErrVerification is returned when a valid email token names no identity.
	ErrVerification  = errors.New("verification error")
	ErrAccountExists = errors.New("account already exists")
	ErrNotFound      = errors.New("user not found")
	ErrInvalidRole   = errors.New("invalid role")
)

// StoreError wraps a failure of the identity store or cache backing.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
