package model

import "time"

// Role is a coarse permission tier checked by the authorization gate.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// User represents one account as stored in the `users` table.
//
// Fields:
//
//	ID           – primary key, assigned by the store.
//	Username     – display name used in outgoing mail.
//	Email        – unique address, the external lookup key.
//	PasswordHash – bcrypt hash; never serialized to clients.
//	Role         – admin | moderator | user.
//	Confirmed    – set once by the email confirmation flow.
//	RefreshToken – most recently issued refresh token, nil when cleared.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	Confirmed    bool
	RefreshToken *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser carries the fields needed to create an account. PasswordHash must
// already be hashed.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	Role         Role
}

// EffectiveRole returns the role that must be persisted for an account with
// the given email. The bootstrap address is always admin; an empty or unknown
// role falls back to user.
func EffectiveRole(email string, requested Role, bootstrapEmail string) Role {
	if bootstrapEmail != "" && email == bootstrapEmail {
		return RoleAdmin
	}
	if !requested.Valid() {
		return RoleUser
	}
	return requested
}
