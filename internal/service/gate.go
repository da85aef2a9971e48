package service

import (
	"context"

	"github.com/iliyamo/contacts-auth/internal/model"
)

// IdentityResolver turns an access token into an identity.
type IdentityResolver interface {
	ResolveCurrentIdentity(ctx context.Context, accessToken string) (*model.User, error)
}

// RoleSet is an allow-set of roles.
type RoleSet map[model.Role]struct{}

// Roles builds an allow-set from a list of roles.
func Roles(roles ...model.Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

// Has reports whether r is allowed.
func (s RoleSet) Has(r model.Role) bool {
	_, ok := s[r]
	return ok
}

// Allow-sets used by the routes.
var (
	ReadRoles     = []model.Role{model.RoleAdmin, model.RoleModerator, model.RoleUser}
	ModerateRoles = []model.Role{model.RoleAdmin, model.RoleModerator}
	AdminRoles    = []model.Role{model.RoleAdmin}
)

// Check resolves the identity behind accessToken and admits it only if its
// role is in allow. Resolution failures are returned unchanged.
func Check(ctx context.Context, resolver IdentityResolver, allow RoleSet, accessToken string) (*model.User, error) {
	u, err := resolver.ResolveCurrentIdentity(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if !allow.Has(u.Role) {
		return nil, ErrForbidden
	}
	return u, nil
}

// Gate binds an allow-set to a resolver. It holds no other state and can be
// shared across requests.
type Gate struct {
	allow    RoleSet
	resolver IdentityResolver
}

// NewGate returns a gate admitting the given roles, resolving tokens
// through resolver.
func NewGate(resolver IdentityResolver, roles ...model.Role) Gate {
	return Gate{allow: Roles(roles...), resolver: resolver}
}

// Check runs the package-level Check with the gate's allow-set.
func (g Gate) Check(ctx context.Context, accessToken string) (*model.User, error) {
	return Check(ctx, g.resolver, g.allow, accessToken)
}
