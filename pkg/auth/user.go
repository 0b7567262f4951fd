package auth

import (
	"context"

	"github.com/crudcore/crudcore/pkg/restriction"
)

// ClaimsUser adapts validated claims to the user contract the restriction
// engine evaluates rules against.
type ClaimsUser struct {
	claims *Claims
}

// NewClaimsUser wraps claims. A nil claims value yields a nil user, which the
// engine treats as anonymous.
func NewClaimsUser(claims *Claims) *ClaimsUser {
	if claims == nil {
		return nil
	}
	return &ClaimsUser{claims: claims}
}

func (u *ClaimsUser) UserID() string {
	if u == nil {
		return ""
	}
	return u.claims.Subject
}

func (u *ClaimsUser) UserRoles() []string {
	if u == nil {
		return nil
	}
	return u.claims.Roles
}

// UserFromContext returns the restriction user for the claims stored in ctx,
// or nil when the context carries no validated claims.
func UserFromContext(ctx context.Context) restriction.User {
	claims := GetClaims(ctx)
	if claims == nil {
		return nil
	}
	return NewClaimsUser(claims)
}
