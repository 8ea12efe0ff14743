// Package rbac authenticates bearer tokens and gates routes by role.
package rbac

import (
	"context"
	"strings"
)

// Role is the single role carried by a principal.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleManagement Role = "management"
	RoleConsultant Role = "consultant"
	RoleClient     Role = "client"
)

// ParseRole normalises raw into a known role.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch r {
	case RoleAdmin, RoleAccountant, RoleManagement, RoleConsultant, RoleClient:
		return r, true
	}
	return "", false
}

// Principal is the authenticated caller.
type Principal struct {
	ID    int64
	Name  string
	Email string
	Role  Role
}

// Is reports whether the principal holds any of roles.
func (p Principal) Is(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
