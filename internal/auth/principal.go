// Package auth carries the principal handed over by the identity provider.
// Tokens and role administration live outside this service.
package auth

import (
	"context"
	"fmt"
	"strings"
)

type Role string

const (
	RoleCashier Role = "CASHIER"
	RoleManager Role = "MANAGER"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole accepts the role names issued by the identity provider, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleCashier, RoleManager, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// CanManage is the capability behind inventory adjustment, order listing and voiding
// other users' orders.
func (r Role) CanManage() bool {
	return r == RoleManager || r == RoleAdmin
}

type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
