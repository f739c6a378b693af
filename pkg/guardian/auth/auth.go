package auth

import (
	"context"
	"net/http"
	"strings"
)

// Role is the dashboard caller's role. Authentication itself is an external
// collaborator; the coordinator only checks role preconditions.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleAgent Role = "AGENT"
)

// Principal is the authenticated dashboard caller.
type Principal struct {
	// Name is the operator identity recorded on takeovers and minted into
	// media-room tokens.
	Name string
	Role Role
}

// CanTakeover reports whether the principal may drive the takeover and token
// endpoints.
func (p *Principal) CanTakeover() bool {
	if p == nil {
		return false
	}
	return p.Role == RoleAdmin || p.Role == RoleAgent
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// ParseBearer extracts a bearer token from the Authorization header.
func ParseBearer(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}
