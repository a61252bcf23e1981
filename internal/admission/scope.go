// Package admission implements the per-request pipeline every partner call
// traverses: API-key authentication, IP whitelisting, rate limiting and audit
// logging, plus the resource guards in front of them.
package admission

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/betlink/hub/internal/domain"
)

type contextKeyType string

const scopeKey contextKeyType = "admission_scope"

// Scope is what authentication attaches to the request context.
type Scope struct {
	PartnerID   uuid.UUID
	APIKeyID    uuid.UUID
	Permissions domain.PermissionSet
}

// scopeHolder lets middleware outside the authenticator (the audit wrapper)
// observe a scope attached further down the chain.
type scopeHolder struct {
	scope *Scope
}

// WithScope attaches the scope to a context. When an enclosing middleware
// already installed a holder the scope is set in place.
func WithScope(ctx context.Context, s *Scope) context.Context {
	if h, ok := ctx.Value(scopeKey).(*scopeHolder); ok {
		h.scope = s
		return ctx
	}
	return context.WithValue(ctx, scopeKey, &scopeHolder{scope: s})
}

// withScopeHolder installs an empty holder for WithScope to fill later.
// A holder already present is kept so an attached scope survives.
func withScopeHolder(ctx context.Context) context.Context {
	if _, ok := ctx.Value(scopeKey).(*scopeHolder); ok {
		return ctx
	}
	return context.WithValue(ctx, scopeKey, &scopeHolder{})
}

// ScopeFrom extracts the scope; nil when the request never passed
// authentication.
func ScopeFrom(ctx context.Context) *Scope {
	if h, ok := ctx.Value(scopeKey).(*scopeHolder); ok {
		return h.scope
	}
	return nil
}

// Require rejects requests whose key does not hold the given
// "resource:action" permission.
func Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := ScopeFrom(r.Context())
			if scope == nil {
				writeError(w, domain.ErrUnauthorized("missing credentials"))
				return
			}
			if !scope.Permissions.Allows(permission) {
				writeError(w, domain.ErrForbidden("permission "+permission+" required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
