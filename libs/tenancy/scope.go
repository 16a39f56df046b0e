package tenancy

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/cronos/libs/auth"
)

// Scope identifies who is calling and whose records they may touch. It is passed explicitly into every
// store call instead of living in process-wide state.
type Scope struct {
	TenantID string
	ActorID  string
}

var ErrMissingTenant = errors.New("tenant scope missing")

const (
	TenantHeader = "X-Tenant-Id"
	ActorHeader  = "X-Actor-Id"
)

type ctxKey int

const ctxKeyScope ctxKey = iota

func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, ctxKeyScope, s)
}

func FromContext(ctx context.Context) (Scope, error) {
	s, ok := ctx.Value(ctxKeyScope).(Scope)
	if !ok || s.TenantID == "" {
		return Scope{}, ErrMissingTenant
	}
	return s, nil
}

// Middleware resolves the scope of each request. With a JWT secret configured the scope comes only from a
// verified bearer token; otherwise it is taken from the gateway-set headers.
func Middleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var s Scope
			if jwtSecret != "" {
				authHeader := r.Header.Get("Authorization")
				if !strings.HasPrefix(authHeader, "Bearer ") {
					http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
					return
				}
				claims, err := auth.ParseAndVerifyHS256(strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")), jwtSecret)
				if err != nil {
					http.Error(w, "invalid token", http.StatusUnauthorized)
					return
				}
				s = Scope{TenantID: claims.TenantID, ActorID: claims.Sub}
			} else {
				s = Scope{
					TenantID: strings.TrimSpace(r.Header.Get(TenantHeader)),
					ActorID:  strings.TrimSpace(r.Header.Get(ActorHeader)),
				}
			}
			if s.TenantID == "" {
				http.Error(w, "missing tenant", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), s)))
		})
	}
}
