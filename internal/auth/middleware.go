package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

type Verifier interface {
	Verify(token string) (Principal, error)
}

// Authenticate requires a valid "Authorization: Bearer <token>" header and
// stores the resulting Principal in the request context.
func Authenticate(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				deny(w, http.StatusUnauthorized, "access denied: no token provided")
				return
			}
			p, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				deny(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// Authorizer gates routes on capabilities of the authenticated principal.
type Authorizer struct {
	Logger *slog.Logger
}

// Require rejects principals whose role lacks capability c. It must run
// after Authenticate.
func (a Authorizer) Require(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "access denied: no token provided")
				return
			}
			if !p.Can(c) {
				if a.Logger != nil {
					a.Logger.Warn("capability denied", "user_id", p.UserID, "role", p.RoleName(), "capability", string(c), "path", r.URL.Path)
				}
				deny(w, http.StatusForbidden, "access denied: missing capability "+string(c))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
