package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/edvin/proxyctl/internal/api/response"
	"github.com/edvin/proxyctl/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

// SessionCookie carries the session token for browser clients.
const SessionCookie = "proxyctl_session"

// SessionValidator resolves a session token to its identity.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*model.Identity, error)
}

// Auth rejects requests without a valid session. The token is read from an
// "Authorization: Bearer" header or the session cookie.
func Auth(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := Token(r)
			if token == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing session token")
				return
			}

			identity, err := sessions.Validate(r.Context(), token)
			if err != nil {
				response.WriteServiceError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// Token extracts the session token of r, or "".
func Token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func WithIdentity(ctx context.Context, id *model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the authenticated identity of the request, if any.
func GetIdentity(ctx context.Context) *model.Identity {
	id, _ := ctx.Value(identityKey).(*model.Identity)
	return id
}

// RequireRole rejects identities whose role is not in roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := GetIdentity(r.Context())
			if id == nil {
				response.WriteError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.WriteError(w, http.StatusForbidden, "insufficient role")
		})
	}
}
