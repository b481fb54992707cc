package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/kalambet/pathway/internal/identity"
)

type claimsKey struct{}

// TokenVerifier checks session tokens. Implemented by identity.Tokens.
type TokenVerifier interface {
	Verify(token string) (*identity.Claims, error)
}

// SessionAuth rejects requests without a valid session token for the user
// currently signed in. The token is read from the Authorization header, or
// from the token query parameter for WebSocket upgrades.
func SessionAuth(tokens TokenVerifier, provider identity.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			claims, err := tokens.Verify(raw)
			if err != nil {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			current := provider.CurrentUser()
			if current == nil || current.ID != claims.Subject {
				httpError(w, http.StatusUnauthorized, "authentication_error", "session is no longer active")
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return r.URL.Query().Get("token")
}

func claimsFrom(ctx context.Context) *identity.Claims {
	c, _ := ctx.Value(claimsKey{}).(*identity.Claims)
	return c
}
