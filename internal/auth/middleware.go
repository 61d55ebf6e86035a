package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/revival365/medassist/pkg/utils"
)

// ErrInvalidToken is returned by verifiers for unknown or inactive tokens.
var ErrInvalidToken = errors.New("invalid token or user not found")

// TokenVerifier resolves a bearer token to an authenticated identity. The
// concrete lookup (database token table) lives behind this seam so handlers
// can be tested with a static verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type contextKey struct{}

var identityKey contextKey

// IdentityFromContext returns the authenticated caller placed by Middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// WithIdentity injects an identity into the context. Used by tests and by the
// websocket voice path, which authenticates before upgrading.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Middleware enforces bearer-token authentication on every wrapped route.
func Middleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				utils.RespondError(w, http.StatusUnauthorized, "Token is required")
				return
			}

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, "Invalid token or user not found")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// StaticVerifier maps fixed tokens to identities. Suitable for development
// and tests; production wiring uses the repository-backed verifier.
type StaticVerifier map[string]Identity

func (v StaticVerifier) Verify(_ context.Context, token string) (Identity, error) {
	id, ok := v[token]
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}
