package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/pulse/pkg/auth"
	"github.com/platinummonkey/pulse/pkg/contextkeys"
	"github.com/platinummonkey/pulse/pkg/httputil"
	"github.com/platinummonkey/pulse/pkg/observability"
	"github.com/platinummonkey/pulse/pkg/storage"
)

// AuthMiddleware resolves the caller identity from the Authorization header
type AuthMiddleware struct {
	codec  *auth.Codec
	users  storage.UserStore
	logger *observability.Logger

	// Static token that lets load generators hit the stats endpoints
	// without a user account. Empty disables the bypass.
	benchmarkToken string
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(codec *auth.Codec, users storage.UserStore, benchmarkToken string, logger *observability.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		codec:          codec,
		users:          users,
		logger:         logger,
		benchmarkToken: benchmarkToken,
	}
}

// Handler wraps an HTTP handler with access-token authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return m.handle(next, false)
}

// BenchmarkHandler behaves like Handler but additionally accepts the
// configured benchmark token. Only the stats routes mount this variant.
func (m *AuthMiddleware) BenchmarkHandler(next http.Handler) http.Handler {
	return m.handle(next, true)
}

func (m *AuthMiddleware) handle(next http.Handler, allowBenchmark bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, "could not validate credentials")
			return
		}

		if allowBenchmark && m.benchmarkToken != "" && token == m.benchmarkToken {
			ctx := contextkeys.WithIdentity(r.Context(), auth.BenchmarkIdentity{})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		claims, err := m.codec.Decode(token, auth.TokenTypeAccess)
		if err != nil {
			httputil.WriteUnauthorized(w, "could not validate credentials")
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			httputil.WriteUnauthorized(w, "could not validate credentials")
			return
		}

		user, err := m.users.GetUserByID(r.Context(), userID)
		if err != nil {
			// A deleted user and a lookup failure both deny access; the
			// distinction stays in the logs.
			m.logger.WithError(err).WithField("user_id", userID).Warn("access token resolved to no user")
			httputil.WriteUnauthorized(w, "could not validate credentials")
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), auth.AuthenticatedUser{User: user})
		ctx = observability.WithUserID(ctx, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// IdentityFrom extracts the caller identity from the request context
func IdentityFrom(r *http.Request) (auth.Identity, bool) {
	identity, ok := r.Context().Value(contextkeys.IdentityKey).(auth.Identity)
	return identity, ok
}

// SelfIdentity resolves the caller identity and checks that it matches the
// user id the request targets. Benchmark identities never match.
func SelfIdentity(r *http.Request, pathUserID int64) (auth.Identity, error) {
	identity, ok := IdentityFrom(r)
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	if identity.IsBenchmark() || identity.UserID() != pathUserID {
		observability.FromContext(r.Context()).
			WithField("path_user_id", pathUserID).
			WithField("token_user_id", identity.UserID()).
			Warn("user attempted to act on another account")
		return nil, auth.ErrForbidden
	}
	return identity, nil
}

// RequireSelf is SelfIdentity with the HTTP boundary mapping applied
func RequireSelf(w http.ResponseWriter, r *http.Request, pathUserID int64) (auth.Identity, bool) {
	identity, err := SelfIdentity(r, pathUserID)
	if errors.Is(err, auth.ErrForbidden) {
		httputil.WriteForbidden(w, "not allowed to act on another user")
		return nil, false
	}
	if err != nil {
		httputil.WriteUnauthorized(w, "could not validate credentials")
		return nil, false
	}
	return identity, true
}
