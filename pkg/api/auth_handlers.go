package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/pulse/pkg/auth"
	"github.com/platinummonkey/pulse/pkg/httputil"
	"github.com/platinummonkey/pulse/pkg/middleware"
	"github.com/platinummonkey/pulse/pkg/observability"
	"github.com/platinummonkey/pulse/pkg/storage"
	"github.com/platinummonkey/pulse/pkg/tokencache"
)

// defaultRedirectURL is where clients land after a successful login.
const defaultRedirectURL = "/"

// AuthHandlers handles registration, login, and the token lifecycle
type AuthHandlers struct {
	users   storage.UserStore
	issuer  *auth.Issuer
	cache   *tokencache.Cache
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(users storage.UserStore, issuer *auth.Issuer, cache *tokencache.Cache, metrics *observability.Metrics, logger *observability.Logger) *AuthHandlers {
	return &AuthHandlers{
		users:   users,
		issuer:  issuer,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterRoutes registers authentication routes. Routes that act on an
// existing session run behind the auth middleware; the rate limiter guards
// the credential-bearing entry points.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router, authMW *middleware.AuthMiddleware, limit func(http.Handler) http.Handler) {
	router.Handle("/auth/register", limit(http.HandlerFunc(h.register))).Methods("POST")
	router.Handle("/auth/login", limit(http.HandlerFunc(h.login))).Methods("POST")
	router.Handle("/auth/token", limit(http.HandlerFunc(h.token))).Methods("POST")
	router.Handle("/auth/{user_id}/refresh", limit(http.HandlerFunc(h.refresh))).Methods("POST")
	router.Handle("/auth/{user_id}/logout", authMW.Handler(http.HandlerFunc(h.logout))).Methods("POST")
	router.Handle("/auth/{user_id}/change-password", authMW.Handler(http.HandlerFunc(h.changePassword))).Methods("POST")
}

// register handles POST /auth/register
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		h.metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		h.metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.WithError(err).Error("password hashing failed")
		httputil.WriteInternalError(w)
		return
	}

	user, err := h.users.CreateUser(r.Context(), email, hashed)
	if errors.Is(err, storage.ErrDuplicate) {
		// The unique index on email is the sole registration gate; a
		// concurrent duplicate register surfaces here, never as a 500.
		h.metrics.RegistrationsTotal.WithLabelValues("duplicate").Inc()
		httputil.WriteConflict(w, "user with this email already exists")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("user insert failed")
		httputil.WriteInternalError(w)
		return
	}

	h.metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	h.logger.WithField("user_id", user.ID).WithField("email", user.Email).Info("user registered")
	httputil.WriteCreated(w, userResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

// writeAuthError maps the auth error taxonomy onto HTTP statuses and
// transport messages. Anything outside the taxonomy is an infrastructure
// failure: logged in full, surfaced as a generic 500.
func (h *AuthHandlers) writeAuthError(w http.ResponseWriter, err error) {
	if !auth.IsAuthFailure(err) {
		h.logger.WithError(err).Error("auth operation failed")
		httputil.WriteInternalError(w)
		return
	}
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		httputil.WriteUnauthorized(w, "wrong password or email")
	case errors.Is(err, auth.ErrWrongTokenType):
		httputil.WriteBadRequest(w, "invalid token type")
	case errors.Is(err, auth.ErrMalformedToken):
		httputil.WriteBadRequest(w, "malformed refresh token")
	case errors.Is(err, auth.ErrTokenRevokedOrExpired):
		httputil.WriteUnauthorized(w, "refresh token revoked or expired")
	case errors.Is(err, auth.ErrSessionClosed):
		httputil.WriteConflict(w, "session already closed or not found")
	case errors.Is(err, auth.ErrForbidden):
		httputil.WriteForbidden(w, "not allowed to act on another user")
	case errors.Is(err, auth.ErrInvalidToken):
		httputil.WriteUnauthorized(w, "invalid refresh token")
	default:
		httputil.WriteUnauthorized(w, "could not validate credentials")
	}
}

// authenticate verifies an email/password pair, returning
// auth.ErrInvalidCredentials without distinguishing which field was wrong.
// Password verification runs even for unknown emails so response timing
// does not reveal which field failed.
func (h *AuthHandlers) authenticate(r *http.Request, email, password string) (*storage.User, error) {
	user, err := h.users.GetUserByEmail(r.Context(), email)
	if errors.Is(err, storage.ErrNotFound) {
		auth.VerifyPassword(password, "")
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.VerifyPassword(password, user.HashedPassword) {
		return nil, auth.ErrInvalidCredentials
	}
	return user, nil
}

// liveRefreshSession reports whether the refresh jti is still present in
// the cache and not revoked. Infrastructure errors pass through untouched.
func (h *AuthHandlers) liveRefreshSession(r *http.Request, jti string) (bool, error) {
	revoked, err := h.cache.IsRevoked(r.Context(), jti)
	if err != nil {
		return false, err
	}
	if revoked {
		return false, nil
	}
	payload, err := h.cache.GetRefresh(r.Context(), jti)
	if err != nil {
		return false, err
	}
	return payload != nil, nil
}

// login handles POST /auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.authenticate(r, email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.metrics.LoginsTotal.WithLabelValues("failure").Inc()
		}
		h.writeAuthError(w, err)
		return
	}

	pair, err := h.issuer.IssueTokensForUser(r.Context(), user.ID, true, true)
	if err != nil {
		h.logger.WithError(err).Error("token issuance failed")
		httputil.WriteInternalError(w)
		return
	}

	if err := h.users.TouchActivity(r.Context(), user.ID); err != nil {
		h.logger.WithError(err).WithField("user_id", user.ID).Warn("activity timestamp update failed")
	}

	h.metrics.LoginsTotal.WithLabelValues("success").Inc()
	h.metrics.TokensIssuedTotal.WithLabelValues("access").Inc()
	h.metrics.TokensIssuedTotal.WithLabelValues("refresh").Inc()
	h.logger.WithField("user_id", user.ID).Info("login successful")
	httputil.WriteSuccess(w, tokenPairResponse{
		Access:      pair.AccessToken,
		Refresh:     pair.RefreshToken,
		TokenType:   "bearer",
		RedirectURL: defaultRedirectURL,
	})
}

// token handles POST /auth/token, the OAuth2 password flow. It accepts form
// encoding and mints an access token only.
func (h *AuthHandlers) token(w http.ResponseWriter, r *http.Request) {
	if !httputil.ParseForm(w, r) {
		return
	}

	email, err := normalizeEmail(r.PostFormValue("username"))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	password := r.PostFormValue("password")

	user, err := h.authenticate(r, email, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.metrics.LoginsTotal.WithLabelValues("failure").Inc()
		}
		h.writeAuthError(w, err)
		return
	}

	pair, err := h.issuer.IssueTokensForUser(r.Context(), user.ID, true, false)
	if err != nil {
		h.logger.WithError(err).Error("token issuance failed")
		httputil.WriteInternalError(w)
		return
	}

	h.metrics.LoginsTotal.WithLabelValues("success").Inc()
	h.metrics.TokensIssuedTotal.WithLabelValues("access").Inc()
	httputil.WriteSuccess(w, accessTokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "bearer",
	})
}

// refresh handles POST /auth/{user_id}/refresh. The refresh token itself is
// the credential; no access token is required. The old refresh token is
// revoked only after the new pair is minted, so a failed mint leaves the
// caller with a working session.
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	claims, err := h.issuer.Codec().Decode(req.Refresh, auth.TokenTypeRefresh)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	userID, err := claims.UserID()
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	live, err := h.liveRefreshSession(r, claims.ID)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	if !live {
		h.writeAuthError(w, auth.ErrTokenRevokedOrExpired)
		return
	}

	pair, err := h.issuer.IssueTokensForUser(r.Context(), userID, true, true)
	if err != nil {
		h.logger.WithError(err).Error("token issuance failed")
		httputil.WriteInternalError(w)
		return
	}

	if err := h.cache.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		h.logger.WithError(err).WithField("jti", claims.ID).Warn("old refresh token revocation failed")
	}

	h.metrics.TokensIssuedTotal.WithLabelValues("access").Inc()
	h.metrics.TokensIssuedTotal.WithLabelValues("refresh").Inc()
	h.metrics.TokensRevokedTotal.WithLabelValues("rotation").Inc()
	h.logger.WithField("user_id", userID).Info("token refresh successful")
	httputil.WriteSuccess(w, tokenPairResponse{
		Access:      pair.AccessToken,
		Refresh:     pair.RefreshToken,
		TokenType:   "bearer",
		RedirectURL: defaultRedirectURL,
	})
}

// logout handles POST /auth/{user_id}/logout. Revoking an already-revoked
// or unknown session is a conflict, not a success, so clients can detect
// replayed logout requests.
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	pathUserID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	if _, ok := middleware.RequireSelf(w, r, pathUserID); !ok {
		return
	}

	var req logoutRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	claims, err := h.issuer.Codec().Decode(req.Refresh, auth.TokenTypeRefresh)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	if claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		h.writeAuthError(w, auth.ErrMalformedToken)
		return
	}

	live, err := h.liveRefreshSession(r, claims.ID)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	if !live {
		h.writeAuthError(w, auth.ErrSessionClosed)
		return
	}

	if err := h.cache.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		h.writeAuthError(w, err)
		return
	}
	if err := h.cache.DeleteRefresh(r.Context(), claims.ID); err != nil {
		h.logger.WithError(err).WithField("jti", claims.ID).Warn("refresh token delete failed")
	}

	h.metrics.TokensRevokedTotal.WithLabelValues("logout").Inc()
	h.logger.WithField("user_id", pathUserID).Info("logout successful")
	httputil.WriteNoContent(w)
}

// changePassword handles POST /auth/{user_id}/change-password
func (h *AuthHandlers) changePassword(w http.ResponseWriter, r *http.Request) {
	pathUserID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	identity, ok := middleware.RequireSelf(w, r, pathUserID)
	if !ok {
		h.metrics.PasswordChangesTotal.WithLabelValues("forbidden").Inc()
		return
	}

	var req changePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		h.metrics.PasswordChangesTotal.WithLabelValues("invalid").Inc()
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.users.GetUserByID(r.Context(), identity.UserID())
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("user lookup failed")
		httputil.WriteInternalError(w)
		return
	}

	if !auth.VerifyPassword(req.CurrentPassword, user.HashedPassword) {
		h.metrics.PasswordChangesTotal.WithLabelValues("wrong_password").Inc()
		httputil.WriteUnauthorized(w, "current password is incorrect")
		return
	}

	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		h.logger.WithError(err).Error("password hashing failed")
		httputil.WriteInternalError(w)
		return
	}

	if err := h.users.UpdatePassword(r.Context(), user.ID, hashed); err != nil {
		h.metrics.PasswordChangesTotal.WithLabelValues("error").Inc()
		h.logger.WithError(err).WithField("user_id", user.ID).Error("password update failed")
		httputil.WriteInternalError(w)
		return
	}

	// Every live session dies with the old password. Cache failures here
	// are logged, not surfaced: the password change itself committed.
	revoked, err := h.cache.RevokeAllUserRefresh(r.Context(), user.ID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", user.ID).Error("session revocation after password change failed")
	} else if revoked > 0 {
		h.metrics.TokensRevokedTotal.WithLabelValues("password_change").Add(float64(revoked))
	}

	h.metrics.PasswordChangesTotal.WithLabelValues("success").Inc()
	h.logger.WithField("user_id", user.ID).Info("password changed")
	httputil.WriteNoContent(w)
}
