package auth

import "errors"

// Error taxonomy for the auth core. Handlers translate these into HTTP
// statuses at the boundary; nothing below this layer knows about HTTP.
var (
	// ErrInvalidCredentials covers wrong email or wrong password at login.
	// Callers must never learn which of the two was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidToken is a signature, expiry, audience, or issuer failure
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrWrongTokenType means the token verified but its type claim does not
	// match what the caller expected. Distinct from ErrInvalidToken: this is
	// caller misuse, not a forged or stolen token.
	ErrWrongTokenType = errors.New("wrong token type")

	// ErrTokenRevokedOrExpired means the token decodes but fails the cache
	// revocation or presence check
	ErrTokenRevokedOrExpired = errors.New("token revoked or expired")

	// ErrMalformedToken means the token decodes but lacks required claims
	ErrMalformedToken = errors.New("malformed token")

	// ErrSessionClosed means the target session was already revoked or gone.
	// The input was well-formed; the session state had simply moved on.
	ErrSessionClosed = errors.New("session already closed or not found")

	// ErrForbidden means the authenticated identity does not match the
	// user the request targets
	ErrForbidden = errors.New("you can only access your own data")
)

// IsAuthFailure reports whether the error is any member of the auth error
// taxonomy, as opposed to an infrastructure failure that should stay generic
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrWrongTokenType) ||
		errors.Is(err, ErrTokenRevokedOrExpired) ||
		errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, ErrForbidden)
}
