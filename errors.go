package adminauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is the single indistinguishable failure for a
	// wrong password, an unknown email, or a disabled account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates the account is inside its lockout window.
	ErrAccountLocked = errors.New("account locked")
	// ErrVerificationInvalid covers a wrong, expired, or absent one-time
	// code; callers must not reveal which condition failed.
	ErrVerificationInvalid = errors.New("verification code invalid")
	// ErrLoginRateLimited indicates the login budget is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrResendRateLimited indicates the code-resend budget is exhausted.
	ErrResendRateLimited = errors.New("resend rate limited")
	// ErrCSRFInvalid indicates a missing, unknown, expired, or tampered
	// anti-forgery token.
	ErrCSRFInvalid = errors.New("csrf token invalid")
	// ErrTokenInvalid indicates a session token that failed signature,
	// expiry, or claim checks.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenRevoked indicates the token's jti is on the revocation
	// registry.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRefreshInvalid indicates the presented refresh token cannot be
	// used to rotate the session.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrPermissionDenied indicates a valid session lacking the required
	// role or permission.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrDependencyUnavailable indicates an external collaborator (Redis,
	// user store, mail) failed; details go to audit, never to clients.
	ErrDependencyUnavailable = errors.New("backend unavailable")
	// ErrAdminNotFound is returned by AdminProvider lookups for absent
	// records. The engine collapses it into ErrInvalidCredentials before
	// anything reaches a client.
	ErrAdminNotFound = errors.New("admin not found")
	// ErrEngineNotReady indicates Build was skipped or a required
	// collaborator is missing.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitError carries the retry hint alongside the rate-limit sentinel,
// so the HTTP layer can emit a Retry-After header. errors.Is matches the
// wrapped sentinel.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
}

// Error implements error.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %s)", e.Err, e.RetryAfter.Round(time.Second))
	}
	return e.Err.Error()
}

// Unwrap exposes the sentinel for errors.Is.
func (e *RateLimitError) Unwrap() error { return e.Err }

func wrapDependency(err error) error {
	return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
}
