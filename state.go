package adminauth

import "time"

// LoginState is the explicit state of one login attempt. Session tokens
// are only ever issued from StateSessionIssued; no other state carries
// them, which keeps "session without a verified code" unrepresentable.
type LoginState int

const (
	// StateAwaitingCredentials is the initial state.
	StateAwaitingCredentials LoginState = iota
	// StateLockedOut means the account is inside its lockout window.
	StateLockedOut
	// StateCredentialsRejected covers unknown email and wrong password,
	// indistinguishably.
	StateCredentialsRejected
	// StateAwaitingVerification means the password matched and a one-time
	// code was issued.
	StateAwaitingVerification
	// StateVerificationRejected means the submitted code did not match.
	StateVerificationRejected
	// StateVerificationExpired means the stored code's TTL has passed.
	StateVerificationExpired
	// StateSessionIssued is the terminal success state.
	StateSessionIssued
)

// String returns the state's wire-stable name.
func (s LoginState) String() string {
	switch s {
	case StateAwaitingCredentials:
		return "awaiting_credentials"
	case StateLockedOut:
		return "locked_out"
	case StateCredentialsRejected:
		return "credentials_rejected"
	case StateAwaitingVerification:
		return "awaiting_verification"
	case StateVerificationRejected:
		return "verification_rejected"
	case StateVerificationExpired:
		return "verification_expired"
	case StateSessionIssued:
		return "session_issued"
	default:
		return "unknown"
	}
}

// LoginResult is the outcome of one Login/VerifyCode call. Tokens is
// non-nil only in StateSessionIssued. RetryAfter carries the remaining
// lockout when State is StateLockedOut. Diagnostic is populated only when
// [SecurityConfig.Debug] is set.
type LoginResult struct {
	State      LoginState
	Tokens     *TokenPair
	RetryAfter time.Duration
	Diagnostic string
}

// RequiresEmailVerification reports whether the flow is waiting on the
// emailed one-time code.
func (r *LoginResult) RequiresEmailVerification() bool {
	return r != nil && r.State == StateAwaitingVerification
}
