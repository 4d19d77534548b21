package adminauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crestline-motors/adminauth/internal"
	"github.com/crestline-motors/adminauth/mail"
	"github.com/crestline-motors/adminauth/rate"
)

// mailDispatchTimeout bounds the background send after the code is already
// durably persisted.
const mailDispatchTimeout = 5 * time.Second

// NormalizeEmail lower-cases and trims an address the way every lookup and
// rate-limit key expects it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login runs the credential step of the login flow.
//
// Outcomes are reported through [LoginResult.State]; the error return is
// reserved for rate limiting and dependency failures. A wrong password and
// an unknown email both land in StateCredentialsRejected with nothing to
// tell them apart. Success transitions to StateAwaitingVerification: a
// fresh one-time code is persisted and dispatched by mail, and every login
// goes through it. There is no trusted-device bypass.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email = NormalizeEmail(email)

	if err := e.gate(ctx, rate.ClassLogin, rateIdentity(ctx, email), email); err != nil {
		return nil, err
	}

	if email == "" || plaintext == "" {
		e.metrics.Inc(MetricLoginFailure)
		e.emit(ctx, AuditEvent{
			EventType: EventLoginFailure,
			Error:     ErrInvalidCredentials.Error(),
			Metadata:  map[string]string{"reason": "empty_input"},
		})
		return e.loginResult(StateCredentialsRejected, "empty_input"), nil
	}

	rec, err := e.provider.GetByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			e.metrics.Inc(MetricLoginFailure)
			e.emit(ctx, AuditEvent{
				EventType: EventLoginFailure,
				Error:     ErrInvalidCredentials.Error(),
				Metadata:  map[string]string{"identifier": email, "reason": "user_not_found"},
			})
			return e.loginResult(StateCredentialsRejected, "user_not_found"), nil
		}
		e.emit(ctx, AuditEvent{
			EventType: EventBackendDegraded,
			Error:     err.Error(),
			Metadata:  map[string]string{"check": "user_lookup"},
		})
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	if !rec.Active {
		e.metrics.Inc(MetricLoginFailure)
		e.emit(ctx, AuditEvent{
			EventType: EventLoginFailure,
			AdminID:   rec.ID,
			Error:     ErrInvalidCredentials.Error(),
			Metadata:  map[string]string{"reason": "account_inactive"},
		})
		return e.loginResult(StateCredentialsRejected, "account_inactive"), nil
	}

	now := time.Now()

	// Lockout short-circuits before the bcrypt comparison. The 423
	// response already discloses the locked state, so the skipped hashing
	// work reveals nothing the response body does not.
	if rem := remainingLockout(rec.LockedUntil, now); rem > 0 {
		e.metrics.Inc(MetricLoginLockedOut)
		e.emit(ctx, AuditEvent{
			EventType: EventLoginLockedOut,
			AdminID:   rec.ID,
			Error:     ErrAccountLocked.Error(),
		})
		res := e.loginResult(StateLockedOut, "locked")
		res.RetryAfter = rem
		return res, nil
	}

	ok, err := e.hasher.Verify(plaintext, rec.PasswordHash)
	if err != nil {
		e.emit(ctx, AuditEvent{
			EventType: EventBackendDegraded,
			AdminID:   rec.ID,
			Error:     err.Error(),
			Metadata:  map[string]string{"check": "password_hash"},
		})
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	if !ok {
		return e.recordFailedAttempt(ctx, rec, now)
	}

	// Successful credential check clears the counter and any lockout.
	if rec.FailedAttempts != 0 || rec.LockedUntil != nil {
		if err := e.provider.UpdateLoginAttempts(ctx, rec.ID, 0, nil); err != nil {
			e.emit(ctx, AuditEvent{
				EventType: EventBackendDegraded,
				AdminID:   rec.ID,
				Error:     err.Error(),
				Metadata:  map[string]string{"check": "attempt_reset"},
			})
			return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
		}
	}

	if err := e.issueVerificationCode(ctx, rec, mail.PurposeLoginCode); err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emit(ctx, AuditEvent{
		EventType: EventLoginSuccess,
		AdminID:   rec.ID,
		Success:   true,
	})

	return e.loginResult(StateAwaitingVerification, ""), nil
}

// recordFailedAttempt advances the per-row counter; the attempt that
// reaches the threshold sets lockout-until and returns StateLockedOut.
func (e *Engine) recordFailedAttempt(ctx context.Context, rec AdminRecord, now time.Time) (*LoginResult, error) {
	failed := rec.FailedAttempts + 1

	if failed >= e.config.Lockout.Threshold {
		lockedUntil := now.Add(e.config.Lockout.Duration)
		// The counter restarts clean once the lockout expires.
		if err := e.provider.UpdateLoginAttempts(ctx, rec.ID, 0, &lockedUntil); err != nil {
			e.emit(ctx, AuditEvent{
				EventType: EventBackendDegraded,
				AdminID:   rec.ID,
				Error:     err.Error(),
				Metadata:  map[string]string{"check": "lockout_write"},
			})
			return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
		}

		e.metrics.Inc(MetricLoginLockedOut)
		e.emit(ctx, AuditEvent{
			EventType: EventLoginLockedOut,
			AdminID:   rec.ID,
			Error:     ErrAccountLocked.Error(),
			Metadata:  map[string]string{"failed_attempts": fmt.Sprint(failed)},
		})

		res := e.loginResult(StateLockedOut, "threshold_reached")
		res.RetryAfter = e.config.Lockout.Duration
		return res, nil
	}

	if err := e.provider.UpdateLoginAttempts(ctx, rec.ID, failed, nil); err != nil {
		e.emit(ctx, AuditEvent{
			EventType: EventBackendDegraded,
			AdminID:   rec.ID,
			Error:     err.Error(),
			Metadata:  map[string]string{"check": "attempt_write"},
		})
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	e.metrics.Inc(MetricLoginFailure)
	e.emit(ctx, AuditEvent{
		EventType: EventLoginFailure,
		AdminID:   rec.ID,
		Error:     ErrInvalidCredentials.Error(),
		Metadata:  map[string]string{"reason": "password_mismatch"},
	})

	return e.loginResult(StateCredentialsRejected, "password_mismatch"), nil
}

// issueVerificationCode persists a fresh code (superseding any previous
// one) and dispatches it. Persisting is the correctness-critical step;
// dispatch is best-effort and its failure never rolls the code back.
func (e *Engine) issueVerificationCode(ctx context.Context, rec AdminRecord, purpose mail.Purpose) error {
	code, err := internal.NewOTP(e.config.Verification.CodeDigits)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	expiresAt := time.Now().Add(e.config.Verification.CodeTTL)
	if err := e.provider.SetVerificationCode(ctx, rec.ID, code, expiresAt); err != nil {
		e.emit(ctx, AuditEvent{
			EventType: EventBackendDegraded,
			AdminID:   rec.ID,
			Error:     err.Error(),
			Metadata:  map[string]string{"check": "code_write"},
		})
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	e.metrics.Inc(MetricCodeIssued)
	e.emit(ctx, AuditEvent{
		EventType: EventCodeIssued,
		AdminID:   rec.ID,
		Success:   true,
		Metadata:  map[string]string{"purpose": string(purpose)},
	})

	msg := mail.Message{To: rec.Email, Code: code, Purpose: purpose}
	if e.config.Verification.SyncDispatch {
		e.dispatchMail(ctx, rec.ID, msg)
		return nil
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), mailDispatchTimeout)
		defer cancel()
		e.dispatchMail(sendCtx, rec.ID, msg)
	}()
	return nil
}

func (e *Engine) dispatchMail(ctx context.Context, adminID string, msg mail.Message) {
	if err := e.mailer.Send(ctx, msg); err != nil {
		e.emit(ctx, AuditEvent{
			EventType: EventMailDispatchFailed,
			AdminID:   adminID,
			Error:     err.Error(),
			Metadata:  map[string]string{"purpose": string(msg.Purpose)},
		})
	}
}

// gate applies the route-class budget. A fail-open class proceeds through
// a backend outage; a fail-closed class converts the outage into the same
// generic rate-limit error an exhausted budget produces.
func (e *Engine) gate(ctx context.Context, class rate.Class, identity, email string) error {
	res, err := e.limiter.Allow(ctx, class, identity)
	if err != nil {
		e.metrics.Inc(MetricBackendDegraded)
		e.emit(ctx, AuditEvent{
			EventType: EventBackendDegraded,
			Error:     err.Error(),
			Metadata:  map[string]string{"check": "rate_limit", "class": string(class)},
		})
	}
	if res.Allowed {
		return nil
	}

	sentinel := ErrLoginRateLimited
	if class == rate.ClassResend {
		sentinel = ErrResendRateLimited
	}

	e.metrics.Inc(MetricLoginRateLimited)
	e.emit(ctx, AuditEvent{
		EventType: EventLoginRateLimited,
		Error:     sentinel.Error(),
		Metadata:  map[string]string{"identifier": email, "class": string(class)},
	})

	return &RateLimitError{Err: sentinel, RetryAfter: res.RetryAfter}
}

func (e *Engine) loginResult(state LoginState, diagnostic string) *LoginResult {
	res := &LoginResult{State: state}
	if e.config.Security.Debug {
		res.Diagnostic = diagnostic
	}
	return res
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrAdminNotFound)
}
