package adminauth

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/google/uuid"

	"github.com/crestline-motors/adminauth/mail"
	"github.com/crestline-motors/adminauth/rate"
)

// ResendCode generates and mails a fresh verification code, replacing the
// pending one.
//
// The response is deliberately uniform: unknown emails, inactive accounts,
// and accounts with no verification in flight all return nil without
// sending anything, so the endpoint cannot be used to probe which admin
// addresses exist. Only the resend rate budget surfaces as an error.
func (e *Engine) ResendCode(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	email = NormalizeEmail(email)

	if err := e.gate(ctx, rate.ClassResend, rateIdentity(ctx, email), email); err != nil {
		return err
	}

	rec, err := e.provider.GetByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		e.emit(ctx, AuditEvent{
			EventType: EventBackendDegraded,
			Error:     err.Error(),
			Metadata:  map[string]string{"check": "user_lookup"},
		})
		return nil
	}
	if !rec.Active {
		return nil
	}

	// A resend only makes sense mid-login. Without a pending code the
	// credential step has not passed, and issuing one here would let a
	// mailbox compromise skip the password entirely.
	if rec.VerificationCode == "" {
		return nil
	}

	if err := e.issueVerificationCode(ctx, rec, mail.PurposeLoginCodeResend); err != nil {
		return err
	}

	e.emit(ctx, AuditEvent{
		EventType: EventCodeResent,
		AdminID:   rec.ID,
		Success:   true,
	})
	return nil
}

// VerifyCode runs the second login step. A correct, unexpired code clears
// itself (single use), resets the caller's login budget, and issues the
// session token pair under a fresh session id.
func (e *Engine) VerifyCode(ctx context.Context, email, code string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	identity := rateIdentity(ctx, email)

	// Code guessing shares the login budget so both steps together stay
	// inside one window.
	if err := e.gate(ctx, rate.ClassLogin, identity, email); err != nil {
		return nil, err
	}

	rec, err := e.provider.GetByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return e.rejectCode(ctx, "", "user_not_found"), nil
		}
		e.emit(ctx, AuditEvent{
			EventType: EventBackendDegraded,
			Error:     err.Error(),
			Metadata:  map[string]string{"check": "user_lookup"},
		})
		return nil, wrapDependency(err)
	}

	if !rec.Active || rec.VerificationCode == "" || code == "" {
		return e.rejectCode(ctx, rec.ID, "no_pending_code"), nil
	}

	if rec.CodeExpiresAt == nil || time.Now().After(*rec.CodeExpiresAt) {
		e.metrics.Inc(MetricCodeRejected)
		e.emit(ctx, AuditEvent{
			EventType: EventCodeRejected,
			AdminID:   rec.ID,
			Error:     ErrVerificationInvalid.Error(),
			Metadata:  map[string]string{"reason": "expired"},
		})
		return e.loginResult(StateVerificationExpired, "code_expired"), nil
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(rec.VerificationCode)) != 1 {
		return e.rejectCode(ctx, rec.ID, "code_mismatch"), nil
	}

	// Consume the code before issuing anything. If the clear fails the
	// whole step fails; leaving a spent code replayable is worse than
	// making the admin log in again.
	if err := e.provider.ClearVerificationCode(ctx, rec.ID); err != nil {
		e.emit(ctx, AuditEvent{
			EventType: EventBackendDegraded,
			AdminID:   rec.ID,
			Error:     err.Error(),
			Metadata:  map[string]string{"check": "code_clear"},
		})
		return nil, wrapDependency(err)
	}

	sessionID := uuid.NewString()
	pair, err := e.issueTokenPair(rec, sessionID)
	if err != nil {
		return nil, wrapDependency(err)
	}

	// A completed login ends the attempt window early.
	if err := e.limiter.Reset(ctx, rate.ClassLogin, identity); err != nil {
		e.emit(ctx, AuditEvent{
			EventType: EventBackendDegraded,
			AdminID:   rec.ID,
			Error:     err.Error(),
			Metadata:  map[string]string{"check": "rate_reset"},
		})
	}

	e.metrics.Inc(MetricCodeVerified)
	e.emit(ctx, AuditEvent{
		EventType: EventCodeVerified,
		AdminID:   rec.ID,
		SessionID: sessionID,
		Success:   true,
	})
	e.emit(ctx, AuditEvent{
		EventType: EventSessionIssued,
		AdminID:   rec.ID,
		SessionID: sessionID,
		Success:   true,
	})

	res := e.loginResult(StateSessionIssued, "")
	res.Tokens = pair
	return res, nil
}

func (e *Engine) rejectCode(ctx context.Context, adminID, reason string) *LoginResult {
	e.metrics.Inc(MetricCodeRejected)
	e.emit(ctx, AuditEvent{
		EventType: EventCodeRejected,
		AdminID:   adminID,
		Error:     ErrVerificationInvalid.Error(),
		Metadata:  map[string]string{"reason": reason},
	})
	return e.loginResult(StateVerificationRejected, reason)
}
