package adminauth

import (
	"github.com/crestline-motors/adminauth/csrf"
)

// CSRFToken issues a single-use anti-forgery token tracked in memory.
// Suited to single-instance deployments; multi-instance setups should use
// [Engine.CSRFTokenSigned] instead.
func (e *Engine) CSRFToken() (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	return e.csrf.Issue()
}

// VerifyCSRFToken consumes a single-use token. The token is spent whether
// or not verification succeeds.
func (e *Engine) VerifyCSRFToken(tokenStr string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if !e.csrf.Verify(tokenStr) {
		e.metrics.Inc(MetricCSRFRejected)
		return ErrCSRFInvalid
	}
	return nil
}

// CSRFTokenSigned issues a stateless HMAC-signed token that any instance
// sharing the secret can verify.
func (e *Engine) CSRFTokenSigned() (csrf.SignedToken, error) {
	if e == nil {
		return csrf.SignedToken{}, ErrEngineNotReady
	}
	return e.csrf.IssueSigned()
}

// VerifyCSRFSigned checks a signed token's MAC and expiry. Signed tokens
// are replayable until expiry; pair them with short TTLs where that
// matters.
func (e *Engine) VerifyCSRFSigned(signed string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if _, err := e.csrf.VerifySigned(signed); err != nil {
		e.metrics.Inc(MetricCSRFRejected)
		return ErrCSRFInvalid
	}
	return nil
}
