package adminauth

import (
	"context"
	"fmt"
	"time"

	"github.com/crestline-motors/adminauth/csrf"
	"github.com/crestline-motors/adminauth/internal/stores"
	"github.com/crestline-motors/adminauth/mail"
	"github.com/crestline-motors/adminauth/password"
	"github.com/crestline-motors/adminauth/rate"
	"github.com/crestline-motors/adminauth/token"
)

// Engine is the admin session security core. It is safe for concurrent use
// after [Builder.Build].
type Engine struct {
	config    Config
	tokens    *token.Manager
	hasher    *password.Hasher
	csrf      *csrf.Guard
	blacklist *stores.BlacklistStore
	limiter   *rate.Limiter
	provider  AdminProvider
	mailer    mail.Dispatcher
	audit     *auditDispatcher
	metrics   *Metrics
}

// Close flushes the audit dispatcher. The engine must not be used after
// Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// MetricsSnapshot returns the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// Cookies returns the configured session cookie parameters, for HTTP
// layers that set and clear them.
func (e *Engine) Cookies() CookieConfig {
	if e == nil {
		return CookieConfig{}
	}
	return e.config.Cookies
}

// RateLimiter exposes the engine's limiter so HTTP middleware can gate
// route classes the engine does not handle itself, such as the public
// contact form.
func (e *Engine) RateLimiter() *rate.Limiter {
	if e == nil {
		return nil
	}
	return e.limiter
}

// AuditDropped reports how many audit events were shed under load.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Validate checks an access token and returns the authenticated identity.
//
// ModeStrict consults the revocation registry; when the registry is
// unreachable the [SecurityConfig.StrictRevocation] policy decides between
// deny and degrade. ModeEdge probes the registry best-effort and treats an
// unreachable registry as "not yet confirmed revoked".
func (e *Engine) Validate(ctx context.Context, tokenStr string, mode VerifyMode) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	switch mode {
	case ModeStrict:
		e.metrics.Inc(MetricValidateStrict)
	case ModeEdge:
		e.metrics.Inc(MetricValidateEdge)
	default:
		return nil, fmt.Errorf("%w: unknown verify mode %d", ErrTokenInvalid, mode)
	}

	claims, err := e.tokens.Verify(tokenStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.TokenUse != token.UseAccess {
		return nil, ErrTokenInvalid
	}

	revoked, err := e.blacklist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		e.metrics.Inc(MetricBackendDegraded)
		e.emit(ctx, AuditEvent{
			EventType: EventBackendDegraded,
			AdminID:   claims.Subject,
			SessionID: claims.SessionID,
			Error:     err.Error(),
			Metadata:  map[string]string{"check": "revocation"},
		})
		if mode == ModeStrict && e.config.Security.StrictRevocation {
			return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
		}
		// Degraded path: the token passed signature and expiry; a later
		// strict hop settles the revocation question.
	} else if revoked {
		return nil, ErrTokenRevoked
	}

	return &AuthResult{
		AdminID:     claims.Subject,
		Email:       claims.Email,
		Role:        claims.Role,
		Permissions: claims.Permissions,
		SessionID:   claims.SessionID,
	}, nil
}

func (e *Engine) emit(ctx context.Context, event AuditEvent) {
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) issueTokenPair(rec AdminRecord, sessionID string) (*TokenPair, error) {
	base := token.Claims{
		Email:       rec.Email,
		Role:        rec.Role,
		Permissions: rec.Permissions,
		SessionID:   sessionID,
	}
	base.Subject = rec.ID

	access := base
	access.TokenUse = token.UseAccess
	accessStr, err := e.tokens.Issue(access, e.config.JWT.AccessTTL)
	if err != nil {
		return nil, err
	}

	refresh := base
	refresh.TokenUse = token.UseRefresh
	refreshStr, err := e.tokens.Issue(refresh, e.config.JWT.RefreshTTL)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricSessionIssued)
	return &TokenPair{AccessToken: accessStr, RefreshToken: refreshStr}, nil
}

// rateIdentity picks the limiter key: the caller's IP when known, else the
// normalized email, so one address hammering many accounts burns a single
// budget.
func rateIdentity(ctx context.Context, email string) string {
	if ip := clientIPFromContext(ctx); ip != "" {
		return ip
	}
	return email
}

func remainingLockout(lockedUntil *time.Time, now time.Time) time.Duration {
	if lockedUntil == nil {
		return 0
	}
	if rem := lockedUntil.Sub(now); rem > 0 {
		return rem
	}
	return 0
}
