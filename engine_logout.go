package adminauth

import (
	"context"
	"time"

	"github.com/crestline-motors/adminauth/token"
)

// Logout revokes both tokens of a session by pushing their jtis onto the
// revocation registry.
//
// Signature and expiry are not re-checked: an already-expired or malformed
// token has nothing left to revoke and is silently skipped. Logout never
// fails from the caller's point of view; registry errors are audited and
// absorbed, since the client-side cookies are cleared regardless.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) {
	if e == nil {
		return
	}

	var adminID, sessionID string
	revoked := 0
	for _, raw := range []string{accessToken, refreshToken} {
		if raw == "" {
			continue
		}
		claims, err := e.tokens.DecodeUnverified(raw)
		if err != nil || claims.ID == "" || claims.ExpiresAt == nil {
			continue
		}
		if adminID == "" {
			adminID = claims.Subject
			sessionID = claims.SessionID
		}
		if err := e.blacklist.Blacklist(ctx, claims.ID, claims.ExpiresAt.Unix()); err != nil {
			e.metrics.Inc(MetricBackendDegraded)
			e.emit(ctx, AuditEvent{
				EventType: EventBackendDegraded,
				AdminID:   claims.Subject,
				SessionID: claims.SessionID,
				Error:     err.Error(),
				Metadata:  map[string]string{"check": "revocation_write"},
			})
			continue
		}
		e.metrics.Inc(MetricTokenRevoked)
		e.emit(ctx, AuditEvent{
			EventType: EventTokenRevoked,
			AdminID:   claims.Subject,
			SessionID: claims.SessionID,
			Success:   true,
			Metadata:  map[string]string{"jti": claims.ID},
		})
		revoked++
	}

	e.emit(ctx, AuditEvent{
		EventType: EventLogout,
		AdminID:   adminID,
		SessionID: sessionID,
		Success:   revoked > 0,
	})
}

// Refresh rotates a session: it validates the refresh token, revokes it,
// and issues a new pair under the same session id.
//
// Every failure collapses into ErrRefreshInvalid so a stolen-but-expired
// token and a revoked one look identical to the caller. Rotation means a
// refresh token works exactly once; a replay after rotation hits the
// registry and is rejected, which is the signal that the token leaked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(refreshToken)
	if err != nil {
		return nil, ErrRefreshInvalid
	}
	if claims.TokenUse != token.UseRefresh {
		return nil, ErrRefreshInvalid
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
		// Refresh mints new credentials, so it is always strict about the
		// registry regardless of the validation-path policy.
		return nil, wrapDependency(err)
	}
	if revoked {
		return nil, ErrRefreshInvalid
	}

	rec, err := e.provider.GetByID(ctx, claims.Subject)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrRefreshInvalid
		}
		e.emit(ctx, AuditEvent{
			EventType: EventBackendDegraded,
			AdminID:   claims.Subject,
			Error:     err.Error(),
			Metadata:  map[string]string{"check": "user_lookup"},
		})
		return nil, wrapDependency(err)
	}
	if !rec.Active {
		return nil, ErrRefreshInvalid
	}
	if rem := remainingLockout(rec.LockedUntil, time.Now()); rem > 0 {
		return nil, ErrRefreshInvalid
	}

	// Burn the presented token before handing out its replacement.
	if err := e.blacklist.Blacklist(ctx, claims.ID, claims.ExpiresAt.Unix()); err != nil {
		e.metrics.Inc(MetricBackendDegraded)
		e.emit(ctx, AuditEvent{
			EventType: EventBackendDegraded,
			AdminID:   claims.Subject,
			SessionID: claims.SessionID,
			Error:     err.Error(),
			Metadata:  map[string]string{"check": "revocation_write"},
		})
		return nil, wrapDependency(err)
	}
	e.metrics.Inc(MetricTokenRevoked)

	pair, err := e.issueTokenPair(rec, claims.SessionID)
	if err != nil {
		return nil, wrapDependency(err)
	}

	e.metrics.Inc(MetricSessionRefreshed)
	e.emit(ctx, AuditEvent{
		EventType: EventSessionRefreshed,
		AdminID:   rec.ID,
		SessionID: claims.SessionID,
		Success:   true,
	})
	return pair, nil
}
