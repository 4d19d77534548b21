package adminauth

import (
	"context"
	"time"
)

// AdminRecord is the admin-user row as seen by the engine. The backing
// store owns the schema; the engine only ever issues point lookups and
// single-row updates against these fields.
type AdminRecord struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	Permissions  []string
	Active       bool

	FailedAttempts int
	LockedUntil    *time.Time

	VerificationCode string
	CodeExpiresAt    *time.Time
}

// AdminProvider is the interface callers implement to connect the engine
// to the admin-user store. Lookups for absent records return
// [ErrAdminNotFound]. Email lookups are against the normalized
// (lower-cased, trimmed) address.
type AdminProvider interface {
	GetByEmail(ctx context.Context, email string) (AdminRecord, error)
	GetByID(ctx context.Context, id string) (AdminRecord, error)

	// UpdateLoginAttempts persists the failed-attempt counter and the
	// lockout-until timestamp (nil clears it).
	UpdateLoginAttempts(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error

	// SetVerificationCode persists a new one-time code, superseding any
	// previous one.
	SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error

	// ClearVerificationCode removes the stored code after it is consumed.
	ClearVerificationCode(ctx context.Context, id string) error
}

// AuthResult is returned by [Engine.Validate]: the authenticated admin's
// identity and the session the token belongs to.
type AuthResult struct {
	AdminID     string
	Email       string
	Role        string
	Permissions []string
	SessionID   string
}

// HasPermission reports whether the validated session carries perm.
func (r *AuthResult) HasPermission(perm string) bool {
	if r == nil {
		return false
	}
	for _, p := range r.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// TokenPair is the access/refresh pair issued when a login completes or a
// session is refreshed.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// VerifyMode selects how much of the token check runs.
//
// ModeStrict consults the revocation registry and is the default inside
// the main server process. ModeEdge checks only signature and expiry plus
// a best-effort revocation probe, for deployment contexts where the
// registry may be unreachable; an unreachable registry there reads as
// "not yet confirmed revoked" and the next strict hop settles it.
type VerifyMode int

const (
	// ModeStrict validates signature, expiry, and revocation.
	ModeStrict VerifyMode = iota
	// ModeEdge validates signature and expiry; revocation best-effort.
	ModeEdge
)
