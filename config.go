package adminauth

import (
	"errors"
	"time"

	"github.com/crestline-motors/adminauth/csrf"
	"github.com/crestline-motors/adminauth/password"
	"github.com/crestline-motors/adminauth/rate"
)

// Config is the engine's full configuration. Instances are set up before
// Build and treated as immutable afterwards. Every threshold the login
// flow applies (lockout, code TTL, rate windows) lives here, never in
// handler code.
type Config struct {
	JWT          JWTConfig
	Lockout      LockoutConfig
	Verification VerificationConfig
	Password     password.Config
	RateLimit    rate.Config
	CSRF         csrf.Config
	Cookies      CookieConfig
	Security     SecurityConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

// JWTConfig holds token codec settings. Secret signs both the access and
// refresh tokens; the two differ only in TTL and the embedded use claim.
type JWTConfig struct {
	Secret       []byte
	Issuer       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	Leeway       time.Duration
	MaxFutureIAT time.Duration
}

// LockoutConfig holds the per-account failed-attempt policy.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// VerificationConfig holds the emailed one-time code policy.
type VerificationConfig struct {
	CodeDigits int
	CodeTTL    time.Duration
	// SyncDispatch makes the engine wait for the mail collaborator before
	// returning. Off by default: the code is durably persisted first and
	// dispatch is best-effort.
	SyncDispatch bool
}

// CookieConfig names the session cookies the HTTP layer sets and the edge
// guard reads.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Path        string
	Domain      string
	Secure      bool
}

// SecurityConfig holds cross-cutting policy switches.
type SecurityConfig struct {
	// StrictRevocation makes ModeStrict validation deny when the
	// revocation registry is unreachable. ModeEdge always degrades to
	// "not yet confirmed revoked" regardless.
	StrictRevocation bool
	// Debug attaches machine-readable diagnostics to LoginResult. Never
	// enable in production responses.
	Debug bool
	// LoginPath is where the edge guard redirects unauthenticated page
	// requests.
	LoginPath string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the production defaults: 5-attempt/15-minute
// lockout, 6-digit codes valid 10 minutes, 15-minute access tokens with
// 7-day refresh.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:     "crestline-admin",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		Verification: VerificationConfig{
			CodeDigits: 6,
			CodeTTL:    10 * time.Minute,
		},
		Password:  password.Config{Cost: 12},
		RateLimit: rate.DefaultConfig(),
		CSRF: csrf.Config{
			MaxAge:    24 * time.Hour,
			SignedTTL: 24 * time.Hour,
		},
		Cookies: CookieConfig{
			AccessName:  "admin_access_token",
			RefreshName: "admin_refresh_token",
			Path:        "/",
			Secure:      true,
		},
		Security: SecurityConfig{
			StrictRevocation: true,
			LoginPath:        "/admin/login",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Validate checks the configuration for values Build must refuse.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return errors.New("config: JWT secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("config: refresh TTL must not be shorter than access TTL")
	}
	if c.Lockout.Threshold <= 0 {
		return errors.New("config: lockout threshold must be positive")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("config: lockout duration must be positive")
	}
	if c.Verification.CodeDigits < 6 || c.Verification.CodeDigits > 10 {
		return errors.New("config: verification code digits must be 6..10")
	}
	if c.Verification.CodeTTL <= 0 {
		return errors.New("config: verification code TTL must be positive")
	}
	if c.Cookies.AccessName == "" || c.Cookies.RefreshName == "" {
		return errors.New("config: cookie names must not be empty")
	}
	if c.Security.LoginPath == "" {
		return errors.New("config: login path must not be empty")
	}
	return nil
}
