package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Use discriminates access tokens from refresh tokens inside the claim set
// so one can never be presented in place of the other.
type Use string

const (
	// UseAccess marks a short-lived token accepted by the request guards.
	UseAccess Use = "access"
	// UseRefresh marks a longer-lived token accepted only by the refresh
	// endpoint.
	UseRefresh Use = "refresh"
)

// Claims is the signed claim set carried by every session token. Subject
// holds the admin's ID and RegisteredClaims.ID (jti) is the revocation key.
type Claims struct {
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"perms,omitempty"`
	SessionID   string   `json:"sid"`
	TokenUse    Use      `json:"use"`
	jwt.RegisteredClaims
}

// Config holds the codec's signing parameters.
type Config struct {
	Secret       []byte
	Issuer       string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
}

// Manager signs and verifies session tokens with a symmetric HS256 secret.
// It is immutable after construction and safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a token Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("signing secret must be at least 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	return &Manager{config: cfg}, nil
}

// Issue signs claims with the given lifetime. The jti, iat, exp, and issuer
// registered claims are filled in here; callers must not set them.
func (m *Manager) Issue(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	if claims.TokenUse == "" {
		return "", errors.New("token use is required")
	}

	now := time.Now()
	claims.RegisteredClaims.ID = uuid.NewString()
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if m.config.Issuer != "" {
		claims.RegisteredClaims.Issuer = m.config.Issuer
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(m.config.Secret)
}

// Verify parses and validates a token: signature, pinned algorithm, expiry,
// and an iat-in-the-future guard against clock skew. It does not consult
// any revocation state.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil && m.config.MaxFutureIAT > 0 {
		if claims.IssuedAt.Time.After(time.Now().Add(m.config.MaxFutureIAT)) {
			return nil, errors.New("token iat too far in the future")
		}
	}
	if claims.ID == "" {
		return nil, errors.New("token missing jti")
	}

	return claims, nil
}

// DecodeUnverified extracts claims without checking the signature or expiry.
// Logout uses it to recover jti/exp from whatever the client presents; the
// result must never be trusted for authentication.
func (m *Manager) DecodeUnverified(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser()
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
