package csrf

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crestline-motors/adminauth/internal"
)

const (
	// maxTracked caps the unsigned-token map so an attacker hammering the
	// issuance endpoint cannot grow it without bound.
	maxTracked = 100_000
)

var (
	// ErrSignedTokenInvalid covers a malformed, mis-signed, or tampered
	// signed token.
	ErrSignedTokenInvalid = errors.New("invalid signed csrf token")
	// ErrSignedTokenExpired indicates the embedded expiry has passed.
	ErrSignedTokenExpired = errors.New("signed csrf token expired")
)

// Config holds the guard's signing secret and lifetimes.
type Config struct {
	Secret    []byte
	MaxAge    time.Duration // unsigned-token lifetime, default 24h
	SignedTTL time.Duration // signed-token lifetime, default 24h
}

// SignedToken is the result of IssueSigned: the bare token, its signed
// self-contained form, and the embedded expiry.
type SignedToken struct {
	Token     string
	Signed    string
	ExpiresAt time.Time
}

// Guard issues and verifies CSRF tokens. Safe for concurrent use; the
// unsigned-token map is guarded so a token verifies successfully at most
// once no matter how many requests race on it.
type Guard struct {
	config Config

	mu     sync.Mutex
	issued map[string]time.Time

	now func() time.Time
}

// NewGuard validates cfg and returns a Guard.
func NewGuard(cfg Config) (*Guard, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("csrf secret must be at least 32 bytes")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.SignedTTL <= 0 {
		cfg.SignedTTL = 24 * time.Hour
	}
	return &Guard{
		config: cfg,
		issued: make(map[string]time.Time),
		now:    time.Now,
	}, nil
}

// Issue returns a new high-entropy unsigned token and records its issue
// time for later single-use verification.
func (g *Guard) Issue() (string, error) {
	tok, err := internal.NewOpaqueToken()
	if err != nil {
		return "", err
	}

	now := g.now()

	g.mu.Lock()
	g.pruneLocked(now)
	g.issued[tok] = now
	g.mu.Unlock()

	return tok, nil
}

// Verify checks an unsigned token: it must be known and younger than
// MaxAge. The entry is removed on success and on staleness, so a token
// verifies at most once.
func (g *Guard) Verify(token string) bool {
	if token == "" {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	issuedAt, ok := g.issued[token]
	if !ok {
		return false
	}
	delete(g.issued, token)

	return g.now().Sub(issuedAt) <= g.config.MaxAge
}

// pruneLocked evicts stale entries; when the map is still over the cap
// afterwards, issuance proceeds anyway and the oldest entries simply fail
// verification once they age out.
func (g *Guard) pruneLocked(now time.Time) {
	if len(g.issued) < maxTracked {
		return
	}
	for tok, issuedAt := range g.issued {
		if now.Sub(issuedAt) > g.config.MaxAge {
			delete(g.issued, tok)
		}
	}
}

// IssueSigned returns a stateless signed token: token:expiry:signature,
// where signature = HMAC-SHA256(secret, token:expiry).
func (g *Guard) IssueSigned() (SignedToken, error) {
	tok, err := internal.NewOpaqueToken()
	if err != nil {
		return SignedToken{}, err
	}

	expiresAt := g.now().Add(g.config.SignedTTL)
	data := tok + ":" + strconv.FormatInt(expiresAt.Unix(), 10)

	return SignedToken{
		Token:     tok,
		Signed:    data + ":" + g.sign(data),
		ExpiresAt: expiresAt,
	}, nil
}

// VerifySigned recomputes the HMAC over token:expiry, compares it in
// constant time, then checks the embedded expiry. On success it returns the
// bare token.
func (g *Guard) VerifySigned(signed string) (string, error) {
	parts := strings.Split(signed, ":")
	if len(parts) != 3 {
		return "", ErrSignedTokenInvalid
	}
	tok, expiryStr, sig := parts[0], parts[1], parts[2]
	if tok == "" || expiryStr == "" || sig == "" {
		return "", ErrSignedTokenInvalid
	}

	expected := g.sign(tok + ":" + expiryStr)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		return "", ErrSignedTokenInvalid
	}

	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad expiry", ErrSignedTokenInvalid)
	}
	if g.now().Unix() > expiry {
		return "", ErrSignedTokenExpired
	}

	return tok, nil
}

func (g *Guard) sign(data string) string {
	mac := hmac.New(sha256.New, g.config.Secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
