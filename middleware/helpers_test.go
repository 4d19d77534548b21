package middleware

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/crestline-motors/adminauth"
)

const (
	stubEmail    = "admin@crestline.test"
	stubPassword = "correct-horse-battery"
)

// stubProvider holds a single admin record.
type stubProvider struct {
	mu  sync.Mutex
	rec adminauth.AdminRecord
}

func (p *stubProvider) GetByEmail(_ context.Context, email string) (adminauth.AdminRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec.Email != email {
		return adminauth.AdminRecord{}, adminauth.ErrAdminNotFound
	}
	return p.rec, nil
}

func (p *stubProvider) GetByID(_ context.Context, id string) (adminauth.AdminRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec.ID != id {
		return adminauth.AdminRecord{}, adminauth.ErrAdminNotFound
	}
	return p.rec, nil
}

func (p *stubProvider) UpdateLoginAttempts(_ context.Context, _ string, failed int, lockedUntil *time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec.FailedAttempts = failed
	p.rec.LockedUntil = lockedUntil
	return nil
}

func (p *stubProvider) SetVerificationCode(_ context.Context, _ string, code string, expiresAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec.VerificationCode = code
	p.rec.CodeExpiresAt = &expiresAt
	return nil
}

func (p *stubProvider) ClearVerificationCode(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec.VerificationCode = ""
	p.rec.CodeExpiresAt = nil
	return nil
}

func (p *stubProvider) code() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rec.VerificationCode
}

func newTestEngine(t *testing.T, mutate ...func(*adminauth.Config)) (*adminauth.Engine, *stubProvider) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(stubPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}

	provider := &stubProvider{rec: adminauth.AdminRecord{
		ID:           "adm-1",
		Email:        stubEmail,
		PasswordHash: string(hash),
		Role:         "admin",
		Permissions:  []string{"inventory.write"},
		Active:       true,
	}}

	cfg := adminauth.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Verification.SyncDispatch = true
	cfg.Audit.Enabled = false
	for _, fn := range mutate {
		fn(&cfg)
	}

	engine, err := adminauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAdminProvider(provider).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, provider
}

func loginTokens(t *testing.T, engine *adminauth.Engine, provider *stubProvider) *adminauth.TokenPair {
	t.Helper()
	ctx := context.Background()

	res, err := engine.Login(ctx, stubEmail, stubPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.State != adminauth.StateAwaitingVerification {
		t.Fatalf("Login state = %v", res.State)
	}

	verified, err := engine.VerifyCode(ctx, stubEmail, provider.code())
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if verified.Tokens == nil {
		t.Fatalf("VerifyCode state = %v, no tokens", verified.State)
	}
	return verified.Tokens
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
