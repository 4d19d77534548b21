package adminauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/crestline-motors/adminauth/mail"
)

const (
	testEmail    = "admin@crestline.test"
	testPassword = "correct-horse-battery"
)

// fakeProvider is an in-memory AdminProvider with per-method error
// injection.
type fakeProvider struct {
	mu      sync.Mutex
	records map[string]*AdminRecord

	lookupErr error
	updateErr error
	codeErr   error
	clearErr  error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{records: make(map[string]*AdminRecord)}
}

func (p *fakeProvider) add(rec AdminRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := rec
	p.records[rec.ID] = &copied
}

func (p *fakeProvider) get(id string) AdminRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec, ok := p.records[id]; ok {
		return *rec
	}
	return AdminRecord{}
}

func (p *fakeProvider) GetByEmail(_ context.Context, email string) (AdminRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lookupErr != nil {
		return AdminRecord{}, p.lookupErr
	}
	for _, rec := range p.records {
		if rec.Email == email {
			return *rec, nil
		}
	}
	return AdminRecord{}, ErrAdminNotFound
}

func (p *fakeProvider) GetByID(_ context.Context, id string) (AdminRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lookupErr != nil {
		return AdminRecord{}, p.lookupErr
	}
	if rec, ok := p.records[id]; ok {
		return *rec, nil
	}
	return AdminRecord{}, ErrAdminNotFound
}

func (p *fakeProvider) UpdateLoginAttempts(_ context.Context, id string, failed int, lockedUntil *time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updateErr != nil {
		return p.updateErr
	}
	rec, ok := p.records[id]
	if !ok {
		return ErrAdminNotFound
	}
	rec.FailedAttempts = failed
	rec.LockedUntil = lockedUntil
	return nil
}

func (p *fakeProvider) SetVerificationCode(_ context.Context, id, code string, expiresAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.codeErr != nil {
		return p.codeErr
	}
	rec, ok := p.records[id]
	if !ok {
		return ErrAdminNotFound
	}
	rec.VerificationCode = code
	rec.CodeExpiresAt = &expiresAt
	return nil
}

func (p *fakeProvider) ClearVerificationCode(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clearErr != nil {
		return p.clearErr
	}
	rec, ok := p.records[id]
	if !ok {
		return ErrAdminNotFound
	}
	rec.VerificationCode = ""
	rec.CodeExpiresAt = nil
	return nil
}

// recordingMailer captures dispatched messages.
type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	sendErr  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func testHash(t *testing.T, plaintext string) string {
	t.Helper()
	// MinCost keeps the suite fast; Verify accepts any valid cost.
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	return string(hash)
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Verification.SyncDispatch = true
	cfg.Audit.Enabled = false
	return cfg
}

type testEnv struct {
	engine   *Engine
	redis    *miniredis.Miniredis
	provider *fakeProvider
	mailer   *recordingMailer
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := testConfig(t)
	for _, fn := range mutate {
		fn(&cfg)
	}

	provider := newFakeProvider()
	mailer := &recordingMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithAdminProvider(provider).
		WithMailer(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, redis: mr, provider: provider, mailer: mailer}
}

func (env *testEnv) addAdmin(t *testing.T) AdminRecord {
	t.Helper()
	rec := AdminRecord{
		ID:           "adm-1",
		Email:        testEmail,
		PasswordHash: testHash(t, testPassword),
		Role:         "admin",
		Permissions:  []string{"inventory.write", "leads.read"},
		Active:       true,
	}
	env.provider.add(rec)
	return rec
}

// completeLogin drives the full two-step flow and returns the token pair.
func (env *testEnv) completeLogin(t *testing.T) *TokenPair {
	t.Helper()
	ctx := context.Background()

	res, err := env.engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.State != StateAwaitingVerification {
		t.Fatalf("Login state = %v, want StateAwaitingVerification", res.State)
	}

	code := env.provider.get("adm-1").VerificationCode
	if code == "" {
		t.Fatal("no verification code persisted")
	}

	verified, err := env.engine.VerifyCode(ctx, testEmail, code)
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if verified.State != StateSessionIssued || verified.Tokens == nil {
		t.Fatalf("VerifyCode state = %v, tokens = %v", verified.State, verified.Tokens)
	}
	return verified.Tokens
}
