package adminhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/crestline-motors/adminauth"
)

const (
	testEmail    = "admin@crestline.test"
	testPassword = "correct-horse-battery"
)

type memProvider struct {
	mu  sync.Mutex
	rec adminauth.AdminRecord
}

func (p *memProvider) GetByEmail(_ context.Context, email string) (adminauth.AdminRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec.Email != email {
		return adminauth.AdminRecord{}, adminauth.ErrAdminNotFound
	}
	return p.rec, nil
}

func (p *memProvider) GetByID(_ context.Context, id string) (adminauth.AdminRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec.ID != id {
		return adminauth.AdminRecord{}, adminauth.ErrAdminNotFound
	}
	return p.rec, nil
}

func (p *memProvider) UpdateLoginAttempts(_ context.Context, _ string, failed int, lockedUntil *time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec.FailedAttempts = failed
	p.rec.LockedUntil = lockedUntil
	return nil
}

func (p *memProvider) SetVerificationCode(_ context.Context, _ string, code string, expiresAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec.VerificationCode = code
	p.rec.CodeExpiresAt = &expiresAt
	return nil
}

func (p *memProvider) ClearVerificationCode(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec.VerificationCode = ""
	p.rec.CodeExpiresAt = nil
	return nil
}

func (p *memProvider) code() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rec.VerificationCode
}

type testServer struct {
	mux      *http.ServeMux
	engine   *adminauth.Engine
	provider *memProvider
}

func newTestServer(t *testing.T, mutate ...func(*adminauth.Config)) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}

	provider := &memProvider{rec: adminauth.AdminRecord{
		ID:           "adm-1",
		Email:        testEmail,
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

	mux := http.NewServeMux()
	NewHandler(engine, Options{}).Register(mux)

	return &testServer{mux: mux, engine: engine, provider: provider}
}

func (s *testServer) post(t *testing.T, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("Unmarshal %q: %v", rec.Body.String(), err)
	}
	return out
}

func sessionCookies(t *testing.T, rec *httptest.ResponseRecorder) (access, refresh *http.Cookie) {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		switch cookie.Name {
		case "admin_access_token":
			access = cookie
		case "admin_refresh_token":
			refresh = cookie
		}
	}
	return access, refresh
}

func TestLoginFlowEndToEnd(t *testing.T) {
	s := newTestServer(t)

	loginRec := s.post(t, "/admin/api/login", loginRequest{Email: testEmail, Password: testPassword})
	if loginRec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", loginRec.Code, loginRec.Body)
	}
	body := decodeBody(t, loginRec)
	if body["success"] != true || body["requiresEmailVerification"] != true {
		t.Fatalf("login body = %v", body)
	}
	if access, _ := sessionCookies(t, loginRec); access != nil {
		t.Fatal("session cookie set before verification")
	}

	verifyRec := s.post(t, "/admin/api/login/verify", verifyRequest{Email: testEmail, Code: s.provider.code()})
	if verifyRec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body %s", verifyRec.Code, verifyRec.Body)
	}
	access, refresh := sessionCookies(t, verifyRec)
	if access == nil || access.Value == "" {
		t.Fatal("access cookie missing after verify")
	}
	if refresh == nil || refresh.Value == "" {
		t.Fatal("refresh cookie missing after verify")
	}
	if !access.HttpOnly {
		t.Fatal("access cookie must be HttpOnly")
	}

	if _, err := s.engine.Validate(context.Background(), access.Value, adminauth.ModeStrict); err != nil {
		t.Fatalf("issued access token does not validate: %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	s := newTestServer(t)

	rec := s.post(t, "/admin/api/login", loginRequest{Email: testEmail, Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "invalid credentials" {
		t.Fatalf("body = %v", body)
	}
}

func TestLoginLockoutResponse(t *testing.T) {
	s := newTestServer(t)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 5; i++ {
		rec = s.post(t, "/admin/api/login", loginRequest{Email: testEmail, Password: "wrong"})
	}
	if rec.Code != http.StatusLocked {
		t.Fatalf("status = %d, want 423", rec.Code)
	}
	body := decodeBody(t, rec)
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "try again in ~15 minutes") {
		t.Fatalf("error = %q", msg)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
}

func TestLoginRateLimitedResponse(t *testing.T) {
	s := newTestServer(t, func(cfg *adminauth.Config) {
		cfg.RateLimit.Login.Max = 2
	})

	for i := 0; i < 2; i++ {
		s.post(t, "/admin/api/login", loginRequest{Email: testEmail, Password: "wrong"})
	}
	rec := s.post(t, "/admin/api/login", loginRequest{Email: testEmail, Password: testPassword})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
}

func TestVerifyWrongCode(t *testing.T) {
	s := newTestServer(t)

	s.post(t, "/admin/api/login", loginRequest{Email: testEmail, Password: testPassword})

	rec := s.post(t, "/admin/api/login/verify", verifyRequest{Email: testEmail, Code: "000000"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if access, _ := sessionCookies(t, rec); access != nil {
		t.Fatal("session cookie set for wrong code")
	}
}

func TestResendAlwaysSucceeds(t *testing.T) {
	s := newTestServer(t)

	rec := s.post(t, "/admin/api/login/resend", resendRequest{Email: "nobody@crestline.test"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for unknown email", rec.Code)
	}
}

func TestLogoutClearsCookiesAndRevokes(t *testing.T) {
	s := newTestServer(t)

	s.post(t, "/admin/api/login", loginRequest{Email: testEmail, Password: testPassword})
	verifyRec := s.post(t, "/admin/api/login/verify", verifyRequest{Email: testEmail, Code: s.provider.code()})
	access, refresh := sessionCookies(t, verifyRec)

	logoutRec := s.post(t, "/admin/api/logout", map[string]any{}, access, refresh)
	if logoutRec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", logoutRec.Code)
	}

	clearedAccess, clearedRefresh := sessionCookies(t, logoutRec)
	if clearedAccess == nil || clearedAccess.Value != "" || clearedAccess.MaxAge >= 0 {
		t.Fatalf("access cookie not cleared: %+v", clearedAccess)
	}
	if clearedRefresh == nil || clearedRefresh.Value != "" {
		t.Fatalf("refresh cookie not cleared: %+v", clearedRefresh)
	}

	if _, err := s.engine.Validate(context.Background(), access.Value, adminauth.ModeStrict); err == nil {
		t.Fatal("access token still valid after logout")
	}
}

func TestRefreshRotatesCookies(t *testing.T) {
	s := newTestServer(t)

	s.post(t, "/admin/api/login", loginRequest{Email: testEmail, Password: testPassword})
	verifyRec := s.post(t, "/admin/api/login/verify", verifyRequest{Email: testEmail, Code: s.provider.code()})
	_, refresh := sessionCookies(t, verifyRec)

	refreshRec := s.post(t, "/admin/api/refresh", map[string]any{}, refresh)
	if refreshRec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body %s", refreshRec.Code, refreshRec.Body)
	}
	newAccess, newRefresh := sessionCookies(t, refreshRec)
	if newAccess == nil || newRefresh == nil {
		t.Fatal("rotated cookies missing")
	}
	if newRefresh.Value == refresh.Value {
		t.Fatal("refresh token not rotated")
	}

	// The spent refresh token no longer works.
	replayRec := s.post(t, "/admin/api/refresh", map[string]any{}, refresh)
	if replayRec.Code != http.StatusUnauthorized {
		t.Fatalf("replay status = %d, want 401", replayRec.Code)
	}
}

func TestRefreshWithoutCookie(t *testing.T) {
	s := newTestServer(t)

	rec := s.post(t, "/admin/api/refresh", map[string]any{})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCSRFTokenEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/api/csrf", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	token, _ := body["csrfToken"].(string)
	if token == "" {
		t.Fatalf("body = %v", body)
	}
	if err := s.engine.VerifyCSRFToken(token); err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
}

func TestMalformedJSONRejected(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/api/login", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
