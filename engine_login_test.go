package adminauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crestline-motors/adminauth/mail"
)

func TestLoginSuccessIssuesCode(t *testing.T) {
	env := newTestEnv(t)
	env.addAdmin(t)

	res, err := env.engine.Login(context.Background(), "  Admin@Crestline.TEST ", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.State != StateAwaitingVerification {
		t.Fatalf("state = %v, want StateAwaitingVerification", res.State)
	}
	if !res.RequiresEmailVerification() {
		t.Fatal("RequiresEmailVerification() = false")
	}
	if res.Tokens != nil {
		t.Fatal("tokens issued before verification")
	}

	rec := env.provider.get("adm-1")
	if len(rec.VerificationCode) != 6 {
		t.Fatalf("code length = %d, want 6", len(rec.VerificationCode))
	}
	if rec.CodeExpiresAt == nil || time.Until(*rec.CodeExpiresAt) <= 0 {
		t.Fatalf("code expiry = %v", rec.CodeExpiresAt)
	}

	sent := env.mailer.sent()
	if len(sent) != 1 {
		t.Fatalf("messages sent = %d, want 1", len(sent))
	}
	if sent[0].To != testEmail || sent[0].Code != rec.VerificationCode {
		t.Fatalf("message = %+v", sent[0])
	}
	if sent[0].Purpose != mail.PurposeLoginCode {
		t.Fatalf("purpose = %q", sent[0].Purpose)
	}
}

func TestLoginUnknownEmailMatchesWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.addAdmin(t)
	ctx := context.Background()

	unknown, err := env.engine.Login(ctx, "nobody@crestline.test", testPassword)
	if err != nil {
		t.Fatalf("Login unknown: %v", err)
	}
	wrong, err := env.engine.Login(ctx, testEmail, "not-the-password")
	if err != nil {
		t.Fatalf("Login wrong password: %v", err)
	}

	if unknown.State != StateCredentialsRejected || wrong.State != StateCredentialsRejected {
		t.Fatalf("states = %v / %v, want both StateCredentialsRejected", unknown.State, wrong.State)
	}
	if unknown.Diagnostic != "" || wrong.Diagnostic != "" {
		t.Fatalf("diagnostics leaked without debug: %q / %q", unknown.Diagnostic, wrong.Diagnostic)
	}
}

func TestLoginInactiveAccountRejected(t *testing.T) {
	env := newTestEnv(t)
	rec := env.addAdmin(t)
	rec.Active = false
	env.provider.add(rec)

	res, err := env.engine.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.State != StateCredentialsRejected {
		t.Fatalf("state = %v, want StateCredentialsRejected", res.State)
	}
	if env.provider.get("adm-1").VerificationCode != "" {
		t.Fatal("code issued for inactive account")
	}
}

func TestLoginLockoutAfterThreshold(t *testing.T) {
	env := newTestEnv(t)
	env.addAdmin(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		res, err := env.engine.Login(ctx, testEmail, "not-the-password")
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if res.State != StateCredentialsRejected {
			t.Fatalf("attempt %d state = %v", i+1, res.State)
		}
	}

	fifth, err := env.engine.Login(ctx, testEmail, "not-the-password")
	if err != nil {
		t.Fatalf("attempt 5: %v", err)
	}
	if fifth.State != StateLockedOut {
		t.Fatalf("attempt 5 state = %v, want StateLockedOut", fifth.State)
	}
	if fifth.RetryAfter <= 0 {
		t.Fatalf("RetryAfter = %v, want positive", fifth.RetryAfter)
	}

	// The correct password is also rejected while locked.
	sixth, err := env.engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("attempt 6: %v", err)
	}
	if sixth.State != StateLockedOut {
		t.Fatalf("attempt 6 state = %v, want StateLockedOut", sixth.State)
	}

	rec := env.provider.get("adm-1")
	if rec.LockedUntil == nil {
		t.Fatal("LockedUntil not persisted")
	}
	if rec.FailedAttempts != 0 {
		t.Fatalf("FailedAttempts = %d, want 0 after lock", rec.FailedAttempts)
	}
}

func TestLoginExpiredLockoutAdmitsAndResets(t *testing.T) {
	env := newTestEnv(t)
	rec := env.addAdmin(t)
	past := time.Now().Add(-time.Minute)
	rec.LockedUntil = &past
	rec.FailedAttempts = 0
	env.provider.add(rec)

	res, err := env.engine.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.State != StateAwaitingVerification {
		t.Fatalf("state = %v, want StateAwaitingVerification", res.State)
	}
	if env.provider.get("adm-1").LockedUntil != nil {
		t.Fatal("stale LockedUntil not cleared")
	}
}

func TestLoginSuccessResetsFailedAttempts(t *testing.T) {
	env := newTestEnv(t)
	env.addAdmin(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Login(ctx, testEmail, "not-the-password"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if got := env.provider.get("adm-1").FailedAttempts; got != 3 {
		t.Fatalf("FailedAttempts = %d, want 3", got)
	}

	if _, err := env.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got := env.provider.get("adm-1").FailedAttempts; got != 0 {
		t.Fatalf("FailedAttempts = %d, want 0 after success", got)
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.Login.Max = 3
	})
	env.addAdmin(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Login(ctx, testEmail, "not-the-password"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}

	_, err := env.engine.Login(ctx, testEmail, testPassword)
	if !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("err = %v, want ErrLoginRateLimited", err)
	}

	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("err type = %T, want *RateLimitError", err)
	}
	if rle.RetryAfter <= 0 {
		t.Fatalf("RetryAfter = %v, want positive", rle.RetryAfter)
	}
}

func TestLoginRateLimitFailClosedOnOutage(t *testing.T) {
	env := newTestEnv(t)
	env.addAdmin(t)

	env.redis.Close()

	_, err := env.engine.Login(context.Background(), testEmail, testPassword)
	if !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("err = %v, want ErrLoginRateLimited during outage", err)
	}
}

func TestLoginMailFailureDoesNotLoseCode(t *testing.T) {
	env := newTestEnv(t)
	env.addAdmin(t)
	env.mailer.sendErr = errors.New("smtp down")

	res, err := env.engine.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.State != StateAwaitingVerification {
		t.Fatalf("state = %v, want StateAwaitingVerification", res.State)
	}
	if env.provider.get("adm-1").VerificationCode == "" {
		t.Fatal("code rolled back on mail failure")
	}
}

func TestLoginDebugDiagnostics(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Security.Debug = true
	})
	env.addAdmin(t)

	res, err := env.engine.Login(context.Background(), testEmail, "not-the-password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Diagnostic != "password_mismatch" {
		t.Fatalf("Diagnostic = %q, want password_mismatch", res.Diagnostic)
	}
}
