package adminauth

import (
	"errors"
	"testing"
)

func TestEngineCSRFSingleUse(t *testing.T) {
	env := newTestEnv(t)

	tok, err := env.engine.CSRFToken()
	if err != nil {
		t.Fatalf("CSRFToken: %v", err)
	}

	if err := env.engine.VerifyCSRFToken(tok); err != nil {
		t.Fatalf("first VerifyCSRFToken: %v", err)
	}
	if err := env.engine.VerifyCSRFToken(tok); !errors.Is(err, ErrCSRFInvalid) {
		t.Fatalf("replay = %v, want ErrCSRFInvalid", err)
	}
}

func TestEngineCSRFSigned(t *testing.T) {
	env := newTestEnv(t)

	signed, err := env.engine.CSRFTokenSigned()
	if err != nil {
		t.Fatalf("CSRFTokenSigned: %v", err)
	}

	// Signed tokens are stateless: repeated verification passes.
	for i := 0; i < 2; i++ {
		if err := env.engine.VerifyCSRFSigned(signed.Signed); err != nil {
			t.Fatalf("VerifyCSRFSigned #%d: %v", i+1, err)
		}
	}

	if err := env.engine.VerifyCSRFSigned(signed.Signed + "00"); !errors.Is(err, ErrCSRFInvalid) {
		t.Fatalf("tampered = %v, want ErrCSRFInvalid", err)
	}
}
