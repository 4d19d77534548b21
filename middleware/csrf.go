package middleware

import (
	"net/http"
	"strings"

	"github.com/crestline-motors/adminauth"
)

const (
	// CSRFCookieName is the double-submit cookie.
	CSRFCookieName = "csrf_token"
	// CSRFHeaderName carries the token on state-changing requests.
	CSRFHeaderName = "X-CSRF-Token"
	// CSRFFormField is the fallback for classic form posts.
	CSRFFormField = "csrf_token"
)

// CSRFOptions configures the anti-forgery middleware.
type CSRFOptions struct {
	// Signed selects HMAC-signed tokens verifiable by any instance
	// sharing the secret. Unsigned tokens are single-use but tracked
	// in-process only.
	Signed bool
	// ExemptPaths skips verification for exact path matches, for
	// endpoints such as webhook receivers with their own authentication.
	ExemptPaths []string
	// CookieSecure sets the Secure flag on the issued cookie.
	CookieSecure bool
	// CookieMaxAge defaults to 24h.
	CookieMaxAge int
}

// CSRF returns double-submit middleware. Safe methods (GET, HEAD,
// OPTIONS) pass through and receive a token cookie when none is present;
// every other method must echo the cookie's token in the header or form
// field, and the token must verify against the engine.
func CSRF(engine *adminauth.Engine, opts CSRFOptions) func(http.Handler) http.Handler {
	if opts.CookieMaxAge <= 0 {
		opts.CookieMaxAge = 24 * 60 * 60
	}

	exempt := make(map[string]struct{}, len(opts.ExemptPaths))
	for _, p := range opts.ExemptPaths {
		exempt[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				ensureCookie(w, r, engine, opts)
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(CSRFCookieName)
			if err != nil || cookie.Value == "" {
				writeJSONError(w, http.StatusForbidden, "csrf validation failed")
				return
			}

			submitted := r.Header.Get(CSRFHeaderName)
			if submitted == "" {
				submitted = r.PostFormValue(CSRFFormField)
			}
			if submitted == "" || strings.TrimSpace(submitted) != strings.TrimSpace(cookie.Value) {
				writeJSONError(w, http.StatusForbidden, "csrf validation failed")
				return
			}

			if err := verifyToken(engine, submitted, opts.Signed); err != nil {
				writeJSONError(w, http.StatusForbidden, "csrf validation failed")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ensureCookie(w http.ResponseWriter, r *http.Request, engine *adminauth.Engine, opts CSRFOptions) {
	if cookie, err := r.Cookie(CSRFCookieName); err == nil && cookie.Value != "" {
		return
	}

	value, err := issueToken(engine, opts.Signed)
	if err != nil {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   opts.CookieMaxAge,
		Secure:   opts.CookieSecure,
		HttpOnly: false, // the front end must read it to echo the header
		SameSite: http.SameSiteLaxMode,
	})
}

func issueToken(engine *adminauth.Engine, signed bool) (string, error) {
	if signed {
		tok, err := engine.CSRFTokenSigned()
		if err != nil {
			return "", err
		}
		return tok.Signed, nil
	}
	return engine.CSRFToken()
}

func verifyToken(engine *adminauth.Engine, token string, signed bool) error {
	if signed {
		return engine.VerifyCSRFSigned(token)
	}
	return engine.VerifyCSRFToken(token)
}
