package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/crestline-motors/adminauth"
	"github.com/crestline-motors/adminauth/internal"
)

type authResultContextKey struct{}
type nonceContextKey struct{}

// GuardOptions configures the session guard.
type GuardOptions struct {
	// Mode selects strict or edge token validation. Edge skips hard
	// revocation checks when the registry is unreachable; use it only in
	// front-line contexts where the main server re-validates strictly.
	Mode adminauth.VerifyMode
	// CookieName is the session cookie to read. Defaults to
	// "admin_access_token".
	CookieName string
	// LoginPath is where unauthenticated page requests are redirected.
	// Defaults to "/admin/login".
	LoginPath string
	// RedirectOnFailure redirects to LoginPath instead of returning 401.
	// Meant for page routes; API routes should leave it off.
	RedirectOnFailure bool
	// ContentSecurityPolicy, when non-empty, is set on every guarded
	// response with %s replaced by the per-request nonce.
	ContentSecurityPolicy string
}

// Guard returns middleware that authenticates requests via the session
// cookie (or a bearer Authorization header) and stores the result in the
// request context. A fresh CSP nonce is generated per request and exposed
// through [NonceFromContext] so templates can whitelist inline scripts.
func Guard(engine *adminauth.Engine, opts GuardOptions) func(http.Handler) http.Handler {
	if opts.CookieName == "" {
		opts.CookieName = "admin_access_token"
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/admin/login"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := adminauth.WithClientIP(r.Context(), ClientIP(r))

			raw := tokenFromRequest(r, opts.CookieName)
			if raw == "" {
				deny(w, r, opts, http.StatusUnauthorized)
				return
			}

			auth, err := engine.Validate(ctx, raw, opts.Mode)
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, adminauth.ErrDependencyUnavailable) {
					status = http.StatusServiceUnavailable
				}
				deny(w, r, opts, status)
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, auth)

			if nonce, err := internal.NewNonce(); err == nil {
				ctx = context.WithValue(ctx, nonceContextKey{}, nonce)
				if opts.ContentSecurityPolicy != "" {
					w.Header().Set("Content-Security-Policy", cspWithNonce(opts.ContentSecurityPolicy, nonce))
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireStrict is Guard with strict validation and 401 denials, the
// setup for the main admin API.
func RequireStrict(engine *adminauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, GuardOptions{Mode: adminauth.ModeStrict})
}

// RequireEdge is Guard with edge validation and login redirects, the
// setup for front-line page serving.
func RequireEdge(engine *adminauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, GuardOptions{Mode: adminauth.ModeEdge, RedirectOnFailure: true})
}

// RequirePermission returns middleware that rejects authenticated sessions
// lacking perm with 403. It must run inside Guard.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := AuthResultFromContext(r.Context())
			if !auth.HasPermission(perm) {
				writeJSONError(w, http.StatusForbidden, "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthResultFromContext returns the identity stored by Guard, or nil.
func AuthResultFromContext(ctx context.Context) *adminauth.AuthResult {
	auth, _ := ctx.Value(authResultContextKey{}).(*adminauth.AuthResult)
	return auth
}

// NonceFromContext returns the per-request CSP nonce stored by Guard.
func NonceFromContext(ctx context.Context) string {
	nonce, _ := ctx.Value(nonceContextKey{}).(string)
	return nonce
}

func deny(w http.ResponseWriter, r *http.Request, opts GuardOptions, status int) {
	if opts.RedirectOnFailure && status == http.StatusUnauthorized {
		http.Redirect(w, r, opts.LoginPath, http.StatusFound)
		return
	}
	writeJSONError(w, status, http.StatusText(status))
}

func tokenFromRequest(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, prefix) {
		return auth[len(prefix):]
	}
	return ""
}

func cspWithNonce(policy, nonce string) string {
	return strings.ReplaceAll(policy, "%s", nonce)
}
