// Package middleware provides net/http middleware around the auth engine:
// session guarding with CSP nonces, double-submit CSRF protection, and
// per-route-class rate limiting.
package middleware
