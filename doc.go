// Package adminauth is the session security core for the dealership's
// admin back office. It composes JWT session tokens with Redis-backed
// revocation, a two-step login flow (password, then an emailed one-time
// code), per-account lockout, CSRF protection, and per-route-class rate
// limiting at a single request boundary.
//
// The package is the public surface: [Builder], [Engine], [Config], and the
// collaborator interfaces ([AdminProvider], [mail.Dispatcher]). The Redis
// key layout of the revocation registry lives under internal/ and is never
// exported; the rate limiter is public because its configuration and
// middleware hooks are part of the API.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. Validate in [ModeEdge] completes
// without a blocking dependency on Redis and is the hot path in front of
// every admin page request.
package adminauth
