// Package adminhttp exposes the login flow over HTTP: JSON endpoints for
// credential submission, code verification and resend, session refresh,
// logout, and CSRF token issuance, with the session carried in cookies.
package adminhttp
