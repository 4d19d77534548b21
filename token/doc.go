// Package token encodes, signs, and verifies the compact session tokens
// used by the admin back office. It is pure: a token is a function of the
// claims, the shared signing secret, and the clock. Revocation is layered
// on top by the engine, never here.
package token
