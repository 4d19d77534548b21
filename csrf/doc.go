// Package csrf issues and verifies anti-forgery tokens for the admin back
// office. Two representations coexist: a single-use unsigned token tracked
// in a process-local map, and a self-contained signed token
// (token:expiry:signature) verifiable without server state. The signed form
// is the one to use behind more than one instance; the map cannot be shared
// across processes.
package csrf
