package rate

import "errors"

var (
	// ErrRateLimited indicates the identity has exhausted its budget for
	// the route class.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable indicates the counting backend is unreachable.
	ErrRedisUnavailable = errors.New("rate limit backend unavailable")
)
