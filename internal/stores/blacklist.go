package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBlacklistUnavailable indicates the revocation backend is unreachable.
// Callers decide whether that denies or admits the request; this package
// only reports it.
var ErrBlacklistUnavailable = errors.New("revocation backend unavailable")

// BlacklistStore records revoked token IDs (jti) until their natural expiry.
// The Redis TTL mirrors the token's exp claim, so a revocation record can
// never outlive the token it revokes.
type BlacklistStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewBlacklistStore creates a BlacklistStore on the given Redis client.
func NewBlacklistStore(redisClient redis.UniversalClient, prefix string) *BlacklistStore {
	if prefix == "" {
		prefix = "rvk"
	}
	return &BlacklistStore{redis: redisClient, prefix: prefix}
}

func (s *BlacklistStore) key(jti string) string {
	return s.prefix + ":" + jti
}

// Blacklist marks jti as revoked until expiresAtUnix. A token already past
// its expiry needs no record; the expiry check rejects it on its own.
func (s *BlacklistStore) Blacklist(ctx context.Context, jti string, expiresAtUnix int64) error {
	if jti == "" {
		return nil
	}

	ttl := time.Until(time.Unix(expiresAtUnix, 0))
	if ttl <= 0 {
		return nil
	}

	if err := s.redis.Set(ctx, s.key(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBlacklistUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether jti has been revoked. An absent key means
// not revoked.
func (s *BlacklistStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}

	n, err := s.redis.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBlacklistUnavailable, err)
	}
	return n > 0, nil
}
