package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Class names a route class with an independent budget.
type Class string

const (
	// ClassLogin covers admin credential submissions.
	ClassLogin Class = "login"
	// ClassResend covers verification-code resend requests.
	ClassResend Class = "resend"
	// ClassContact covers public contact-form submissions.
	ClassContact Class = "contact"
	// ClassAPI covers generic authenticated admin API traffic.
	ClassAPI Class = "api"
)

// ClassConfig holds one route class's window, budget, and outage policy.
// FailOpen admits traffic when Redis is unreachable; high-risk classes keep
// it false so a degraded counting store never grants unlimited attempts.
type ClassConfig struct {
	Window   time.Duration
	Max      int
	FailOpen bool
}

// Config holds the per-class budgets.
type Config struct {
	Login   ClassConfig
	Resend  ClassConfig
	Contact ClassConfig
	API     ClassConfig
}

// DefaultConfig returns the production budgets.
func DefaultConfig() Config {
	return Config{
		Login:   ClassConfig{Window: 15 * time.Minute, Max: 10, FailOpen: false},
		Resend:  ClassConfig{Window: 10 * time.Minute, Max: 3, FailOpen: false},
		Contact: ClassConfig{Window: time.Hour, Max: 20, FailOpen: true},
		API:     ClassConfig{Window: time.Minute, Max: 120, FailOpen: true},
	}
}

// Result is the outcome of one budget check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per (identity, class) key in Redis using atomic
// increment-with-expiry, so concurrent requests from the same key never race
// between check and increment.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	prefix string
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: redisClient, config: cfg, prefix: "arl"}
}

func (l *Limiter) classConfig(class Class) ClassConfig {
	switch class {
	case ClassLogin:
		return l.config.Login
	case ClassResend:
		return l.config.Resend
	case ClassContact:
		return l.config.Contact
	default:
		return l.config.API
	}
}

func (l *Limiter) key(class Class, identity string) string {
	return l.prefix + ":" + string(class) + ":" + identity
}

// Allow consumes one unit of the identity's budget for the class. On a
// backend error the returned Result reflects the class's fail-open policy
// and the error is still returned so the caller can log it.
func (l *Limiter) Allow(ctx context.Context, class Class, identity string) (Result, error) {
	cfg := l.classConfig(class)
	if cfg.Max <= 0 || identity == "" {
		return Result{Allowed: true}, nil
	}

	key := l.key(class, identity)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return Result{Allowed: cfg.FailOpen}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: the first hit in a window sets the TTL.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, cfg.Window).Err(); err != nil {
			return Result{Allowed: cfg.FailOpen}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(cfg.Max) {
		retryAfter := cfg.Window
		if ttl, err := l.redis.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			retryAfter = ttl
		}
		return Result{Allowed: false, RetryAfter: retryAfter}, nil
	}

	return Result{Allowed: true, Remaining: cfg.Max - int(count)}, nil
}

// Reset clears the identity's counter for the class. Called after a
// completed login so a legitimate admin starts the next window clean.
func (l *Limiter) Reset(ctx context.Context, class Class, identity string) error {
	if identity == "" {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(class, identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
