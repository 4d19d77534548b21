package adminauth

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/crestline-motors/adminauth/csrf"
	"github.com/crestline-motors/adminauth/internal/stores"
	"github.com/crestline-motors/adminauth/mail"
	"github.com/crestline-motors/adminauth/password"
	"github.com/crestline-motors/adminauth/rate"
	"github.com/crestline-motors/adminauth/token"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until the first Engine call.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	provider  AdminProvider
	mailer    mail.Dispatcher
	auditSink AuditSink

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client backing the revocation registry and the
// rate limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAdminProvider sets the admin-user store.
func (b *Builder) WithAdminProvider(p AdminProvider) *Builder {
	b.provider = p
	return b
}

// WithMailer sets the verification-code dispatcher. Defaults to
// [mail.NoOpDispatcher] when unset.
func (b *Builder) WithMailer(d mail.Dispatcher) *Builder {
	b.mailer = d
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, wires the components, and returns the
// Engine. A Builder builds at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.provider == nil {
		return nil, errors.New("admin provider is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		Secret:       b.config.JWT.Secret,
		Issuer:       b.config.JWT.Issuer,
		Leeway:       b.config.JWT.Leeway,
		MaxFutureIAT: b.config.JWT.MaxFutureIAT,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(b.config.Password)
	if err != nil {
		return nil, err
	}

	csrfCfg := b.config.CSRF
	if len(csrfCfg.Secret) == 0 {
		// The CSRF secret is independent of the JWT secret unless the
		// deployment provides only one.
		csrfCfg.Secret = b.config.JWT.Secret
	}
	guard, err := csrf.NewGuard(csrfCfg)
	if err != nil {
		return nil, err
	}

	mailer := b.mailer
	if mailer == nil {
		mailer = mail.NoOpDispatcher{}
	}

	b.built = true
	return &Engine{
		config:    b.config,
		tokens:    tokens,
		hasher:    hasher,
		csrf:      guard,
		blacklist: stores.NewBlacklistStore(b.redis, "rvk"),
		limiter:   rate.New(b.redis, b.config.RateLimit),
		provider:  b.provider,
		mailer:    mailer,
		audit:     newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics:   newMetrics(b.config.Metrics),
	}, nil
}
