package authflow

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/authflow/internal/audit"
	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/session"
	"github.com/MrEthical07/authflow/validate"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a [Coordinator]. Configure it during initialization, then
// call Build exactly once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	provider     IdentityProvider
	connectivity ConnectivityCheck
	backend      session.Backend
	logger       *slog.Logger
	auditSink    AuditSink
	caches       []DerivedCache
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithIdentityProvider sets the provider that verifies credentials. Required.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithConnectivity sets the network check consulted before every action.
// Without one the network is assumed available.
func (b *Builder) WithConnectivity(c ConnectivityCheck) *Builder {
	b.connectivity = c
	return b
}

// WithSessionBackend sets where the session record lives. It takes precedence
// over WithRedis and Config.Session.SQLitePath.
func (b *Builder) WithSessionBackend(backend session.Backend) *Builder {
	b.backend = backend
	return b
}

// WithRedis moves the rate limiter to Redis and, unless WithSessionBackend is
// also used, stores the session record in a Redis hash.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination. Events are only delivered when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithDerivedCache registers a cache that SignOut purges. May be called more
// than once.
func (b *Builder) WithDerivedCache(cache DerivedCache) *Builder {
	if cache != nil {
		b.caches = append(b.caches, cache)
	}
	return b
}

// WithClock replaces time.Now for rate limiting and audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a Coordinator in the Loading
// state. Call Start on it before use.
func (b *Builder) Build() (*Coordinator, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.provider == nil {
		return nil, errors.New("identity provider required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- RATE LIMITER --------
	var limiter rate.Limiter
	if b.redis != nil {
		limiter = rate.NewRedis(b.redis, cfg.RateLimit.RedisPrefix, cfg.RateLimit.longestWindow(), now)
	} else {
		limiter = rate.NewMemory(now)
	}

	// -------- SESSION STORE --------
	var closers []io.Closer
	backend := b.backend
	switch {
	case backend != nil:
	case b.redis != nil:
		backend = session.NewRedisBackend(b.redis, cfg.Session.RedisKey)
	case cfg.Session.SQLitePath != "":
		sqlite, err := session.OpenSQLiteBackend(cfg.Session.SQLitePath)
		if err != nil {
			return nil, err
		}
		backend = sqlite
		closers = append(closers, sqlite)
	default:
		backend = session.NewMemoryBackend()
	}

	c := &Coordinator{
		config: cfg,
		validator: validate.New(validate.Rules{
			IndiaOnlyPhone: cfg.Validation.IndiaOnlyPhone,
		}),
		limiter:  limiter,
		store:    session.NewStore(backend),
		provider: b.provider,
		network:  b.connectivity,
		caches:   append([]DerivedCache(nil), b.caches...),
		logger:   logger,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink, logger),
		metrics: NewMetrics(cfg.Metrics),
		now:     now,
		closers: closers,
		state:   newStateMachine(),
	}

	b.built = true

	return c, nil
}
