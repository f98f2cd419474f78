package goSession

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/goSession/credential"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a Client. Configure it during initialization; a
// Builder can produce exactly one Client.
type Builder struct {
	config Config

	store     credential.Store
	redis     redis.UniversalClient
	base      http.RoundTripper
	logger    *slog.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithBaseURL overrides Config.BaseURL.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.BaseURL = baseURL
	return b
}

// WithStore injects a credential store and bypasses Config.Store.
func (b *Builder) WithStore(store credential.Store) *Builder {
	b.store = store
	return b
}

// WithRedis supplies the client used by the redis store backend. Without
// it, Build dials Config.Store.RedisAddr and the Client owns the
// connection.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithBaseTransport sets the round tripper beneath the authorization
// pipeline. http.DefaultTransport when unset.
func (b *Builder) WithBaseTransport(rt http.RoundTripper) *Builder {
	b.base = rt
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
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

// Build validates the configuration and returns a Client in Booting. Call
// Client.Initialize to resolve it.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// -------- CREDENTIAL STORE --------
	store := b.store
	var closers []func() error
	if store == nil {
		var err error
		store, closers, err = b.buildStore(cfg.Store)
		if err != nil {
			return nil, err
		}
	}

	c, err := newClient(cfg, store, b.base, logger, b.auditSink)
	if err != nil {
		for _, fn := range closers {
			_ = fn()
		}
		return nil, err
	}
	c.closers = closers

	b.built = true
	return c, nil
}

func (b *Builder) buildStore(cfg StoreConfig) (credential.Store, []func() error, error) {
	switch cfg.Backend {
	case StoreFile:
		return credential.NewFileStore(cfg.FilePath), nil, nil

	case StoreRedis:
		rdb := b.redis
		var closers []func() error
		if rdb == nil {
			rdb = redis.NewUniversalClient(&redis.UniversalOptions{
				Addrs: []string{cfg.RedisAddr},
			})
			closers = append(closers, rdb.Close)
		}
		return credential.NewRedisStore(rdb, cfg.RedisPrefix, cfg.RedisKey, cfg.RedisTTL), closers, nil

	case StoreMemory, "":
		return credential.NewMemoryStore(), nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, cfg.Backend)
	}
}
