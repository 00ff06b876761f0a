package cache

import (
	"fmt"

	"github.com/serialtrack/backend/internal/application/report"
	"go.uber.org/zap"
)

// Factory creates report caches based on configuration.
type Factory struct {
	redisConfig           RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory.
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory.
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-process
// cache when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a cache factory.
func NewFactory(cfg RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns a Redis-backed cache when Redis is configured and
// reachable, otherwise the in-process cache if fallback is allowed.
func (f *Factory) Create() (report.Cache, error) {
	if f.redisConfig.Host == "" {
		f.logger.Info("no Redis configured, using in-memory report cache")
		return NewMemoryCache(), nil
	}

	redisCache, err := NewRedisCache(f.redisConfig)
	if err == nil {
		f.logger.Info("using Redis report cache",
			zap.String("host", f.redisConfig.Host),
			zap.Int("port", f.redisConfig.Port))
		return redisCache, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis report cache: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory report cache",
		zap.Error(err))
	return NewMemoryCache(), nil
}
