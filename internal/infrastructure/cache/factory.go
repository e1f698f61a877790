package cache

import (
	"fmt"

	"github.com/loyalty/backend/internal/domain/point"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// StoreFactory creates balance cache and idempotency stores based on
// configuration: Redis when enabled and reachable, in-memory otherwise.
type StoreFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// StoreFactoryOption is a functional option for configuring the factory
type StoreFactoryOption func(*StoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory stores
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewStoreFactory creates a new factory
func NewStoreFactory(cfg config.RedisConfig, opts ...StoreFactoryOption) *StoreFactory {
	f := &StoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (f *StoreFactory) redisSettings() RedisConfig {
	return RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}
}

// CreateBalanceStore creates the member balance cache. When Redis is
// disabled in configuration, the in-memory store is used directly.
func (f *StoreFactory) CreateBalanceStore() (point.MemberBalanceStore, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("using in-memory balance store")
		return NewInMemoryBalanceStore(), nil
	}

	store, err := NewRedisBalanceStore(f.redisSettings())
	if err == nil {
		f.logger.Info("using Redis balance store")
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for balance cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory balance store. "+
		"Balances will not be shared across instances.",
		zap.Error(err),
	)
	return NewInMemoryBalanceStore(), nil
}

// CreateIdempotencyStore creates the event dedup store along the same rules
func (f *StoreFactory) CreateIdempotencyStore() (shared.IdempotencyStore, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("using in-memory idempotency store")
		return NewInMemoryIdempotencyStore(), nil
	}

	store, err := NewRedisIdempotencyStore(f.redisSettings())
	if err == nil {
		f.logger.Info("using Redis idempotency store")
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for idempotency but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store. "+
		"This may cause duplicate event processing in distributed deployments.",
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(), nil
}
