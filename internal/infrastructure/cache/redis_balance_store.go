package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/loyalty/backend/internal/domain/point"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
)

const balanceKeyPrefix = "loyalty:balance:"

// cachedBalance is the JSON shape stored in Redis
type cachedBalance struct {
	MemberID  uuid.UUID         `json:"member_id"`
	Total     valueobject.Money `json:"total"`
	Available valueobject.Money `json:"available"`
	Expired   valueobject.Money `json:"expired"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// RedisBalanceStore implements MemberBalanceStore using Redis. This is the
// shared fast-read projection for distributed deployments; it is never the
// source of truth, so any failure here is recoverable by reconciliation.
type RedisBalanceStore struct {
	client *redis.Client
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisBalanceStore creates a Redis-backed balance store
func NewRedisBalanceStore(cfg RedisConfig) (*RedisBalanceStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBalanceStore{client: client}, nil
}

// NewRedisBalanceStoreWithClient creates a store with an existing Redis client
func NewRedisBalanceStoreWithClient(client *redis.Client) *RedisBalanceStore {
	return &RedisBalanceStore{client: client}
}

// Find returns the cached balance, or shared.ErrNotFound
func (s *RedisBalanceStore) Find(ctx context.Context, memberID uuid.UUID) (*point.MemberBalance, error) {
	data, err := s.client.Get(ctx, balanceKeyPrefix+memberID.String()).Bytes()
	if err == redis.Nil {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached balance: %w", err)
	}

	var cached cachedBalance
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("failed to decode cached balance: %w", err)
	}

	return &point.MemberBalance{
		MemberID:  cached.MemberID,
		Total:     cached.Total,
		Available: cached.Available,
		Expired:   cached.Expired,
		UpdatedAt: cached.UpdatedAt,
	}, nil
}

// Save overwrites the cached balance. Entries have no TTL: the balance is
// kept fresh by events and repaired by reconciliation, not by expiry.
func (s *RedisBalanceStore) Save(ctx context.Context, balance *point.MemberBalance) error {
	data, err := json.Marshal(cachedBalance{
		MemberID:  balance.MemberID,
		Total:     balance.Total,
		Available: balance.Available,
		Expired:   balance.Expired,
		UpdatedAt: balance.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode balance: %w", err)
	}

	if err := s.client.Set(ctx, balanceKeyPrefix+balance.MemberID.String(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write cached balance: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisBalanceStore) Close() error {
	return s.client.Close()
}

var _ point.MemberBalanceStore = (*RedisBalanceStore)(nil)
