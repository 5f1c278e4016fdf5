package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU first, then Redis.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetProfile retrieves a cached account profile.
	// Returns nil, nil on a cache miss.
	GetProfile(ctx context.Context, accountID string) (*AccountProfile, error)

	// SetProfile caches an account profile for the feature extractor.
	SetProfile(ctx context.Context, accountID string, p *AccountProfile, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new
	// value. Velocity features count transactions per account per window
	// with these counters.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory", "redis", or "two-phase"
	Type string `yaml:"type"`

	// Local LRU cache settings
	LocalMaxSize int `yaml:"local_max_size"`

	// Redis settings
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Profile cache TTL
	ProfileTTLSecs int `yaml:"profile_ttl_secs"`
}

// ProfileTTL returns the profile cache TTL as a duration.
func (c CacheConfig) ProfileTTL() time.Duration {
	return time.Duration(c.ProfileTTLSecs) * time.Second
}
