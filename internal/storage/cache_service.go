package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carbon-registry/internal/models"
	"github.com/redis/go-redis/v9"
)

// CacheService provides read caching for credit and device lookups.
// Entries are invalidated on every mutation touching the record, so a
// hit is never staler than the cache TTL.
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis: redis,
		ttl:   ttl,
	}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyCredit is for credit records
	CacheKeyCredit CacheKeyType = "credit"
	// CacheKeyDevice is for device records
	CacheKeyDevice CacheKeyType = "device"
)

// GenerateCacheKey generates a cache key for a given type and parameters
// Format: <type>:<param1>:<param2>:...
func (c *CacheService) GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	normalizedParams := make([]string, len(params))
	for i, param := range params {
		normalizedParams[i] = strings.ToLower(param)
	}

	parts := append([]string{string(keyType)}, normalizedParams...)
	return strings.Join(parts, ":")
}

// CreditKey generates a cache key for a credit record
func (c *CacheService) CreditKey(tokenID uint64) string {
	return c.GenerateCacheKey(CacheKeyCredit, fmt.Sprintf("%d", tokenID))
}

// DeviceKey generates a cache key for a device record
func (c *CacheService) DeviceKey(deviceID string) string {
	return c.GenerateCacheKey(CacheKeyDevice, deviceID)
}

// GetCredit retrieves a cached credit. Returns (nil, false, nil) on miss.
func (c *CacheService) GetCredit(ctx context.Context, tokenID uint64) (*models.CarbonCredit, bool, error) {
	data, err := c.redis.Get(ctx, c.CreditKey(tokenID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get error: %w", err)
	}

	var credit models.CarbonCredit
	if err := json.Unmarshal([]byte(data), &credit); err != nil {
		return nil, false, fmt.Errorf("cache unmarshal error: %w", err)
	}

	return &credit, true, nil
}

// SetCredit caches a credit record
func (c *CacheService) SetCredit(ctx context.Context, credit *models.CarbonCredit) error {
	data, err := json.Marshal(credit)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	return c.redis.Set(ctx, c.CreditKey(credit.ID), data, c.ttl)
}

// InvalidateCredit drops a cached credit record
func (c *CacheService) InvalidateCredit(ctx context.Context, tokenID uint64) error {
	return c.redis.Del(ctx, c.CreditKey(tokenID))
}

// GetDevice retrieves a cached device. Returns (nil, false, nil) on miss.
func (c *CacheService) GetDevice(ctx context.Context, deviceID string) (*models.IoTDevice, bool, error) {
	data, err := c.redis.Get(ctx, c.DeviceKey(deviceID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get error: %w", err)
	}

	var device models.IoTDevice
	if err := json.Unmarshal([]byte(data), &device); err != nil {
		return nil, false, fmt.Errorf("cache unmarshal error: %w", err)
	}

	return &device, true, nil
}

// SetDevice caches a device record
func (c *CacheService) SetDevice(ctx context.Context, device *models.IoTDevice) error {
	data, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	return c.redis.Set(ctx, c.DeviceKey(device.DeviceID), data, c.ttl)
}

// InvalidateDevice drops a cached device record
func (c *CacheService) InvalidateDevice(ctx context.Context, deviceID string) error {
	return c.redis.Del(ctx, c.DeviceKey(deviceID))
}
