package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/carbon-registry/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T, ttl time.Duration) (*CacheService, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return NewCacheService(NewRedisCacheFromClient(client), ttl), mr
}

func testCredit() *models.CarbonCredit {
	return &models.CarbonCredit{
		ID:            7,
		Producer:      "0x0000000000000000000000000000000000000001",
		Owner:         "0x0000000000000000000000000000000000000001",
		CarbonReduced: 500,
		ProjectType:   "reforestation",
		IoTDeviceID:   "sensor-1",
		IsVerified:    true,
		CreatedAt:     time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreditCacheRoundTrip(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()

	_, found, err := cache.GetCredit(ctx, 7)
	require.NoError(t, err)
	assert.False(t, found)

	credit := testCredit()
	require.NoError(t, cache.SetCredit(ctx, credit))

	got, found, err := cache.GetCredit(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, credit, got)
}

func TestCreditCacheInvalidation(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.SetCredit(ctx, testCredit()))
	require.NoError(t, cache.InvalidateCredit(ctx, 7))

	_, found, err := cache.GetCredit(ctx, 7)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCreditCacheExpiry(t *testing.T) {
	cache, mr := setupTestCache(t, time.Second)
	ctx := context.Background()

	require.NoError(t, cache.SetCredit(ctx, testCredit()))

	mr.FastForward(2 * time.Second)

	_, found, err := cache.GetCredit(ctx, 7)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeviceCacheRoundTrip(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()

	device := &models.IoTDevice{
		DeviceID:          "Sensor-1",
		Owner:             "0x0000000000000000000000000000000000000001",
		DeviceType:        "co2-meter",
		IsActive:          true,
		LastDataTimestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		RegisteredAt:      time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, cache.SetDevice(ctx, device))

	// Keys are normalized, so lookup is case-insensitive.
	got, found, err := cache.GetDevice(ctx, "sensor-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, device, got)

	require.NoError(t, cache.InvalidateDevice(ctx, "SENSOR-1"))
	_, found, err = cache.GetDevice(ctx, "sensor-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheKeyFormat(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)

	assert.Equal(t, "credit:42", cache.CreditKey(42))
	assert.Equal(t, "device:sensor-1", cache.DeviceKey("Sensor-1"))
}
