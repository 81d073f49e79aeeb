package cache

import (
	"context"
	"testing"
	"time"

	"nepse-observer/src/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis/redistest"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "live:stock_prices", LiveStockPricesKey())
	assert.Equal(t, "live:market_index", LiveMarketIndexKey())
	assert.Equal(t, "live:market_status", LiveMarketStatusKey())
	assert.Equal(t, "intraday:market_index:2026-10-15", IntradayIndexKey("2026-10-15"))
	assert.Equal(t, "intraday:stock_price:2026-10-15:NABIL", IntradayPriceKey("2026-10-15", "nabil"))
	assert.Equal(t, "intraday:market_index", IntradayIndexKey(" "))
}

func exerciseCache(t *testing.T, c interfaces.ICache) {
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.HGet(ctx, "live:stock_prices", "NABIL")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.HSet(ctx, "live:stock_prices", "NABIL", `{"close":512}`))
	require.NoError(t, c.HSet(ctx, "live:stock_prices", "NICA", `{"close":410}`))
	require.NoError(t, c.HSet(ctx, "live:stock_prices", "NABIL", `{"close":515}`))

	v, ok, err := c.HGet(ctx, "live:stock_prices", "NABIL")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"close":515}`, v)

	all, err := c.HGetAll(ctx, "live:stock_prices")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	last, err := c.ZLast(ctx, "intraday:market_index:2026-10-15")
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, c.ZAdd(ctx, "intraday:market_index:2026-10-15", 2000, "b"))
	require.NoError(t, c.ZAdd(ctx, "intraday:market_index:2026-10-15", 1000, "a"))

	last, err = c.ZLast(ctx, "intraday:market_index:2026-10-15")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "b", last.Member)
	assert.Equal(t, int64(2000), last.Timestamp)

	series, err := c.ZRange(ctx, "intraday:market_index:2026-10-15")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "a", series[0].Member)

	require.NoError(t, c.ExpireAt(ctx, "intraday:market_index:2026-10-15", time.Now().Add(time.Hour)))
}

func TestRedisCache(t *testing.T) {
	c := NewRedisCacheFromClient(redistest.CreateRedis(t))
	exerciseCache(t, c)
}

func TestMemoryCache(t *testing.T) {
	exerciseCache(t, NewMemoryCache())
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.ZAdd(ctx, "k", 1, "m"))
	require.NoError(t, c.ExpireAt(ctx, "k", now.Add(time.Minute)))

	series, _ := c.ZRange(ctx, "k")
	assert.Len(t, series, 1)

	now = now.Add(2 * time.Minute)
	series, _ = c.ZRange(ctx, "k")
	assert.Empty(t, series)
}
