package interfaces

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMarkets() []Market {
	return []Market{
		{ID: "BTC-USDT", Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT"},
		{ID: "ETH-USDT", Symbol: "ETH/USDT", Base: "ETH", Quote: "USDT"},
	}
}

func TestMarketCacheLoadsOnce(t *testing.T) {
	var loads int32
	cache := NewMarketCache("testvenue", time.Minute, func(ctx context.Context) ([]Market, error) {
		atomic.AddInt32(&loads, 1)
		return testMarkets(), nil
	})

	ctx := context.Background()
	first, err := cache.All(ctx)
	require.NoError(t, err)
	second, err := cache.All(ctx)
	require.NoError(t, err)

	assert.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestMarketCacheConcurrentColdLoad(t *testing.T) {
	var loads int32
	release := make(chan struct{})
	cache := NewMarketCache("testvenue", time.Minute, func(ctx context.Context) ([]Market, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return testMarkets(), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.All(context.Background())
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestMarketCacheResolve(t *testing.T) {
	cache := NewMarketCache("testvenue", time.Minute, func(ctx context.Context) ([]Market, error) {
		return testMarkets(), nil
	})
	ctx := context.Background()

	market, err := cache.Resolve(ctx, "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, "ETH-USDT", market.ID)

	market, err = cache.ResolveID(ctx, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", market.Symbol)

	_, err = cache.Resolve(ctx, "DOGE/USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestMarketCacheInvalidate(t *testing.T) {
	var loads int32
	cache := NewMarketCache("testvenue", time.Minute, func(ctx context.Context) ([]Market, error) {
		atomic.AddInt32(&loads, 1)
		return testMarkets(), nil
	})

	ctx := context.Background()
	_, err := cache.All(ctx)
	require.NoError(t, err)
	cache.Invalidate()
	_, err = cache.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&loads))
}
