package interfaces

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const marketsCacheKey = "markets"

// MarketLoader fetches the venue's full instrument list.
type MarketLoader func(ctx context.Context) ([]Market, error)

// MarketCache is the symbol -> market descriptor resolver shared by
// all adapters. The instrument list is fetched lazily on first use and
// served from a TTL cache afterwards; concurrent first callers share a
// single in-flight load instead of issuing duplicate requests.
type MarketCache struct {
	venue  string
	loader MarketLoader
	cache  *gocache.Cache
	group  singleflight.Group
}

// NewMarketCache builds a cache with the given freshness TTL. A zero
// ttl keeps entries for an hour.
func NewMarketCache(venue string, ttl time.Duration, loader MarketLoader) *MarketCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MarketCache{
		venue:  venue,
		loader: loader,
		cache:  gocache.New(ttl, 2*ttl),
	}
}

// All returns the full market list, loading it if the cache is stale.
func (m *MarketCache) All(ctx context.Context) ([]Market, error) {
	if v, ok := m.cache.Get(marketsCacheKey); ok {
		return v.([]Market), nil
	}
	v, err, _ := m.group.Do(marketsCacheKey, func() (interface{}, error) {
		// Re-check under the flight: another caller may have populated
		// the cache between the miss and the Do.
		if v, ok := m.cache.Get(marketsCacheKey); ok {
			return v, nil
		}
		markets, err := m.loader(ctx)
		if err != nil {
			return nil, err
		}
		m.cache.SetDefault(marketsCacheKey, markets)
		return markets, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Market), nil
}

// Resolve maps a unified symbol to its market descriptor.
func (m *MarketCache) Resolve(ctx context.Context, symbol string) (Market, error) {
	markets, err := m.All(ctx)
	if err != nil {
		return Market{}, err
	}
	for _, mk := range markets {
		if mk.Symbol == symbol {
			return mk, nil
		}
	}
	return Market{}, NewVenueError(m.venue, ErrBadRequest, "", "unknown symbol "+symbol, "")
}

// ResolveID maps a venue-native instrument id to its descriptor.
func (m *MarketCache) ResolveID(ctx context.Context, id string) (Market, error) {
	markets, err := m.All(ctx)
	if err != nil {
		return Market{}, err
	}
	for _, mk := range markets {
		if mk.ID == id {
			return mk, nil
		}
	}
	return Market{}, NewVenueError(m.venue, ErrBadRequest, "", "unknown instrument "+id, "")
}

// Invalidate drops the cached list; the next call reloads.
func (m *MarketCache) Invalidate() {
	m.cache.Delete(marketsCacheKey)
}
