package interfaces

import (
	"context"
	"time"
)

// Exchange is the unified trading surface every venue adapter
// implements. Each method is one independent unit of work: it builds
// the venue-specific request, signs it when the endpoint is private,
// executes it through the shared HTTP client, and either normalizes
// the response into the unified schema or raises a classified error.
//
// Implementations must:
//   - never send an unsigned request to a private endpoint; missing
//     credentials fail fast with ErrAuthentication before any I/O
//   - normalize every timestamp to milliseconds
//   - carry derived numeric values (cost, fees, margin) through
//     decimal-string arithmetic, not float64
//   - raise exactly one classified error per failure, prefixed with
//     the venue id
type Exchange interface {
	// ID returns the venue identifier used in error messages and logs
	// (e.g. "btcex").
	ID() string

	// FetchMarkets returns the venue's tradable instruments in unified
	// form. Adapters cache the result; see MarketCache.
	FetchMarkets(ctx context.Context) ([]Market, error)

	// FetchTicker returns the current snapshot for one unified symbol.
	FetchTicker(ctx context.Context, symbol string) (*Ticker, error)

	// FetchOrderBook returns a depth snapshot. limit <= 0 requests the
	// venue default depth; the venue may clamp larger values.
	FetchOrderBook(ctx context.Context, symbol string, limit int) (*OrderBook, error)

	// FetchTrades returns recent public executions, newest last.
	FetchTrades(ctx context.Context, symbol string, limit int) ([]Trade, error)

	// FetchOHLCV returns candles for the given unified timeframe
	// ("1m", "5m", "1h", "1d", ...). since is milliseconds; zero means
	// the venue default window.
	FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int) ([]OHLCV, error)

	// FetchBalance returns the account's funds per currency. Private.
	FetchBalance(ctx context.Context) (Balances, error)

	// CreateOrder places an order and returns its unified view. Private.
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)

	// CancelOrder cancels by venue order id. Private.
	CancelOrder(ctx context.Context, id, symbol string) (*Order, error)

	// FetchOrder looks up one order by venue id. Private.
	FetchOrder(ctx context.Context, id, symbol string) (*Order, error)

	// FetchOpenOrders lists open orders, optionally filtered by symbol
	// (empty symbol means all). Private.
	FetchOpenOrders(ctx context.Context, symbol string) ([]Order, error)
}

// Options configures a venue adapter. Zero values fall back to the
// defaults of NewOptions.
type Options struct {
	// Credentials for private endpoints. Public market data works
	// without them.
	Credentials Credentials

	// BaseURL overrides the venue production endpoint, mainly for
	// tests pointing at an httptest server.
	BaseURL string

	// HTTPTimeout bounds every REST call.
	HTTPTimeout time.Duration

	// MaxRequestsPerSecond feeds the shared token-bucket limiter.
	MaxRequestsPerSecond int

	// AccountContextTTL bounds how long cached account metadata
	// (accounting mode, margin flags) is served without a refetch.
	AccountContextTTL time.Duration

	// MarketsTTL bounds the symbol -> market descriptor cache.
	MarketsTTL time.Duration

	// LogLevel controls adapter logging: "debug", "info", "warn",
	// "error".
	LogLevel string
}

// NewOptions returns defaults suitable for production use:
// 15s HTTP timeout, 10 req/s, 30s account-context TTL, 1h markets TTL,
// "info" logging.
func NewOptions() *Options {
	return &Options{
		HTTPTimeout:          15 * time.Second,
		MaxRequestsPerSecond: 10,
		AccountContextTTL:    30 * time.Second,
		MarketsTTL:           time.Hour,
		LogLevel:             "info",
	}
}

// WithCredentials sets the key/secret pair and returns the options for
// chaining.
func (o *Options) WithCredentials(apiKey, secret string) *Options {
	o.Credentials.APIKey = apiKey
	o.Credentials.Secret = secret
	return o
}

// WithUID sets the venue account id required by HMAC venues that sign
// it into the payload.
func (o *Options) WithUID(uid string) *Options {
	o.Credentials.UID = uid
	return o
}
