// Package nonkyc implements the NonKYC venue adapter. Private
// requests carry three headers: the API key, a strictly increasing
// nonce, and a hex HMAC-SHA256 over apiKey+url+nonce. The query
// string is part of the signed URL.
//
// The ticker endpoint answers in two historical shapes depending on
// server version. Both are recognized up front by inspecting which
// fields are present; an unrecognized shape is an explicit error, not
// a fallthrough.
package nonkyc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/veiloq/venue-adapters/pkg/auth"
	"github.com/veiloq/venue-adapters/pkg/common"
	"github.com/veiloq/venue-adapters/pkg/exchanges/interfaces"
	"github.com/veiloq/venue-adapters/pkg/logging"
	"github.com/veiloq/venue-adapters/pkg/numeric"
	"github.com/veiloq/venue-adapters/pkg/ratelimit"
)

const (
	venueID        = "nonkyc"
	defaultBaseURL = "https://api.nonkyc.io/api/v2"
)

var resolutions = map[string]string{
	"1m":  "1",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"4h":  "240",
	"1d":  "1440",
}

// Connector implements interfaces.Exchange for NonKYC.
type Connector struct {
	options    *interfaces.Options
	baseURL    string
	http       common.HTTPClient
	logger     logging.Logger
	nonce      *auth.NonceSource
	signer     *auth.HMACSigner
	classifier *interfaces.Classifier
	markets    *interfaces.MarketCache
}

// NewConnector creates a NonKYC adapter.
func NewConnector(options *interfaces.Options) *Connector {
	if options == nil {
		options = interfaces.NewOptions()
	}
	baseURL := defaultBaseURL
	if options.BaseURL != "" {
		baseURL = options.BaseURL
	}

	logger := logging.NewZapLogger(
		logging.WithLogLevel(logging.ParseLevel(options.LogLevel)),
	).WithFields(logging.String("venue", venueID))

	httpClient := common.NewHTTPClient(&common.ClientConfig{
		Timeout: options.HTTPTimeout,
		RateLimit: ratelimit.Rate{
			Limit:    options.MaxRequestsPerSecond,
			Interval: time.Second,
		},
		MaxRetries: 3,
		RetryDelay: time.Second,
		Logger:     logger,
	})

	c := &Connector{
		options: options,
		baseURL: baseURL,
		http:    httpClient,
		logger:  logger,
		nonce:   auth.NewNonceSource(),
		signer: auth.NewHMACSigner(auth.HMACConfig{
			Venue:       venueID,
			Credentials: options.Credentials,
			Fields: []auth.PayloadField{
				auth.FieldAPIKey,
				auth.FieldURL,
				auth.FieldNonce,
			},
			Encoding: auth.EncodingHex,
			Inject:   auth.SplitAPIHeaders,
		}),
		classifier: newClassifier(),
	}
	c.markets = interfaces.NewMarketCache(venueID, options.MarketsTTL, c.loadMarkets)
	return c
}

// ID implements interfaces.Exchange.
func (c *Connector) ID() string { return venueID }

func newClassifier() *interfaces.Classifier {
	return &interfaces.Classifier{
		Venue: venueID,
		Exact: map[string]error{
			"20001": interfaces.ErrAuthentication,
			"20002": interfaces.ErrAuthentication,
			"20003": interfaces.ErrPermissionDenied,
			"20010": interfaces.ErrInsufficientFunds,
			"20012": interfaces.ErrInvalidOrder,
			"20015": interfaces.ErrOrderNotFound,
			"20044": interfaces.ErrRateLimit,
		},
		Broad: []interfaces.SubstringRule{
			{Fragment: "invalid nonce", Kind: interfaces.ErrAuthentication},
			{Fragment: "invalid signature", Kind: interfaces.ErrAuthentication},
			{Fragment: "insufficient balance", Kind: interfaces.ErrInsufficientFunds},
			{Fragment: "order not found", Kind: interfaces.ErrOrderNotFound},
			{Fragment: "min", Kind: interfaces.ErrInvalidOrder},
			{Fragment: "too many requests", Kind: interfaces.ErrRateLimit},
		},
	}
}

type venueFault struct {
	Error struct {
		Code    json.Number `json:"code"`
		Message string      `json:"message"`
	} `json:"error"`
}

func (c *Connector) call(ctx context.Context, method, path string, query url.Values, body any, private bool, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req := auth.NewRequest(method, endpoint, path, "")
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return interfaces.NewVenueError(venueID, interfaces.ErrBadRequest, "", err.Error(), "")
		}
		payload = encoded
		req.Body = string(encoded)
		req.Header.Set("Content-Type", "application/json")
	}

	if private {
		if err := c.signer.Sign(req, c.nonce.Next()); err != nil {
			return err
		}
	}

	resp, err := c.http.Send(ctx, method, endpoint, req.Header, payload)
	if err != nil {
		if ctx.Err() != nil {
			return interfaces.NewVenueError(venueID, interfaces.ErrCancelled, "", ctx.Err().Error(), "")
		}
		return interfaces.NewVenueError(venueID, interfaces.ErrExchangeNotAvailable, "", err.Error(), "")
	}

	raw, decodeErr := common.DecodeJSON(resp, out)

	// Faults can arrive with a 200 status; sniff the error object
	// before trusting the decode.
	var fault venueFault
	if json.Unmarshal(raw, &fault) == nil && fault.Error.Message != "" {
		verr := c.classifier.Classify(fault.Error.Code.String(), fault.Error.Message, raw)
		verr.HTTPStatus = resp.StatusCode
		return verr
	}
	if resp.StatusCode >= 400 {
		return c.classifier.ClassifyStatus(resp.StatusCode, raw)
	}
	if decodeErr != nil {
		return interfaces.NewVenueError(venueID, interfaces.ErrExchange, "", decodeErr.Error(), string(raw))
	}
	return nil
}

func (c *Connector) loadMarkets(ctx context.Context) ([]interfaces.Market, error) {
	var rows []map[string]any
	if err := c.call(ctx, http.MethodGet, "/market/getlist", nil, nil, false, &rows); err != nil {
		return nil, err
	}

	markets := make([]interfaces.Market, 0, len(rows))
	for _, row := range rows {
		id := numeric.SafeString(row, "symbol")
		base := strings.ToUpper(numeric.SafeString(row, "primaryTicker"))
		quote := strings.ToUpper(numeric.SafeString(row, "secondaryTicker"))
		if base == "" || quote == "" {
			// Older payloads spell the pair only in the symbol.
			parts := strings.Split(id, "_")
			if len(parts) != 2 {
				parts = strings.Split(id, "/")
			}
			if len(parts) == 2 {
				base = strings.ToUpper(parts[0])
				quote = strings.ToUpper(parts[1])
			}
		}
		if id == "" || base == "" || quote == "" {
			continue
		}
		markets = append(markets, interfaces.Market{
			ID:              id,
			Symbol:          base + "/" + quote,
			Base:            base,
			Quote:           quote,
			Active:          numeric.SafeString(row, "isActive") != "false",
			AmountPrecision: int(numeric.SafeInt64(row, "quantityDecimals")),
			PricePrecision:  int(numeric.SafeInt64(row, "priceDecimals")),
			MinAmount:       numeric.SafeString(row, "minimumQuantity"),
		})
	}
	return markets, nil
}

// FetchMarkets implements interfaces.Exchange.
func (c *Connector) FetchMarkets(ctx context.Context) ([]interfaces.Market, error) {
	return c.markets.All(ctx)
}

// tickerShape identifies which historical response layout a ticker
// payload uses.
type tickerShape int

const (
	shapeUnknown tickerShape = iota
	shapeCompact             // lastPrice / bestBid / bestAsk
	shapeVerbose             // last_price / bid / ask
)

func detectTickerShape(row map[string]any) tickerShape {
	if _, ok := row["lastPrice"]; ok {
		return shapeCompact
	}
	if _, ok := row["last_price"]; ok {
		return shapeVerbose
	}
	return shapeUnknown
}

// FetchTicker implements interfaces.Exchange. The response shape is
// detected by field presence and dispatched to the matching parser.
func (c *Connector) FetchTicker(ctx context.Context, symbol string) (*interfaces.Ticker, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var row map[string]any
	path := "/market/getbysymbol/" + url.PathEscape(market.ID)
	if err := c.call(ctx, http.MethodGet, path, nil, nil, false, &row); err != nil {
		return nil, err
	}

	switch detectTickerShape(row) {
	case shapeCompact:
		return &interfaces.Ticker{
			Symbol:        market.Symbol,
			Timestamp:     numeric.SafeTimestamp(row, "updatedAt"),
			Bid:           numeric.SafeFloat(row, "bestBid"),
			Ask:           numeric.SafeFloat(row, "bestAsk"),
			Last:          numeric.SafeFloat(row, "lastPrice"),
			High:          numeric.SafeFloat(row, "highPrice"),
			Low:           numeric.SafeFloat(row, "lowPrice"),
			BaseVolume:    numeric.SafeFloat(row, "volume"),
			QuoteVolume:   numeric.SafeFloat(row, "volumeSecondary"),
			PercentChange: numeric.SafeFloat(row, "changePercent"),
		}, nil
	case shapeVerbose:
		return &interfaces.Ticker{
			Symbol:      market.Symbol,
			Timestamp:   numeric.SafeTimestamp(row, "timestamp"),
			Bid:         numeric.SafeFloat(row, "bid"),
			Ask:         numeric.SafeFloat(row, "ask"),
			Last:        numeric.SafeFloat(row, "last_price"),
			High:        numeric.SafeFloat(row, "high"),
			Low:         numeric.SafeFloat(row, "low"),
			BaseVolume:  numeric.SafeFloat(row, "base_volume"),
			QuoteVolume: numeric.SafeFloat(row, "quote_volume"),
		}, nil
	default:
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrExchange, "",
			"unrecognized ticker shape for "+market.ID, "")
	}
}

// FetchOrderBook implements interfaces.Exchange.
func (c *Connector) FetchOrderBook(ctx context.Context, symbol string, limit int) (*interfaces.OrderBook, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var result struct {
		Timestamp int64 `json:"timestamp"`
		Bids      []struct {
			Price  string `json:"price"`
			Amount string `json:"quantity"`
		} `json:"bids"`
		Asks []struct {
			Price  string `json:"price"`
			Amount string `json:"quantity"`
		} `json:"asks"`
	}
	path := "/market/getorderbookbysymbol/" + url.PathEscape(market.ID)
	if err := c.call(ctx, http.MethodGet, path, nil, nil, false, &result); err != nil {
		return nil, err
	}

	book := &interfaces.OrderBook{
		Symbol:    market.Symbol,
		Timestamp: numeric.NormalizeTimestamp(result.Timestamp),
	}
	for _, level := range result.Bids {
		if limit > 0 && len(book.Bids) >= limit {
			break
		}
		book.Bids = append(book.Bids, interfaces.BookLevel{
			Price:  numeric.ToFloat(level.Price),
			Amount: numeric.ToFloat(level.Amount),
		})
	}
	for _, level := range result.Asks {
		if limit > 0 && len(book.Asks) >= limit {
			break
		}
		book.Asks = append(book.Asks, interfaces.BookLevel{
			Price:  numeric.ToFloat(level.Price),
			Amount: numeric.ToFloat(level.Amount),
		})
	}
	return book, nil
}

// FetchTrades implements interfaces.Exchange.
func (c *Connector) FetchTrades(ctx context.Context, symbol string, limit int) ([]interfaces.Trade, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var rows []map[string]any
	path := "/market/gettradesbysymbol/" + url.PathEscape(market.ID)
	if err := c.call(ctx, http.MethodGet, path, query, nil, false, &rows); err != nil {
		return nil, err
	}

	trades := make([]interfaces.Trade, 0, len(rows))
	for _, row := range rows {
		price := numeric.SafeString(row, "price")
		amount := numeric.SafeString(row, "quantity")
		side := interfaces.SideBuy
		if numeric.SafeString(row, "side") == "sell" {
			side = interfaces.SideSell
		}
		trades = append(trades, interfaces.Trade{
			ID:        numeric.SafeString(row, "id"),
			Symbol:    market.Symbol,
			Timestamp: numeric.SafeTimestamp(row, "timestamp"),
			Side:      side,
			Price:     price,
			Amount:    amount,
			Cost:      numeric.Mul(price, amount),
		})
	}
	return trades, nil
}

// FetchOHLCV implements interfaces.Exchange.
func (c *Connector) FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int) ([]interfaces.OHLCV, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}
	resolution, ok := resolutions[timeframe]
	if !ok {
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrNotSupported, "",
			"unsupported timeframe "+timeframe, "")
	}
	if limit <= 0 {
		limit = 500
	}
	to := time.Now().UnixMilli()
	from := since
	if from <= 0 {
		from = to - int64(limit)*timeframeMillis(timeframe)
	}

	query := url.Values{}
	query.Set("symbol", market.ID)
	query.Set("resolution", resolution)
	query.Set("from", strconv.FormatInt(from/1000, 10))
	query.Set("to", strconv.FormatInt(to/1000, 10))

	var result struct {
		Bars []map[string]any `json:"bars"`
	}
	if err := c.call(ctx, http.MethodGet, "/market/candles", query, nil, false, &result); err != nil {
		return nil, err
	}

	candles := make([]interfaces.OHLCV, 0, len(result.Bars))
	for _, bar := range result.Bars {
		candles = append(candles, interfaces.OHLCV{
			Timestamp: numeric.SafeTimestamp(bar, "time"),
			Open:      numeric.SafeFloat(bar, "open"),
			High:      numeric.SafeFloat(bar, "high"),
			Low:       numeric.SafeFloat(bar, "low"),
			Close:     numeric.SafeFloat(bar, "close"),
			Volume:    numeric.SafeFloat(bar, "volume"),
		})
	}
	return candles, nil
}

// FetchBalance implements interfaces.Exchange.
func (c *Connector) FetchBalance(ctx context.Context) (interfaces.Balances, error) {
	var rows []map[string]any
	if err := c.call(ctx, http.MethodGet, "/balances", nil, nil, true, &rows); err != nil {
		return nil, err
	}

	balances := make(interfaces.Balances, len(rows))
	for _, row := range rows {
		currency := strings.ToUpper(numeric.SafeString(row, "asset"))
		if currency == "" {
			continue
		}
		free := numeric.SafeString(row, "available")
		used := numeric.SafeString(row, "held")
		balances[currency] = interfaces.Balance{
			Currency: currency,
			Free:     free,
			Used:     used,
			Total:    numeric.Add(free, used),
		}
	}
	return balances, nil
}

// CreateOrder implements interfaces.Exchange.
func (c *Connector) CreateOrder(ctx context.Context, req interfaces.OrderRequest) (*interfaces.Order, error) {
	market, err := c.markets.Resolve(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"symbol":   market.ID,
		"side":     string(req.Side),
		"quantity": req.Amount,
	}
	switch req.Type {
	case interfaces.OrderTypeLimit:
		if req.Price == "" {
			return nil, interfaces.NewVenueError(venueID, interfaces.ErrInvalidOrder, "",
				"limit order requires a price", "")
		}
		body["type"] = "limit"
		body["price"] = numeric.Round(req.Price, market.PricePrecision)
	case interfaces.OrderTypeMarket:
		body["type"] = "market"
	default:
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrNotSupported, "",
			"unsupported order type "+string(req.Type), "")
	}
	if req.ClientID != "" {
		body["userProvidedId"] = req.ClientID
	}

	var row map[string]any
	if err := c.call(ctx, http.MethodPost, "/createorder", nil, body, true, &row); err != nil {
		return nil, err
	}
	order := c.parseOrder(row, market.Symbol)
	return &order, nil
}

// CancelOrder implements interfaces.Exchange.
func (c *Connector) CancelOrder(ctx context.Context, id, symbol string) (*interfaces.Order, error) {
	body := map[string]any{"id": id}
	if err := c.call(ctx, http.MethodPost, "/cancelorder", nil, body, true, nil); err != nil {
		return nil, err
	}
	return &interfaces.Order{
		ID:     id,
		Symbol: symbol,
		Status: interfaces.OrderStatusCanceled,
	}, nil
}

// FetchOrder implements interfaces.Exchange.
func (c *Connector) FetchOrder(ctx context.Context, id, symbol string) (*interfaces.Order, error) {
	var row map[string]any
	if err := c.call(ctx, http.MethodGet, "/getorder/"+url.PathEscape(id), nil, nil, true, &row); err != nil {
		return nil, err
	}
	order := c.parseOrder(row, symbol)
	return &order, nil
}

// FetchOpenOrders implements interfaces.Exchange.
func (c *Connector) FetchOpenOrders(ctx context.Context, symbol string) ([]interfaces.Order, error) {
	query := url.Values{}
	query.Set("status", "active")
	if symbol != "" {
		market, err := c.markets.Resolve(ctx, symbol)
		if err != nil {
			return nil, err
		}
		query.Set("symbol", market.ID)
	}

	var rows []map[string]any
	if err := c.call(ctx, http.MethodGet, "/getorders", query, nil, true, &rows); err != nil {
		return nil, err
	}

	orders := make([]interfaces.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, c.parseOrder(row, ""))
	}
	return orders, nil
}

func (c *Connector) parseOrder(row map[string]any, symbol string) interfaces.Order {
	if row == nil {
		return interfaces.Order{Symbol: symbol}
	}
	if symbol == "" {
		if market, err := c.markets.ResolveID(context.Background(), numeric.SafeString(row, "symbol")); err == nil {
			symbol = market.Symbol
		} else {
			symbol = numeric.SafeString(row, "symbol")
		}
	}

	amount := numeric.SafeString(row, "quantity")
	filled := numeric.SafeString(row, "executedQuantity")
	remaining := numeric.SafeString(row, "remainQuantity")
	if remaining == "" && amount != "" && filled != "" {
		remaining = numeric.Sub(amount, filled)
	}

	price := numeric.SafeString(row, "price")
	cost := ""
	if filled != "" && price != "" {
		cost = numeric.Mul(filled, price)
	}

	side := interfaces.SideBuy
	if numeric.SafeString(row, "side") == "sell" {
		side = interfaces.SideSell
	}

	return interfaces.Order{
		ID:           numeric.SafeString(row, "id"),
		ClientID:     numeric.SafeString(row, "userProvidedId"),
		Symbol:       symbol,
		Type:         parseOrderType(numeric.SafeString(row, "type")),
		Side:         side,
		Status:       parseOrderStatus(numeric.SafeString(row, "status")),
		Timestamp:    numeric.SafeTimestamp(row, "createdAt"),
		Price:        price,
		Amount:       amount,
		Filled:       filled,
		Remaining:    remaining,
		Cost:         cost,
		AveragePrice: price,
		FeeCost:      numeric.SafeString(row, "fee"),
	}
}

func parseOrderType(t string) interfaces.OrderType {
	switch t {
	case "limit":
		return interfaces.OrderTypeLimit
	case "market":
		return interfaces.OrderTypeMarket
	default:
		return interfaces.OrderType(t)
	}
}

func parseOrderStatus(s string) interfaces.OrderStatus {
	switch s {
	case "active", "new", "partlyFilled":
		return interfaces.OrderStatusOpen
	case "filled":
		return interfaces.OrderStatusClosed
	case "cancelled", "canceled":
		return interfaces.OrderStatusCanceled
	case "rejected":
		return interfaces.OrderStatusRejected
	default:
		return interfaces.OrderStatus(s)
	}
}

func timeframeMillis(timeframe string) int64 {
	switch timeframe {
	case "1m":
		return 60_000
	case "5m":
		return 300_000
	case "15m":
		return 900_000
	case "30m":
		return 1_800_000
	case "1h":
		return 3_600_000
	case "4h":
		return 14_400_000
	case "1d":
		return 86_400_000
	default:
		return 60_000
	}
}

var _ interfaces.Exchange = (*Connector)(nil)
