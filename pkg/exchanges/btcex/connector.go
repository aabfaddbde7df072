// Package btcex implements the BTCEX venue adapter. BTCEX speaks a
// JSON-RPC flavored REST dialect: every response carries an
// {id, jsonrpc, result|error} envelope, private endpoints take a
// bearer token obtained through the public/auth client-credentials
// exchange.
package btcex

import (
	"context"
	"encoding/json"
	"fmt"
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
	venueID        = "btcex"
	defaultBaseURL = "https://api.btcex.com/api/v1"
)

var timeframes = map[string]string{
	"1m":  "1",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"4h":  "240",
	"1d":  "1D",
}

// Connector implements interfaces.Exchange for BTCEX.
type Connector struct {
	options    *interfaces.Options
	baseURL    string
	http       common.HTTPClient
	logger     logging.Logger
	session    *auth.Session
	bearer     *auth.BearerSigner
	classifier *interfaces.Classifier
	markets    *interfaces.MarketCache
}

// NewConnector creates a BTCEX adapter. Public market data works
// without credentials; private calls sign in lazily on first use.
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
		options:    options,
		baseURL:    baseURL,
		http:       httpClient,
		logger:     logger,
		classifier: newClassifier(),
	}
	c.session = auth.NewSession(venueID, options.Credentials, options.AccountContextTTL, c.signIn)
	c.bearer = auth.NewBearerSigner(venueID, c.session)
	c.markets = interfaces.NewMarketCache(venueID, options.MarketsTTL, c.loadMarkets)
	return c
}

// ID implements interfaces.Exchange.
func (c *Connector) ID() string { return venueID }

// Static error tables. Exact vendor codes are checked before the
// message fragments; the fragments before the ErrExchange fallback.
func newClassifier() *interfaces.Classifier {
	return &interfaces.Classifier{
		Venue: venueID,
		Exact: map[string]error{
			"1005":  interfaces.ErrDDoSProtection, // "Operate too frequently"
			"2002":  interfaces.ErrAuthentication, // token expired
			"2003":  interfaces.ErrAuthentication, // invalid token
			"2004":  interfaces.ErrPermissionDenied,
			"3001":  interfaces.ErrBadRequest,
			"3301":  interfaces.ErrInsufficientFunds,
			"4001":  interfaces.ErrInvalidOrder,
			"4002":  interfaces.ErrOrderNotFound,
			"5001":  interfaces.ErrExchangeNotAvailable,
			"10005": interfaces.ErrRateLimit,
		},
		Broad: []interfaces.SubstringRule{
			{Fragment: "too frequently", Kind: interfaces.ErrDDoSProtection},
			{Fragment: "insufficient", Kind: interfaces.ErrInsufficientFunds},
			{Fragment: "order not exist", Kind: interfaces.ErrOrderNotFound},
			{Fragment: "not supported", Kind: interfaces.ErrNotSupported},
			{Fragment: "maintenance", Kind: interfaces.ErrExchangeNotAvailable},
			{Fragment: "login required", Kind: interfaces.ErrAuthentication},
		},
	}
}

type rpcEnvelope struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

// call executes one endpoint: GET with query for public reads, POST
// with a JSON params body for private calls. The bearer header is
// attached before any private request leaves the adapter.
func (c *Connector) call(ctx context.Context, method, path string, query url.Values, body map[string]any, private bool, out any) error {
	endpoint := c.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req := auth.NewRequest(method, endpoint, "/"+path, "")
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return interfaces.NewVenueError(venueID, interfaces.ErrBadRequest, "", err.Error(), "")
		}
		req.Body = string(encoded)
	}

	if private {
		if err := c.bearer.SignContext(ctx, req); err != nil {
			return err
		}
	}

	resp, err := c.http.Send(ctx, method, endpoint, req.Header, []byte(req.Body))
	if err != nil {
		if ctx.Err() != nil {
			return interfaces.NewVenueError(venueID, interfaces.ErrCancelled, "", ctx.Err().Error(), "")
		}
		return interfaces.NewVenueError(venueID, interfaces.ErrExchangeNotAvailable, "", err.Error(), "")
	}

	var envelope rpcEnvelope
	raw, err := common.DecodeJSON(resp, &envelope)
	if resp.StatusCode >= 400 {
		return c.classifier.ClassifyStatus(resp.StatusCode, raw)
	}
	if err != nil {
		return interfaces.NewVenueError(venueID, interfaces.ErrExchange, "", err.Error(), string(raw))
	}
	if envelope.Error != nil {
		return c.classifier.Classify(strconv.FormatInt(envelope.Error.Code, 10), envelope.Error.Message, raw)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return interfaces.NewVenueError(venueID, interfaces.ErrExchange, "", err.Error(), string(raw))
		}
	}
	return nil
}

// signIn performs the client-credentials exchange and returns the
// issued bearer token.
func (c *Connector) signIn(ctx context.Context) (interfaces.SessionToken, error) {
	query := url.Values{}
	query.Set("grant_type", "client_credentials")
	query.Set("client_id", c.options.Credentials.APIKey)
	query.Set("client_secret", c.options.Credentials.Secret)

	var result struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := c.call(ctx, http.MethodGet, "public/auth", query, nil, false, &result); err != nil {
		return interfaces.SessionToken{}, err
	}
	if result.AccessToken == "" {
		return interfaces.SessionToken{}, interfaces.NewVenueError(venueID,
			interfaces.ErrAuthentication, "", "sign-in returned no access token", "")
	}
	token := interfaces.SessionToken{
		Value:      result.AccessToken,
		ObtainedAt: time.Now(),
	}
	if result.ExpiresIn > 0 {
		token.ExpiresAt = token.ObtainedAt.Add(time.Duration(result.ExpiresIn) * time.Second)
	}
	c.logger.Debug("signed in", logging.Int64("expires_in", result.ExpiresIn))
	return token, nil
}

func (c *Connector) loadMarkets(ctx context.Context) ([]interfaces.Market, error) {
	query := url.Values{}
	query.Set("currency", "all")

	var rows []map[string]any
	if err := c.call(ctx, http.MethodGet, "public/get_instruments", query, nil, false, &rows); err != nil {
		return nil, err
	}

	markets := make([]interfaces.Market, 0, len(rows))
	for _, row := range rows {
		id := numeric.SafeString(row, "instrument_name")
		base := numeric.SafeString(row, "base_currency")
		quote := numeric.SafeString(row, "quote_currency")
		if id == "" || base == "" || quote == "" {
			continue
		}
		markets = append(markets, interfaces.Market{
			ID:              id,
			Symbol:          base + "/" + quote,
			Base:            base,
			Quote:           quote,
			Active:          numeric.SafeString(row, "is_active") != "false",
			AmountPrecision: decimalPlaces(numeric.SafeString(row, "min_qty")),
			PricePrecision:  decimalPlaces(numeric.SafeString(row, "tick_size")),
			MinAmount:       numeric.SafeString(row, "min_qty"),
			MinCost:         numeric.SafeString(row, "min_notional"),
			Margin:          numeric.SafeString(row, "support_margin") == "true",
		})
	}
	return markets, nil
}

// FetchMarkets implements interfaces.Exchange.
func (c *Connector) FetchMarkets(ctx context.Context) ([]interfaces.Market, error) {
	return c.markets.All(ctx)
}

// FetchTicker implements interfaces.Exchange. The ticker endpoint
// answers with a one-element result array.
func (c *Connector) FetchTicker(ctx context.Context, symbol string) (*interfaces.Ticker, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("instrument_name", market.ID)

	var rows []map[string]any
	if err := c.call(ctx, http.MethodGet, "public/ticker", query, nil, false, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrExchange, "",
			"empty ticker result for "+market.ID, "")
	}
	return c.parseTicker(rows[0], market.Symbol), nil
}

func (c *Connector) parseTicker(row map[string]any, symbol string) *interfaces.Ticker {
	stats := numeric.SafeValue(row, "stats")
	ticker := &interfaces.Ticker{
		Symbol:      symbol,
		Timestamp:   numeric.SafeTimestamp(row, "timestamp"),
		Bid:         numeric.SafeFloat(row, "best_bid_price"),
		Ask:         numeric.SafeFloat(row, "best_ask_price"),
		Last:        numeric.SafeFloat(row, "last_price"),
		Open:        numeric.SafeFloat(row, "open_price"),
		BaseVolume:  numeric.SafeFloat(row, "base_volume"),
		QuoteVolume: numeric.SafeFloat(row, "quote_volume"),
	}
	if stats != nil {
		ticker.High = numeric.SafeFloat(stats, "high")
		ticker.Low = numeric.SafeFloat(stats, "low")
		if ticker.BaseVolume == 0 {
			ticker.BaseVolume = numeric.SafeFloat(stats, "volume")
		}
	}
	return ticker
}

// FetchOrderBook implements interfaces.Exchange.
func (c *Connector) FetchOrderBook(ctx context.Context, symbol string, limit int) (*interfaces.OrderBook, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("instrument_name", market.ID)
	if limit > 0 {
		query.Set("depth", strconv.Itoa(limit))
	}

	var result struct {
		Timestamp int64       `json:"timestamp"`
		Bids      [][2]string `json:"bids"`
		Asks      [][2]string `json:"asks"`
	}
	if err := c.call(ctx, http.MethodGet, "public/get_order_book", query, nil, false, &result); err != nil {
		return nil, err
	}

	book := &interfaces.OrderBook{
		Symbol:    market.Symbol,
		Timestamp: numeric.NormalizeTimestamp(result.Timestamp),
		Bids:      parseBookSide(result.Bids),
		Asks:      parseBookSide(result.Asks),
	}
	return book, nil
}

func parseBookSide(levels [][2]string) []interfaces.BookLevel {
	side := make([]interfaces.BookLevel, 0, len(levels))
	for _, level := range levels {
		side = append(side, interfaces.BookLevel{
			Price:  numeric.ToFloat(level[0]),
			Amount: numeric.ToFloat(level[1]),
		})
	}
	return side
}

// FetchTrades implements interfaces.Exchange.
func (c *Connector) FetchTrades(ctx context.Context, symbol string, limit int) ([]interfaces.Trade, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("instrument_name", market.ID)
	if limit > 0 {
		query.Set("count", strconv.Itoa(limit))
	}

	var result struct {
		Trades []map[string]any `json:"trades"`
	}
	if err := c.call(ctx, http.MethodGet, "public/get_last_trades_by_instrument", query, nil, false, &result); err != nil {
		return nil, err
	}

	trades := make([]interfaces.Trade, 0, len(result.Trades))
	for _, row := range result.Trades {
		trades = append(trades, c.parseTrade(row, market.Symbol))
	}
	return trades, nil
}

func (c *Connector) parseTrade(row map[string]any, symbol string) interfaces.Trade {
	price := numeric.SafeString(row, "price")
	amount := numeric.SafeString(row, "amount")
	side := interfaces.SideBuy
	if numeric.SafeString(row, "direction") == "sell" {
		side = interfaces.SideSell
	}
	return interfaces.Trade{
		ID:        numeric.SafeString(row, "trade_id"),
		OrderID:   numeric.SafeString(row, "order_id"),
		Symbol:    symbol,
		Timestamp: numeric.SafeTimestamp(row, "timestamp"),
		Side:      side,
		Price:     price,
		Amount:    amount,
		Cost:      numeric.Mul(price, amount),
		FeeCost:   numeric.SafeString(row, "fee"),
	}
}

// FetchOHLCV implements interfaces.Exchange. The chart endpoint
// returns parallel arrays in tradingview layout.
func (c *Connector) FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int) ([]interfaces.OHLCV, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}
	resolution, ok := timeframes[timeframe]
	if !ok {
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrNotSupported, "",
			"unsupported timeframe "+timeframe, "")
	}

	if limit <= 0 {
		limit = 100
	}
	end := time.Now().UnixMilli()
	start := since
	if start <= 0 {
		start = end - int64(limit)*timeframeMillis(timeframe)
	}

	query := url.Values{}
	query.Set("instrument_name", market.ID)
	query.Set("resolution", resolution)
	query.Set("start_timestamp", strconv.FormatInt(start/1000, 10))
	query.Set("end_timestamp", strconv.FormatInt(end/1000, 10))

	var result struct {
		Ticks  []int64   `json:"ticks"`
		Open   []float64 `json:"open"`
		High   []float64 `json:"high"`
		Low    []float64 `json:"low"`
		Close  []float64 `json:"close"`
		Volume []float64 `json:"volume"`
	}
	if err := c.call(ctx, http.MethodGet, "public/get_tradingview_chart_data", query, nil, false, &result); err != nil {
		return nil, err
	}

	candles := make([]interfaces.OHLCV, 0, len(result.Ticks))
	for i, tick := range result.Ticks {
		if i >= len(result.Open) || i >= len(result.High) || i >= len(result.Low) ||
			i >= len(result.Close) || i >= len(result.Volume) {
			break
		}
		candles = append(candles, interfaces.OHLCV{
			Timestamp: numeric.NormalizeTimestamp(tick),
			Open:      result.Open[i],
			High:      result.High[i],
			Low:       result.Low[i],
			Close:     result.Close[i],
			Volume:    result.Volume[i],
		})
	}
	return candles, nil
}

func timeframeMillis(tf string) int64 {
	switch tf {
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

// FetchBalance implements interfaces.Exchange.
func (c *Connector) FetchBalance(ctx context.Context) (interfaces.Balances, error) {
	var rows []map[string]any
	if err := c.call(ctx, http.MethodPost, "private/get_assets_info", nil,
		map[string]any{}, true, &rows); err != nil {
		return nil, err
	}

	balances := make(interfaces.Balances, len(rows))
	for _, row := range rows {
		currency := strings.ToUpper(numeric.SafeString(row, "currency"))
		if currency == "" {
			continue
		}
		free := numeric.SafeString(row, "available")
		used := numeric.SafeString(row, "freeze")
		total := numeric.SafeString(row, "total")
		if total == "" {
			total = numeric.Add(free, used)
		}
		balances[currency] = interfaces.Balance{
			Currency: currency,
			Free:     free,
			Used:     used,
			Total:    total,
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
	if req.Type == interfaces.OrderTypeLimit && req.Price == "" {
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrInvalidOrder, "",
			"limit order requires a price", "")
	}

	path := "private/buy"
	if req.Side == interfaces.SideSell {
		path = "private/sell"
	}

	params := map[string]any{
		"instrument_name": market.ID,
		"amount":          req.Amount,
		"type":            string(req.Type),
	}
	if req.Price != "" {
		params["price"] = numeric.Round(req.Price, market.PricePrecision)
	}
	if req.ClientID != "" {
		params["client_order_id"] = req.ClientID
	}

	var result struct {
		Order map[string]any `json:"order"`
	}
	if err := c.call(ctx, http.MethodPost, path, nil, params, true, &result); err != nil {
		return nil, err
	}
	order := c.parseOrder(result.Order, market.Symbol)
	return &order, nil
}

// CancelOrder implements interfaces.Exchange.
func (c *Connector) CancelOrder(ctx context.Context, id, symbol string) (*interfaces.Order, error) {
	var row map[string]any
	if err := c.call(ctx, http.MethodPost, "private/cancel", nil,
		map[string]any{"order_id": id}, true, &row); err != nil {
		return nil, err
	}
	order := c.parseOrder(row, symbol)
	return &order, nil
}

// FetchOrder implements interfaces.Exchange.
func (c *Connector) FetchOrder(ctx context.Context, id, symbol string) (*interfaces.Order, error) {
	var row map[string]any
	if err := c.call(ctx, http.MethodPost, "private/get_order_state", nil,
		map[string]any{"order_id": id}, true, &row); err != nil {
		return nil, err
	}
	order := c.parseOrder(row, symbol)
	return &order, nil
}

// FetchOpenOrders implements interfaces.Exchange.
func (c *Connector) FetchOpenOrders(ctx context.Context, symbol string) ([]interfaces.Order, error) {
	params := map[string]any{}
	if symbol != "" {
		market, err := c.markets.Resolve(ctx, symbol)
		if err != nil {
			return nil, err
		}
		params["instrument_name"] = market.ID
	}

	var rows []map[string]any
	if err := c.call(ctx, http.MethodPost, "private/get_open_orders_by_instrument", nil,
		params, true, &rows); err != nil {
		return nil, err
	}

	orders := make([]interfaces.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, c.parseOrder(row, symbol))
	}
	return orders, nil
}

// FetchPositions returns open margin positions. Margin ratio and PnL
// derivations run through decimal strings end to end.
func (c *Connector) FetchPositions(ctx context.Context, currency string) ([]interfaces.Position, error) {
	params := map[string]any{}
	if currency != "" {
		params["currency"] = currency
	}

	var rows []map[string]any
	if err := c.call(ctx, http.MethodPost, "private/get_positions", nil, params, true, &rows); err != nil {
		return nil, err
	}

	positions := make([]interfaces.Position, 0, len(rows))
	for _, row := range rows {
		positions = append(positions, c.parsePosition(row))
	}
	return positions, nil
}

func (c *Connector) parsePosition(row map[string]any) interfaces.Position {
	size := numeric.SafeString(row, "size")
	entry := numeric.SafeString(row, "average_price")
	mark := numeric.SafeString(row, "mark_price")
	margin := numeric.SafeString(row, "initial_margin")

	side := interfaces.SideBuy
	if numeric.SafeString(row, "direction") == "sell" || strings.HasPrefix(size, "-") {
		side = interfaces.SideSell
	}

	pnl := numeric.SafeString(row, "unrealized_pnl")
	if pnl == "" && entry != "" && mark != "" {
		pnl = numeric.Mul(numeric.Sub(mark, entry), size)
	}

	ratio := ""
	notional := numeric.Mul(mark, size)
	if margin != "" && numeric.Cmp(notional, "0") != 0 {
		ratio = numeric.Div(margin, notional)
	}

	return interfaces.Position{
		ID:            numeric.SafeString(row, "position_id"),
		Symbol:        numeric.SafeString(row, "instrument_name"),
		Side:          side,
		Timestamp:     numeric.SafeTimestamp(row, "creation_timestamp"),
		Amount:        size,
		EntryPrice:    entry,
		MarkPrice:     mark,
		UnrealizedPnL: pnl,
		Margin:        margin,
		Leverage:      numeric.SafeString(row, "leverage"),
		MarginRatio:   ratio,
	}
}

func (c *Connector) parseOrder(row map[string]any, symbol string) interfaces.Order {
	if row == nil {
		return interfaces.Order{Symbol: symbol}
	}

	price := numeric.SafeString(row, "price")
	amount := numeric.SafeString(row, "amount")
	filled := numeric.SafeString(row, "filled_amount")
	avg := numeric.SafeString(row, "average_price")
	if avg == "" {
		avg = price
	}

	remaining := amount
	if filled != "" && amount != "" {
		remaining = numeric.Sub(amount, filled)
	}

	cost := ""
	if filled != "" && avg != "" {
		cost = numeric.Mul(filled, avg)
	}

	side := interfaces.SideBuy
	if numeric.SafeString(row, "direction") == "sell" {
		side = interfaces.SideSell
	}

	return interfaces.Order{
		ID:           numeric.SafeString(row, "order_id"),
		ClientID:     numeric.SafeString(row, "client_order_id"),
		Symbol:       symbol,
		Type:         interfaces.OrderType(numeric.SafeString(row, "order_type")),
		Side:         side,
		Status:       parseOrderStatus(numeric.SafeString(row, "order_state")),
		Timestamp:    numeric.SafeTimestamp(row, "creation_timestamp"),
		Price:        price,
		Amount:       amount,
		Filled:       filled,
		Remaining:    remaining,
		Cost:         cost,
		AveragePrice: avg,
		FeeCost:      numeric.SafeString(row, "fee"),
		FeeCurrency:  numeric.SafeString(row, "fee_currency"),
	}
}

func parseOrderStatus(state string) interfaces.OrderStatus {
	switch state {
	case "open", "new", "untriggered":
		return interfaces.OrderStatusOpen
	case "filled":
		return interfaces.OrderStatusClosed
	case "cancelled", "canceled":
		return interfaces.OrderStatusCanceled
	case "rejected":
		return interfaces.OrderStatusRejected
	default:
		return interfaces.OrderStatus(state)
	}
}

// decimalPlaces counts fractional digits of a decimal string, used to
// derive precision from tick sizes and minimum quantities.
func decimalPlaces(s string) int {
	idx := strings.IndexByte(s, '.')
	if idx < 0 {
		return 0
	}
	return len(strings.TrimRight(s[idx+1:], "0"))
}

var _ interfaces.Exchange = (*Connector)(nil)

// EnsureSignedIn exposes the lazy sign-in for callers that want to
// fail fast on bad credentials before the first private call.
func (c *Connector) EnsureSignedIn(ctx context.Context) error {
	return c.session.EnsureSignedIn(ctx)
}

// String implements fmt.Stringer for log friendliness.
func (c *Connector) String() string {
	return fmt.Sprintf("%s(%s)", venueID, c.baseURL)
}
