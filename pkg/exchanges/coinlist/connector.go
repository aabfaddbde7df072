// Package coinlist implements the Coinlist Pro venue adapter. Private
// endpoints use a bearer token obtained through a sign-in exchange;
// the session layer refreshes it lazily when it expires. Errors arrive
// as a JSON object with message_code and message fields.
package coinlist

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
	venueID        = "coinlist"
	defaultBaseURL = "https://trade-api.coinlist.co"
)

var granularities = map[string]string{
	"1m":  "1m",
	"5m":  "5m",
	"30m": "30m",
	"1h":  "1h",
	"6h":  "6h",
	"1d":  "1d",
}

// Connector implements interfaces.Exchange for Coinlist Pro.
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

// NewConnector creates a Coinlist adapter.
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

func newClassifier() *interfaces.Classifier {
	return &interfaces.Classifier{
		Venue: venueID,
		Exact: map[string]error{
			"AUTH_SIG_INVALID":    interfaces.ErrAuthentication,
			"AUTH_KEY_EXPIRED":    interfaces.ErrAuthentication,
			"TRADING_DISABLED":    interfaces.ErrPermissionDenied,
			"ORDER_NOT_FOUND":     interfaces.ErrOrderNotFound,
			"ORDER_REJECTED":      interfaces.ErrInvalidOrder,
			"INSUFFICIENT_FUNDS":  interfaces.ErrInsufficientFunds,
			"SYMBOL_NOT_FOUND":    interfaces.ErrBadRequest,
			"RATE_LIMIT_EXCEEDED": interfaces.ErrRateLimit,
		},
		Broad: []interfaces.SubstringRule{
			{Fragment: "insufficient", Kind: interfaces.ErrInsufficientFunds},
			{Fragment: "not found", Kind: interfaces.ErrOrderNotFound},
			{Fragment: "unauthorized", Kind: interfaces.ErrAuthentication},
			{Fragment: "maintenance", Kind: interfaces.ErrExchangeNotAvailable},
		},
	}
}

// signIn trades the key pair for a short-lived bearer token.
func (c *Connector) signIn(ctx context.Context) (interfaces.SessionToken, error) {
	body, err := json.Marshal(map[string]string{
		"key":    c.options.Credentials.APIKey,
		"secret": c.options.Credentials.Secret,
	})
	if err != nil {
		return interfaces.SessionToken{}, interfaces.NewVenueError(venueID,
			interfaces.ErrExchange, "", err.Error(), "")
	}

	resp, err := c.http.Send(ctx, http.MethodPost, c.baseURL+"/v1/auth/token",
		http.Header{"Content-Type": []string{"application/json"}}, body)
	if err != nil {
		return interfaces.SessionToken{}, interfaces.NewVenueError(venueID,
			interfaces.ErrExchangeNotAvailable, "", err.Error(), "")
	}

	var result struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
	}
	raw, decodeErr := common.DecodeJSON(resp, &result)
	if resp.StatusCode >= 400 {
		return interfaces.SessionToken{}, c.classifier.ClassifyStatus(resp.StatusCode, raw)
	}
	if decodeErr != nil {
		return interfaces.SessionToken{}, interfaces.NewVenueError(venueID,
			interfaces.ErrExchange, "", decodeErr.Error(), string(raw))
	}
	if result.Token == "" {
		return interfaces.SessionToken{}, interfaces.NewVenueError(venueID,
			interfaces.ErrAuthentication, "", "sign-in response carried no token", string(raw))
	}

	now := time.Now()
	token := interfaces.SessionToken{Value: result.Token, ObtainedAt: now}
	if result.ExpiresIn > 0 {
		token.ExpiresAt = now.Add(time.Duration(result.ExpiresIn) * time.Second)
	}
	return token, nil
}

type venueFault struct {
	MessageCode string `json:"message_code"`
	Message     string `json:"message"`
}

func (c *Connector) call(ctx context.Context, method, path string, query url.Values, body any, private bool, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req := auth.NewRequest(method, endpoint, path, "")
	req.Header.Set("Content-Type", "application/json")
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return interfaces.NewVenueError(venueID, interfaces.ErrBadRequest, "", err.Error(), "")
		}
		payload = encoded
	}

	if private {
		if err := c.bearer.SignContext(ctx, req); err != nil {
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
	if resp.StatusCode >= 400 {
		var fault venueFault
		if json.Unmarshal(raw, &fault) == nil && (fault.MessageCode != "" || fault.Message != "") {
			verr := c.classifier.Classify(fault.MessageCode, fault.Message, raw)
			verr.HTTPStatus = resp.StatusCode
			return verr
		}
		return c.classifier.ClassifyStatus(resp.StatusCode, raw)
	}
	if decodeErr != nil {
		return interfaces.NewVenueError(venueID, interfaces.ErrExchange, "", decodeErr.Error(), string(raw))
	}
	return nil
}

func (c *Connector) loadMarkets(ctx context.Context) ([]interfaces.Market, error) {
	var result struct {
		Symbols []map[string]any `json:"symbols"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/symbols", nil, nil, false, &result); err != nil {
		return nil, err
	}

	markets := make([]interfaces.Market, 0, len(result.Symbols))
	for _, row := range result.Symbols {
		id := numeric.SafeString(row, "symbol")
		base := strings.ToUpper(numeric.SafeString(row, "base_currency"))
		quote := strings.ToUpper(numeric.SafeString(row, "quote_currency"))
		if id == "" || base == "" || quote == "" {
			continue
		}
		markets = append(markets, interfaces.Market{
			ID:              id,
			Symbol:          base + "/" + quote,
			Base:            base,
			Quote:           quote,
			Active:          numeric.SafeString(row, "trading_enabled") != "false",
			AmountPrecision: decimalPlaces(numeric.SafeString(row, "minimum_size_increment")),
			PricePrecision:  decimalPlaces(numeric.SafeString(row, "minimum_price_increment")),
			MinAmount:       numeric.SafeString(row, "minimum_order_size"),
		})
	}
	return markets, nil
}

// FetchMarkets implements interfaces.Exchange.
func (c *Connector) FetchMarkets(ctx context.Context) ([]interfaces.Market, error) {
	return c.markets.All(ctx)
}

// FetchTicker implements interfaces.Exchange.
func (c *Connector) FetchTicker(ctx context.Context, symbol string) (*interfaces.Ticker, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var row map[string]any
	path := "/v1/symbols/" + url.PathEscape(market.ID) + "/summary"
	if err := c.call(ctx, http.MethodGet, path, nil, nil, false, &row); err != nil {
		return nil, err
	}

	return &interfaces.Ticker{
		Symbol:     market.Symbol,
		Timestamp:  time.Now().UnixMilli(),
		Bid:        numeric.SafeFloat(row, "highest_bid"),
		Ask:        numeric.SafeFloat(row, "lowest_ask"),
		Last:       numeric.SafeFloat(row, "last_price"),
		High:       numeric.SafeFloat(row, "highest_price_24h"),
		Low:        numeric.SafeFloat(row, "lowest_price_24h"),
		BaseVolume: numeric.SafeFloat(row, "volume_base_24h"),
	}, nil
}

// FetchOrderBook implements interfaces.Exchange.
func (c *Connector) FetchOrderBook(ctx context.Context, symbol string, limit int) (*interfaces.OrderBook, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var result struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	path := "/v1/symbols/" + url.PathEscape(market.ID) + "/book"
	if err := c.call(ctx, http.MethodGet, path, nil, nil, false, &result); err != nil {
		return nil, err
	}

	book := &interfaces.OrderBook{
		Symbol:    market.Symbol,
		Timestamp: time.Now().UnixMilli(),
	}
	for _, level := range result.Bids {
		if limit > 0 && len(book.Bids) >= limit {
			break
		}
		book.Bids = append(book.Bids, interfaces.BookLevel{
			Price:  numeric.ToFloat(level[0]),
			Amount: numeric.ToFloat(level[1]),
		})
	}
	for _, level := range result.Asks {
		if limit > 0 && len(book.Asks) >= limit {
			break
		}
		book.Asks = append(book.Asks, interfaces.BookLevel{
			Price:  numeric.ToFloat(level[0]),
			Amount: numeric.ToFloat(level[1]),
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
		query.Set("count", strconv.Itoa(limit))
	}

	var result struct {
		Auctions []map[string]any `json:"auctions"`
	}
	path := "/v1/symbols/" + url.PathEscape(market.ID) + "/auctions"
	if err := c.call(ctx, http.MethodGet, path, query, nil, false, &result); err != nil {
		return nil, err
	}

	trades := make([]interfaces.Trade, 0, len(result.Auctions))
	for _, row := range result.Auctions {
		price := numeric.SafeString(row, "price")
		amount := numeric.SafeString(row, "volume")
		// A negative imbalance means sell pressure cleared the auction.
		side := interfaces.SideBuy
		if strings.HasPrefix(numeric.SafeString(row, "imbalance"), "-") {
			side = interfaces.SideSell
		}
		trades = append(trades, interfaces.Trade{
			ID:        numeric.SafeString(row, "logical_time"),
			Symbol:    market.Symbol,
			Timestamp: parseRFC3339(numeric.SafeString(row, "logical_time")),
			Side:      side,
			Price:     price,
			Amount:    amount,
			Cost:      numeric.Mul(price, amount),
		})
	}
	return trades, nil
}

// FetchOHLCV implements interfaces.Exchange. Candle rows arrive as
// [time, open, high, low, close, volume] arrays with an RFC3339 time.
func (c *Connector) FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int) ([]interfaces.OHLCV, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}
	granularity, ok := granularities[timeframe]
	if !ok {
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrNotSupported, "",
			"unsupported timeframe "+timeframe, "")
	}

	query := url.Values{}
	query.Set("granularity", granularity)
	if since > 0 {
		query.Set("start_time", time.UnixMilli(since).UTC().Format(time.RFC3339))
	}

	var result struct {
		Candles [][6]any `json:"candles"`
	}
	path := "/v1/symbols/" + url.PathEscape(market.ID) + "/candles"
	if err := c.call(ctx, http.MethodGet, path, query, nil, false, &result); err != nil {
		return nil, err
	}

	candles := make([]interfaces.OHLCV, 0, len(result.Candles))
	for _, row := range result.Candles {
		if limit > 0 && len(candles) >= limit {
			break
		}
		candles = append(candles, interfaces.OHLCV{
			Timestamp: parseRFC3339(asString(row[0])),
			Open:      numeric.ToFloat(asString(row[1])),
			High:      numeric.ToFloat(asString(row[2])),
			Low:       numeric.ToFloat(asString(row[3])),
			Close:     numeric.ToFloat(asString(row[4])),
			Volume:    numeric.ToFloat(asString(row[5])),
		})
	}
	return candles, nil
}

// FetchBalance implements interfaces.Exchange. The venue reports free
// and held funds in two parallel currency maps.
func (c *Connector) FetchBalance(ctx context.Context) (interfaces.Balances, error) {
	var result struct {
		AssetBalances map[string]string `json:"asset_balances"`
		AssetHolds    map[string]string `json:"asset_holds"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/balances", nil, nil, true, &result); err != nil {
		return nil, err
	}

	balances := make(interfaces.Balances, len(result.AssetBalances))
	for currency, total := range result.AssetBalances {
		code := strings.ToUpper(currency)
		used := result.AssetHolds[currency]
		if used == "" {
			used = "0"
		}
		balances[code] = interfaces.Balance{
			Currency: code,
			Free:     numeric.Sub(total, used),
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

	body := map[string]any{
		"symbol": market.ID,
		"side":   string(req.Side),
		"size":   req.Amount,
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
	case interfaces.OrderTypeStopLimit:
		if req.Price == "" || req.StopPrice == "" {
			return nil, interfaces.NewVenueError(venueID, interfaces.ErrInvalidOrder, "",
				"stop-limit order requires price and stop price", "")
		}
		body["type"] = "stop_limit"
		body["price"] = numeric.Round(req.Price, market.PricePrecision)
		body["stop_price"] = req.StopPrice
	default:
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrNotSupported, "",
			"unsupported order type "+string(req.Type), "")
	}
	if req.ClientID != "" {
		body["client_id"] = req.ClientID
	}

	var result struct {
		Order map[string]any `json:"order"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/orders", nil, body, true, &result); err != nil {
		return nil, err
	}
	order := c.parseOrder(result.Order, market.Symbol)
	return &order, nil
}

// CancelOrder implements interfaces.Exchange.
func (c *Connector) CancelOrder(ctx context.Context, id, symbol string) (*interfaces.Order, error) {
	if err := c.call(ctx, http.MethodDelete, "/v1/orders/"+url.PathEscape(id), nil, nil, true, nil); err != nil {
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
	if err := c.call(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(id), nil, nil, true, &row); err != nil {
		return nil, err
	}
	order := c.parseOrder(row, symbol)
	return &order, nil
}

// FetchOpenOrders implements interfaces.Exchange.
func (c *Connector) FetchOpenOrders(ctx context.Context, symbol string) ([]interfaces.Order, error) {
	query := url.Values{}
	query.Set("status", "accepted")
	if symbol != "" {
		market, err := c.markets.Resolve(ctx, symbol)
		if err != nil {
			return nil, err
		}
		query.Set("symbol", market.ID)
	}

	var result struct {
		Orders []map[string]any `json:"orders"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/orders", query, nil, true, &result); err != nil {
		return nil, err
	}

	orders := make([]interfaces.Order, 0, len(result.Orders))
	for _, row := range result.Orders {
		orders = append(orders, c.parseOrder(row, ""))
	}
	return orders, nil
}

// FetchTransfers returns deposit and withdrawal history.
func (c *Connector) FetchTransfers(ctx context.Context, currency string, limit int) ([]interfaces.Transaction, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("count", strconv.Itoa(limit))
	}

	var result struct {
		Transfers []map[string]any `json:"transfers"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/transfers", query, nil, true, &result); err != nil {
		return nil, err
	}

	transactions := make([]interfaces.Transaction, 0, len(result.Transfers))
	for _, row := range result.Transfers {
		asset := strings.ToUpper(numeric.SafeString(row, "asset"))
		if currency != "" && asset != strings.ToUpper(currency) {
			continue
		}
		amount := numeric.SafeString(row, "amount")
		kind := interfaces.TransactionDeposit
		if strings.HasPrefix(amount, "-") {
			kind = interfaces.TransactionWithdrawal
			amount = strings.TrimPrefix(amount, "-")
		}
		transactions = append(transactions, interfaces.Transaction{
			ID:        numeric.SafeString(row, "transfer_id"),
			Type:      kind,
			Currency:  asset,
			Amount:    amount,
			Status:    numeric.SafeString(row, "status"),
			Timestamp: parseRFC3339(numeric.SafeString(row, "created_at")),
		})
	}
	return transactions, nil
}

// EnsureSignedIn eagerly performs the token exchange.
func (c *Connector) EnsureSignedIn(ctx context.Context) error {
	return c.session.EnsureSignedIn(ctx)
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

	amount := numeric.SafeString(row, "size")
	filled := numeric.SafeString(row, "size_filled")
	remaining := ""
	if amount != "" && filled != "" {
		remaining = numeric.Sub(amount, filled)
	}

	avg := numeric.SafeString(row, "average_fill_price")
	cost := ""
	if filled != "" && avg != "" {
		cost = numeric.Mul(filled, avg)
	}

	side := interfaces.SideBuy
	if numeric.SafeString(row, "side") == "sell" {
		side = interfaces.SideSell
	}

	return interfaces.Order{
		ID:           numeric.SafeString(row, "order_id"),
		ClientID:     numeric.SafeString(row, "client_id"),
		Symbol:       symbol,
		Type:         parseOrderType(numeric.SafeString(row, "type")),
		Side:         side,
		Status:       parseOrderStatus(numeric.SafeString(row, "status")),
		Timestamp:    parseRFC3339(numeric.SafeString(row, "created_at")),
		Price:        numeric.SafeString(row, "price"),
		StopPrice:    numeric.SafeString(row, "stop_price"),
		Amount:       amount,
		Filled:       filled,
		Remaining:    remaining,
		Cost:         cost,
		AveragePrice: avg,
		FeeCost:      numeric.SafeString(row, "fill_fees"),
	}
}

func parseOrderType(t string) interfaces.OrderType {
	switch t {
	case "limit":
		return interfaces.OrderTypeLimit
	case "market":
		return interfaces.OrderTypeMarket
	case "stop_limit":
		return interfaces.OrderTypeStopLimit
	case "stop_market":
		return interfaces.OrderTypeStop
	default:
		return interfaces.OrderType(t)
	}
}

func parseOrderStatus(s string) interfaces.OrderStatus {
	switch s {
	case "pending", "accepted":
		return interfaces.OrderStatusOpen
	case "filled", "done":
		return interfaces.OrderStatusClosed
	case "canceled", "cancel-pending":
		return interfaces.OrderStatusCanceled
	case "rejected":
		return interfaces.OrderStatusRejected
	default:
		return interfaces.OrderStatus(s)
	}
}

func parseRFC3339(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func decimalPlaces(s string) int {
	idx := strings.IndexByte(s, '.')
	if idx < 0 {
		return 0
	}
	return len(strings.TrimRight(s[idx+1:], "0"))
}

var _ interfaces.Exchange = (*Connector)(nil)
