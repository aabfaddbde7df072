// Package waves implements the Waves.Exchange venue adapter. It talks
// to three hosts: the matcher (order placement and cancellation), a
// chain node (transaction broadcast for withdrawals) and the data API
// (market data and balances). Orders and cancellations are not
// header-authenticated; each carries an Ed25519 signature over the
// fixed binary serialization of its fields, embedded as a JSON body
// field. Balance reads use a bearer token from the oauth2 exchange.
//
// On-chain values are integers scaled by asset decimals; matcher
// prices are additionally scaled by 10^(8+priceDecimals-
// amountDecimals). Conversion to and from human decimal strings goes
// through pkg/numeric, never float64.
package waves

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/veiloq/venue-adapters/pkg/auth"
	"github.com/veiloq/venue-adapters/pkg/common"
	"github.com/veiloq/venue-adapters/pkg/exchanges/interfaces"
	"github.com/veiloq/venue-adapters/pkg/logging"
	"github.com/veiloq/venue-adapters/pkg/numeric"
	"github.com/veiloq/venue-adapters/pkg/ratelimit"
)

const (
	venueID = "waves"

	defaultMatcherURL = "https://matcher.waves.exchange"
	defaultNodeURL    = "https://nodes.waves.exchange"
	defaultAPIURL     = "https://api.waves.exchange/v1"

	nativeAssetID = "WAVES"

	// matcherPriceShift is the extra scale the matcher applies to
	// prices on top of the asset decimal difference.
	matcherPriceShift = 8

	// defaultMatcherFee is 0.003 WAVES in 10^-8 units.
	defaultMatcherFee = 300_000

	// defaultTransferFee is 0.001 WAVES in 10^-8 units.
	defaultTransferFee = 100_000

	// transferBroadcastType is the chain transaction type of a transfer.
	transferBroadcastType = 4

	orderLifetime = 29 * 24 * time.Hour
)

var intervals = map[string]string{
	"1m":  "1m",
	"5m":  "5m",
	"15m": "15m",
	"30m": "30m",
	"1h":  "1h",
	"4h":  "4h",
	"1d":  "1d",
}

// Endpoints overrides the three venue hosts, mainly for tests.
type Endpoints struct {
	Matcher string
	Node    string
	API     string
}

// Connector implements interfaces.Exchange for Waves.Exchange.
type Connector struct {
	options    *interfaces.Options
	endpoints  Endpoints
	http       common.HTTPClient
	logger     logging.Logger
	signer     *auth.EdDSASigner
	session    *auth.Session
	bearer     *auth.BearerSigner
	classifier *interfaces.Classifier
	markets    *interfaces.MarketCache
}

// NewConnector creates a Waves adapter with the production hosts.
// Credentials.APIKey/Secret drive the oauth2 exchange for read
// endpoints; Credentials.Secret doubles as the base58 Ed25519 seed
// for order signing.
func NewConnector(options *interfaces.Options) *Connector {
	return NewConnectorWithEndpoints(options, Endpoints{})
}

// NewConnectorWithEndpoints creates a Waves adapter against custom
// hosts. Empty fields fall back to the production defaults.
func NewConnectorWithEndpoints(options *interfaces.Options, endpoints Endpoints) *Connector {
	if options == nil {
		options = interfaces.NewOptions()
	}
	if endpoints.Matcher == "" {
		endpoints.Matcher = defaultMatcherURL
	}
	if endpoints.Node == "" {
		endpoints.Node = defaultNodeURL
	}
	if endpoints.API == "" {
		endpoints.API = defaultAPIURL
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
		endpoints:  endpoints,
		http:       httpClient,
		logger:     logger,
		signer:     auth.NewEdDSASigner(venueID, options.Credentials),
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
			"3145733":   interfaces.ErrInvalidOrder,
			"3148040":   interfaces.ErrInsufficientFunds,
			"9437184":   interfaces.ErrOrderNotFound,
			"106954752": interfaces.ErrAuthentication,
		},
		Broad: []interfaces.SubstringRule{
			{Fragment: "not enough", Kind: interfaces.ErrInsufficientFunds},
			{Fragment: "insufficient", Kind: interfaces.ErrInsufficientFunds},
			{Fragment: "signature", Kind: interfaces.ErrAuthentication},
			{Fragment: "order not found", Kind: interfaces.ErrOrderNotFound},
			{Fragment: "already canceled", Kind: interfaces.ErrOrderNotFound},
			{Fragment: "too many requests", Kind: interfaces.ErrRateLimit},
		},
	}
}

// signIn trades the key pair for an oauth2 bearer token.
func (c *Connector) signIn(ctx context.Context) (interfaces.SessionToken, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.options.Credentials.APIKey)
	form.Set("client_secret", c.options.Credentials.Secret)

	header := http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}}
	resp, err := c.http.Send(ctx, http.MethodPost, c.endpoints.API+"/oauth2/token",
		header, []byte(form.Encode()))
	if err != nil {
		return interfaces.SessionToken{}, interfaces.NewVenueError(venueID,
			interfaces.ErrExchangeNotAvailable, "", err.Error(), "")
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	raw, decodeErr := common.DecodeJSON(resp, &result)
	if resp.StatusCode >= 400 {
		return interfaces.SessionToken{}, c.classifier.ClassifyStatus(resp.StatusCode, raw)
	}
	if decodeErr != nil {
		return interfaces.SessionToken{}, interfaces.NewVenueError(venueID,
			interfaces.ErrExchange, "", decodeErr.Error(), string(raw))
	}
	if result.AccessToken == "" {
		return interfaces.SessionToken{}, interfaces.NewVenueError(venueID,
			interfaces.ErrAuthentication, "", "oauth2 response carried no access token", string(raw))
	}

	now := time.Now()
	token := interfaces.SessionToken{Value: result.AccessToken, ObtainedAt: now}
	if result.ExpiresIn > 0 {
		token.ExpiresAt = now.Add(time.Duration(result.ExpiresIn) * time.Second)
	}
	return token, nil
}

type venueFault struct {
	Error   json.Number `json:"error"`
	Message string      `json:"message"`
}

// call executes one endpoint against the given host. The request is
// pre-built by the caller when it needs a signature; header holds any
// authentication already attached.
func (c *Connector) call(ctx context.Context, method, endpoint string, header http.Header, body []byte, out any) error {
	resp, err := c.http.Send(ctx, method, endpoint, header, body)
	if err != nil {
		if ctx.Err() != nil {
			return interfaces.NewVenueError(venueID, interfaces.ErrCancelled, "", ctx.Err().Error(), "")
		}
		return interfaces.NewVenueError(venueID, interfaces.ErrExchangeNotAvailable, "", err.Error(), "")
	}

	raw, decodeErr := common.DecodeJSON(resp, out)
	if resp.StatusCode >= 400 {
		var fault venueFault
		if json.Unmarshal(raw, &fault) == nil && fault.Message != "" {
			verr := c.classifier.Classify(fault.Error.String(), fault.Message, raw)
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

// matcherPublicKey fetches and caches the matcher's signing key; every
// order payload embeds it.
func (c *Connector) matcherPublicKey(ctx context.Context) (string, error) {
	v, err := c.session.AccountContext(ctx, "matcherPublicKey", false, func(ctx context.Context) (any, error) {
		var key string
		if err := c.call(ctx, http.MethodGet, c.endpoints.Matcher+"/matcher", nil, nil, &key); err != nil {
			return nil, err
		}
		if key == "" {
			return nil, interfaces.NewVenueError(venueID, interfaces.ErrExchange, "",
				"matcher returned an empty public key", "")
		}
		return key, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Connector) loadMarkets(ctx context.Context) ([]interfaces.Market, error) {
	var result struct {
		Markets []struct {
			AmountAsset     string `json:"amountAsset"`
			AmountAssetName string `json:"amountAssetName"`
			AmountAssetInfo struct {
				Decimals int `json:"decimals"`
			} `json:"amountAssetInfo"`
			PriceAsset     string `json:"priceAsset"`
			PriceAssetName string `json:"priceAssetName"`
			PriceAssetInfo struct {
				Decimals int `json:"decimals"`
			} `json:"priceAssetInfo"`
		} `json:"markets"`
	}
	if err := c.call(ctx, http.MethodGet, c.endpoints.Matcher+"/matcher/orderbook", nil, nil, &result); err != nil {
		return nil, err
	}

	markets := make([]interfaces.Market, 0, len(result.Markets))
	for _, row := range result.Markets {
		base := strings.ToUpper(row.AmountAssetName)
		quote := strings.ToUpper(row.PriceAssetName)
		if row.AmountAsset == "" || row.PriceAsset == "" || base == "" || quote == "" {
			continue
		}
		markets = append(markets, interfaces.Market{
			ID:              row.AmountAsset + "/" + row.PriceAsset,
			Symbol:          base + "/" + quote,
			Base:            base,
			Quote:           quote,
			Active:          true,
			AmountPrecision: row.AmountAssetInfo.Decimals,
			PricePrecision:  row.PriceAssetInfo.Decimals,
		})
	}
	return markets, nil
}

// FetchMarkets implements interfaces.Exchange.
func (c *Connector) FetchMarkets(ctx context.Context) ([]interfaces.Market, error) {
	return c.markets.All(ctx)
}

// splitPair returns the amount and price asset ids of a market.
func splitPair(market interfaces.Market) (string, string) {
	parts := strings.SplitN(market.ID, "/", 2)
	if len(parts) != 2 {
		return market.ID, ""
	}
	return parts[0], parts[1]
}

// priceDecimals is the scale matcher prices use for this pair.
func priceDecimals(market interfaces.Market) int {
	return matcherPriceShift + market.PricePrecision - market.AmountPrecision
}

// FetchTicker implements interfaces.Exchange.
func (c *Connector) FetchTicker(ctx context.Context, symbol string) (*interfaces.Ticker, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}
	amountAsset, priceAsset := splitPair(market)

	var result struct {
		Data map[string]any `json:"data"`
	}
	endpoint := c.endpoints.API + "/pairs/" + url.PathEscape(amountAsset) + "/" + url.PathEscape(priceAsset)
	if err := c.call(ctx, http.MethodGet, endpoint, nil, nil, &result); err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrExchange, "",
			"empty pair data for "+market.ID, "")
	}

	return &interfaces.Ticker{
		Symbol:      market.Symbol,
		Timestamp:   time.Now().UnixMilli(),
		Bid:         numeric.SafeFloat(result.Data, "bestBid"),
		Ask:         numeric.SafeFloat(result.Data, "bestAsk"),
		Last:        numeric.SafeFloat(result.Data, "lastPrice"),
		High:        numeric.SafeFloat(result.Data, "high"),
		Low:         numeric.SafeFloat(result.Data, "low"),
		Open:        numeric.SafeFloat(result.Data, "firstPrice"),
		BaseVolume:  numeric.SafeFloat(result.Data, "volume"),
		QuoteVolume: numeric.SafeFloat(result.Data, "quoteVolume"),
	}, nil
}

// FetchOrderBook implements interfaces.Exchange. Matcher depth levels
// arrive as chain integers and are rescaled to human units.
func (c *Connector) FetchOrderBook(ctx context.Context, symbol string, limit int) (*interfaces.OrderBook, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}
	amountAsset, priceAsset := splitPair(market)

	query := url.Values{}
	if limit > 0 {
		query.Set("depth", strconv.Itoa(limit))
	}
	endpoint := c.endpoints.Matcher + "/matcher/orderbook/" +
		url.PathEscape(amountAsset) + "/" + url.PathEscape(priceAsset)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var result struct {
		Timestamp int64 `json:"timestamp"`
		Bids      []struct {
			Amount int64 `json:"amount"`
			Price  int64 `json:"price"`
		} `json:"bids"`
		Asks []struct {
			Amount int64 `json:"amount"`
			Price  int64 `json:"price"`
		} `json:"asks"`
	}
	if err := c.call(ctx, http.MethodGet, endpoint, nil, nil, &result); err != nil {
		return nil, err
	}

	priceDec := priceDecimals(market)
	book := &interfaces.OrderBook{
		Symbol:    market.Symbol,
		Timestamp: numeric.NormalizeTimestamp(result.Timestamp),
	}
	for _, level := range result.Bids {
		book.Bids = append(book.Bids, interfaces.BookLevel{
			Price:  numeric.ToFloat(numeric.FromScaledInt64(level.Price, priceDec)),
			Amount: numeric.ToFloat(numeric.FromScaledInt64(level.Amount, market.AmountPrecision)),
		})
	}
	for _, level := range result.Asks {
		book.Asks = append(book.Asks, interfaces.BookLevel{
			Price:  numeric.ToFloat(numeric.FromScaledInt64(level.Price, priceDec)),
			Amount: numeric.ToFloat(numeric.FromScaledInt64(level.Amount, market.AmountPrecision)),
		})
	}
	return book, nil
}

// FetchTrades implements interfaces.Exchange using the exchange
// transaction stream of the data API.
func (c *Connector) FetchTrades(ctx context.Context, symbol string, limit int) ([]interfaces.Trade, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}
	amountAsset, priceAsset := splitPair(market)

	query := url.Values{}
	query.Set("amountAsset", amountAsset)
	query.Set("priceAsset", priceAsset)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var result struct {
		Data []struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	endpoint := c.endpoints.API + "/transactions/exchange?" + query.Encode()
	if err := c.call(ctx, http.MethodGet, endpoint, nil, nil, &result); err != nil {
		return nil, err
	}

	trades := make([]interfaces.Trade, 0, len(result.Data))
	for _, row := range result.Data {
		tx := row.Data
		if tx == nil {
			continue
		}
		price := numeric.SafeString(tx, "price")
		amount := numeric.SafeString(tx, "amount")
		side := interfaces.SideBuy
		if numeric.SafeString(tx, "orderType") == "sell" {
			side = interfaces.SideSell
		}
		trades = append(trades, interfaces.Trade{
			ID:        numeric.SafeString(tx, "id"),
			Symbol:    market.Symbol,
			Timestamp: parseRFC3339(numeric.SafeString(tx, "timestamp")),
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
	interval, ok := intervals[timeframe]
	if !ok {
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrNotSupported, "",
			"unsupported timeframe "+timeframe, "")
	}
	amountAsset, priceAsset := splitPair(market)

	query := url.Values{}
	query.Set("interval", interval)
	if since > 0 {
		query.Set("timeStart", strconv.FormatInt(since, 10))
	}

	var result struct {
		Data []struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	endpoint := c.endpoints.API + "/candles/" + url.PathEscape(amountAsset) + "/" +
		url.PathEscape(priceAsset) + "?" + query.Encode()
	if err := c.call(ctx, http.MethodGet, endpoint, nil, nil, &result); err != nil {
		return nil, err
	}

	candles := make([]interfaces.OHLCV, 0, len(result.Data))
	for _, row := range result.Data {
		bar := row.Data
		if bar == nil {
			continue
		}
		if limit > 0 && len(candles) >= limit {
			break
		}
		candles = append(candles, interfaces.OHLCV{
			Timestamp: parseRFC3339(numeric.SafeString(bar, "time")),
			Open:      numeric.SafeFloat(bar, "open"),
			High:      numeric.SafeFloat(bar, "high"),
			Low:       numeric.SafeFloat(bar, "low"),
			Close:     numeric.SafeFloat(bar, "close"),
			Volume:    numeric.SafeFloat(bar, "volume"),
		})
	}
	return candles, nil
}

// FetchBalance implements interfaces.Exchange via the bearer-token
// balances endpoint.
func (c *Connector) FetchBalance(ctx context.Context) (interfaces.Balances, error) {
	req := auth.NewRequest(http.MethodGet, c.endpoints.API+"/balances", "/balances", "")
	if err := c.bearer.SignContext(ctx, req); err != nil {
		return nil, err
	}

	var result struct {
		Balances []map[string]any `json:"balances"`
	}
	if err := c.call(ctx, http.MethodGet, c.endpoints.API+"/balances", req.Header, nil, &result); err != nil {
		return nil, err
	}

	balances := make(interfaces.Balances, len(result.Balances))
	for _, row := range result.Balances {
		currency := strings.ToUpper(numeric.SafeString(row, "asset_name"))
		if currency == "" {
			currency = numeric.SafeString(row, "asset_id")
		}
		if currency == "" {
			continue
		}
		free := numeric.SafeString(row, "available")
		used := numeric.SafeString(row, "reserved")
		balances[currency] = interfaces.Balance{
			Currency: currency,
			Free:     free,
			Used:     used,
			Total:    numeric.Add(free, used),
		}
	}
	return balances, nil
}

// bodyAssetID maps the native asset to JSON null per the venue's
// convention; issued assets pass through as base58 ids.
func bodyAssetID(id string) any {
	if id == "" || id == nativeAssetID {
		return nil
	}
	return id
}

// binaryAssetID maps the native asset to the empty string the binary
// layout expects.
func binaryAssetID(id string) string {
	if id == nativeAssetID {
		return ""
	}
	return id
}

// CreateOrder implements interfaces.Exchange. The order body carries
// chain-integer price and amount plus an Ed25519 signature over the
// binary form of the same fields.
func (c *Connector) CreateOrder(ctx context.Context, req interfaces.OrderRequest) (*interfaces.Order, error) {
	if req.Type != interfaces.OrderTypeLimit {
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrNotSupported, "",
			"matcher accepts limit orders only", "")
	}
	if req.Price == "" {
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrInvalidOrder, "",
			"limit order requires a price", "")
	}

	market, err := c.markets.Resolve(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	matcherKey, err := c.matcherPublicKey(ctx)
	if err != nil {
		return nil, err
	}
	senderKey, err := c.signer.PublicKey()
	if err != nil {
		return nil, err
	}

	amountAsset, priceAsset := splitPair(market)
	now := time.Now()
	side := auth.OrderSideBuy
	if req.Side == interfaces.SideSell {
		side = auth.OrderSideSell
	}

	payload := &auth.OrderPayload{
		SenderPublicKey:  senderKey,
		MatcherPublicKey: matcherKey,
		AmountAsset:      binaryAssetID(amountAsset),
		PriceAsset:       binaryAssetID(priceAsset),
		Side:             side,
		Price:            numeric.ToScaledInt64(req.Price, priceDecimals(market)),
		Amount:           numeric.ToScaledInt64(req.Amount, market.AmountPrecision),
		Timestamp:        now.UnixMilli(),
		Expiration:       now.Add(orderLifetime).UnixMilli(),
		MatcherFee:       defaultMatcherFee,
	}

	signReq := auth.NewRequest(http.MethodPost, c.endpoints.Matcher+"/matcher/orderbook", "/matcher/orderbook", "")
	signReq.Binary = payload
	if err := c.signer.Sign(signReq, 0); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"senderPublicKey":  payload.SenderPublicKey,
		"matcherPublicKey": payload.MatcherPublicKey,
		"assetPair": map[string]any{
			"amountAsset": bodyAssetID(amountAsset),
			"priceAsset":  bodyAssetID(priceAsset),
		},
		"orderType":  string(req.Side),
		"price":      payload.Price,
		"amount":     payload.Amount,
		"timestamp":  payload.Timestamp,
		"expiration": payload.Expiration,
		"matcherFee": payload.MatcherFee,
		"signature":  signReq.Params["signature"],
	})
	if err != nil {
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrBadRequest, "", err.Error(), "")
	}

	var result struct {
		Status  string         `json:"status"`
		Message map[string]any `json:"message"`
	}
	header := http.Header{"Content-Type": []string{"application/json"}}
	if err := c.call(ctx, http.MethodPost, c.endpoints.Matcher+"/matcher/orderbook", header, body, &result); err != nil {
		return nil, err
	}
	if result.Status != "" && result.Status != "OrderAccepted" {
		return nil, c.classifier.Classify("", result.Status, nil)
	}

	order := c.parseOrder(result.Message, market)
	if order.Status == "" {
		order.Status = interfaces.OrderStatusOpen
	}
	return &order, nil
}

// cancelPayload is the signed binary form of an order cancellation:
// sender public key followed by the order id bytes.
type cancelPayload struct {
	SenderPublicKey string
	OrderID         string
}

func (p *cancelPayload) Bytes() ([]byte, error) {
	key, err := base58.Decode(p.SenderPublicKey)
	if err != nil {
		return nil, err
	}
	id, err := base58.Decode(p.OrderID)
	if err != nil {
		return nil, err
	}
	return append(key, id...), nil
}

// CancelOrder implements interfaces.Exchange.
func (c *Connector) CancelOrder(ctx context.Context, id, symbol string) (*interfaces.Order, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}
	senderKey, err := c.signer.PublicKey()
	if err != nil {
		return nil, err
	}
	amountAsset, priceAsset := splitPair(market)

	payload := &cancelPayload{SenderPublicKey: senderKey, OrderID: id}
	blob, err := payload.Bytes()
	if err != nil {
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrBadRequest, "", err.Error(), "")
	}
	signature, err := c.signer.SignBytes(blob)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"sender":    senderKey,
		"orderId":   id,
		"signature": signature,
	})
	if err != nil {
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrBadRequest, "", err.Error(), "")
	}

	endpoint := c.endpoints.Matcher + "/matcher/orderbook/" +
		url.PathEscape(amountAsset) + "/" + url.PathEscape(priceAsset) + "/cancel"
	header := http.Header{"Content-Type": []string{"application/json"}}
	if err := c.call(ctx, http.MethodPost, endpoint, header, body, nil); err != nil {
		return nil, err
	}
	return &interfaces.Order{
		ID:     id,
		Symbol: market.Symbol,
		Status: interfaces.OrderStatusCanceled,
	}, nil
}

// signedReadHeaders builds the Timestamp/Signature header pair the
// matcher requires on order reads: the signature covers the public key
// bytes followed by the big-endian timestamp.
func (c *Connector) signedReadHeaders(senderKey string, ts int64) (http.Header, error) {
	raw, err := base58.Decode(senderKey)
	if err != nil {
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrAuthentication, "", err.Error(), "")
	}
	blob := make([]byte, 0, len(raw)+8)
	blob = append(blob, raw...)
	blob = append(blob,
		byte(ts>>56), byte(ts>>48), byte(ts>>40), byte(ts>>32),
		byte(ts>>24), byte(ts>>16), byte(ts>>8), byte(ts))
	signature, err := c.signer.SignBytes(blob)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Timestamp", strconv.FormatInt(ts, 10))
	header.Set("Signature", signature)
	return header, nil
}

// fetchOrders lists the account's orders from the matcher.
func (c *Connector) fetchOrders(ctx context.Context, activeOnly bool) ([]map[string]any, error) {
	senderKey, err := c.signer.PublicKey()
	if err != nil {
		return nil, err
	}
	header, err := c.signedReadHeaders(senderKey, time.Now().UnixMilli())
	if err != nil {
		return nil, err
	}

	endpoint := c.endpoints.Matcher + "/matcher/orderbook/" + url.PathEscape(senderKey) +
		"?activeOnly=" + strconv.FormatBool(activeOnly)
	var rows []map[string]any
	if err := c.call(ctx, http.MethodGet, endpoint, header, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// FetchOrder implements interfaces.Exchange by scanning the account
// order list, closed orders included.
func (c *Connector) FetchOrder(ctx context.Context, id, symbol string) (*interfaces.Order, error) {
	market, err := c.markets.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}
	rows, err := c.fetchOrders(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if numeric.SafeString(row, "id") == id {
			order := c.parseOrder(row, market)
			return &order, nil
		}
	}
	return nil, interfaces.NewVenueError(venueID, interfaces.ErrOrderNotFound, "",
		"order "+id+" not found for account", "")
}

// FetchOpenOrders implements interfaces.Exchange.
func (c *Connector) FetchOpenOrders(ctx context.Context, symbol string) ([]interfaces.Order, error) {
	var filter string
	if symbol != "" {
		market, err := c.markets.Resolve(ctx, symbol)
		if err != nil {
			return nil, err
		}
		filter = market.ID
	}

	rows, err := c.fetchOrders(ctx, true)
	if err != nil {
		return nil, err
	}

	orders := make([]interfaces.Order, 0, len(rows))
	for _, row := range rows {
		pair := numeric.SafeValue(row, "assetPair")
		id := numeric.SafeString(pair, "amountAsset") + "/" + numeric.SafeString(pair, "priceAsset")
		if filter != "" && id != filter {
			continue
		}
		rowMarket, err := c.markets.ResolveID(ctx, id)
		if err != nil {
			continue
		}
		orders = append(orders, c.parseOrder(row, rowMarket))
	}
	return orders, nil
}

// Withdraw signs a type-4 transfer and broadcasts it through the chain
// node. Amount is a human-unit decimal string; currency resolves to an
// asset through the market cache.
func (c *Connector) Withdraw(ctx context.Context, currency, amount, address string) (*interfaces.Transaction, error) {
	assetID, decimals, err := c.resolveAsset(ctx, currency)
	if err != nil {
		return nil, err
	}
	senderKey, err := c.signer.PublicKey()
	if err != nil {
		return nil, err
	}

	payload := &auth.TransferPayload{
		SenderPublicKey: senderKey,
		AssetID:         binaryAssetID(assetID),
		FeeAssetID:      "",
		Timestamp:       time.Now().UnixMilli(),
		Amount:          numeric.ToScaledInt64(amount, decimals),
		Fee:             defaultTransferFee,
		Recipient:       address,
	}
	blob, err := payload.Bytes()
	if err != nil {
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrInvalidAddress, "", err.Error(), "")
	}
	signature, err := c.signer.SignBytes(blob)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"type":            transferBroadcastType,
		"senderPublicKey": payload.SenderPublicKey,
		"assetId":         bodyAssetID(assetID),
		"feeAssetId":      nil,
		"timestamp":       payload.Timestamp,
		"amount":          payload.Amount,
		"fee":             payload.Fee,
		"recipient":       address,
		"attachment":      "",
		"signature":       signature,
	})
	if err != nil {
		return nil, interfaces.NewVenueError(venueID, interfaces.ErrBadRequest, "", err.Error(), "")
	}

	var result map[string]any
	header := http.Header{"Content-Type": []string{"application/json"}}
	if err := c.call(ctx, http.MethodPost, c.endpoints.Node+"/transactions/broadcast", header, body, &result); err != nil {
		return nil, err
	}

	return &interfaces.Transaction{
		ID:        numeric.SafeString(result, "id"),
		TxID:      numeric.SafeString(result, "id"),
		Type:      interfaces.TransactionWithdrawal,
		Currency:  strings.ToUpper(currency),
		Amount:    amount,
		Address:   address,
		Status:    "broadcast",
		Timestamp: payload.Timestamp,
		FeeCost:   numeric.FromScaledInt64(payload.Fee, 8),
	}, nil
}

// resolveAsset maps a currency code to its asset id and decimals using
// the market list.
func (c *Connector) resolveAsset(ctx context.Context, currency string) (string, int, error) {
	code := strings.ToUpper(currency)
	if code == nativeAssetID {
		return nativeAssetID, 8, nil
	}
	markets, err := c.markets.All(ctx)
	if err != nil {
		return "", 0, err
	}
	for _, market := range markets {
		amountAsset, priceAsset := splitPair(market)
		if market.Base == code {
			return amountAsset, market.AmountPrecision, nil
		}
		if market.Quote == code {
			return priceAsset, market.PricePrecision, nil
		}
	}
	return "", 0, interfaces.NewVenueError(venueID, interfaces.ErrBadRequest, "",
		"unknown currency "+currency, "")
}

func (c *Connector) parseOrder(row map[string]any, market interfaces.Market) interfaces.Order {
	if row == nil {
		return interfaces.Order{Symbol: market.Symbol}
	}

	priceDec := priceDecimals(market)
	price := numeric.FromScaledInt64(numeric.SafeInt64(row, "price"), priceDec)
	amount := numeric.FromScaledInt64(numeric.SafeInt64(row, "amount"), market.AmountPrecision)
	filled := numeric.FromScaledInt64(numeric.SafeInt64(row, "filled"), market.AmountPrecision)
	remaining := numeric.Sub(amount, filled)

	side := interfaces.SideBuy
	if numeric.SafeString(row, "type") == "sell" || numeric.SafeString(row, "orderType") == "sell" {
		side = interfaces.SideSell
	}

	return interfaces.Order{
		ID:           numeric.SafeString(row, "id"),
		Symbol:       market.Symbol,
		Type:         interfaces.OrderTypeLimit,
		Side:         side,
		Status:       parseOrderStatus(numeric.SafeString(row, "status")),
		Timestamp:    numeric.SafeTimestamp(row, "timestamp"),
		Price:        price,
		Amount:       amount,
		Filled:       filled,
		Remaining:    remaining,
		Cost:         numeric.Mul(filled, price),
		AveragePrice: price,
	}
}

func parseOrderStatus(s string) interfaces.OrderStatus {
	switch s {
	case "Accepted", "PartiallyFilled":
		return interfaces.OrderStatusOpen
	case "Filled":
		return interfaces.OrderStatusClosed
	case "Cancelled":
		return interfaces.OrderStatusCanceled
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

// EnsureSignedIn eagerly performs the oauth2 exchange used by balance
// reads.
func (c *Connector) EnsureSignedIn(ctx context.Context) error {
	return c.session.EnsureSignedIn(ctx)
}

var _ interfaces.Exchange = (*Connector)(nil)
