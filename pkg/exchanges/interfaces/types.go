package interfaces

import "time"

// Credentials holds the API credentials supplied once at adapter
// construction. UID is only required by venues that include an
// account/web-api id in the signed payload (FXOpen).
type Credentials struct {
	APIKey string
	Secret string
	UID    string
}

// Configured reports whether the key/secret pair is present. Venues
// with extra requirements (UID, wallet seed) perform their own checks
// on top of this.
func (c Credentials) Configured() bool {
	return c.APIKey != "" && c.Secret != ""
}

// Market describes one tradable instrument in venue-agnostic form.
// Precision values are decimal places; limits are carried as decimal
// strings because they feed decimal-string arithmetic downstream.
type Market struct {
	// ID is the venue's native instrument identifier (e.g. "BTC-USDT").
	ID string

	// Symbol is the unified "BASE/QUOTE" form (e.g. "BTC/USDT").
	Symbol string

	Base  string
	Quote string

	// Active reports whether the venue currently allows trading.
	Active bool

	// AmountPrecision and PricePrecision are decimal places accepted by
	// the venue for order amount and price respectively.
	AmountPrecision int
	PricePrecision  int

	// MinAmount and MinCost are venue minimums as decimal strings;
	// empty when the venue does not publish them.
	MinAmount string
	MinCost   string

	// Margin reports whether the instrument supports margin trading.
	Margin bool
}

// Ticker is a point-in-time market snapshot. String fields mirror the
// venue's exact decimal representation; the float convenience fields
// are derived last, after any decimal-string arithmetic.
type Ticker struct {
	Symbol    string
	Timestamp int64 // milliseconds

	Bid  float64
	Ask  float64
	Last float64
	High float64
	Low  float64

	BaseVolume  float64
	QuoteVolume float64

	// Open/Close/Change are optional; zero when the venue omits them.
	Open          float64
	PercentChange float64
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price  float64
	Amount float64
}

// OrderBook is a depth snapshot. Bids descend by price, asks ascend.
type OrderBook struct {
	Symbol    string
	Timestamp int64
	Bids      []BookLevel
	Asks      []BookLevel
}

// OHLCV is one candle: open time in milliseconds plus the usual five
// values.
type OHLCV struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// TradeSide distinguishes taker direction.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Trade is a single public or private execution.
type Trade struct {
	ID        string
	OrderID   string
	Symbol    string
	Timestamp int64
	Side      TradeSide

	// Price, Amount and Cost are decimal strings; Cost is derived as
	// Price*Amount via exact decimal arithmetic when the venue does not
	// supply it.
	Price  string
	Amount string
	Cost   string

	FeeCost     string
	FeeCurrency string
}

// OrderType is the unified order type vocabulary.
type OrderType string

const (
	OrderTypeLimit     OrderType = "limit"
	OrderTypeMarket    OrderType = "market"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stopLimit"
)

// OrderStatus is the unified order lifecycle vocabulary.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusClosed   OrderStatus = "closed"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRejected OrderStatus = "rejected"
)

// OrderRequest carries the parameters of a new order in unified form.
// Price is ignored for market orders; StopPrice is required by stop
// variants.
type OrderRequest struct {
	Symbol    string
	Type      OrderType
	Side      TradeSide
	Amount    string
	Price     string
	StopPrice string

	// ClientID is an optional caller-chosen id echoed back by venues
	// that support it.
	ClientID string
}

// Order is the unified view of an order's current state.
type Order struct {
	ID        string
	ClientID  string
	Symbol    string
	Type      OrderType
	Side      TradeSide
	Status    OrderStatus
	Timestamp int64

	Price     string
	StopPrice string
	Amount    string
	Filled    string
	Remaining string

	// Cost is filled*averagePrice, derived via decimal strings when the
	// venue does not report it.
	Cost         string
	AveragePrice string

	FeeCost     string
	FeeCurrency string
}

// Balance is the funds of one currency.
type Balance struct {
	Currency string
	Free     string
	Used     string
	Total    string
}

// Balances maps unified currency code to balance.
type Balances map[string]Balance

// Position is an open margin position (BTCEX, FXOpen).
type Position struct {
	ID        string
	Symbol    string
	Side      TradeSide
	Timestamp int64

	Amount     string
	EntryPrice string
	MarkPrice  string

	// UnrealizedPnL and Margin are decimal strings; ratio derivations
	// happen through pkg/numeric, never through float64.
	UnrealizedPnL string
	Margin        string
	Leverage      string
	MarginRatio   string
}

// TransactionType distinguishes transfer directions.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
)

// Transaction is a deposit or withdrawal record.
type Transaction struct {
	ID        string
	TxID      string
	Type      TransactionType
	Currency  string
	Amount    string
	Address   string
	Status    string
	Timestamp int64
	FeeCost   string
}

// SessionToken is a bearer credential obtained through a venue's
// sign-in exchange. ExpiresAt is zero when the venue does not publish
// expiry metadata; such tokens are treated as valid until a request
// fails with an authentication error.
type SessionToken struct {
	Value      string
	ObtainedAt time.Time
	ExpiresAt  time.Time
}

// Valid reports whether the token can still be attached to requests.
func (t SessionToken) Valid(now time.Time) bool {
	if t.Value == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(t.ExpiresAt)
}
