package btcex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veiloq/venue-adapters/pkg/exchanges/interfaces"
)

const instrumentsResult = `[
	{"instrument_name":"BTC-USDT","base_currency":"BTC","quote_currency":"USDT",
	 "min_qty":"0.001","tick_size":"0.1","min_notional":"5","is_active":"true"}
]`

const tickerResult = `[
	{"instrument_name":"BTC-USDT",
	 "best_bid_price":"40491.6","best_bid_amount":"0.15",
	 "best_ask_price":"40491.7","best_ask_amount":"0.23",
	 "last_price":"40493",
	 "stats":{"high":"41468.8","low":"40254.9","volume":"1998.51"},
	 "timestamp":"1647569486224"}
]`

func rpcResult(result string) string {
	return fmt.Sprintf(`{"id":1,"jsonrpc":"2.0","result":%s}`, result)
}

func rpcFault(code int64, message string) string {
	return fmt.Sprintf(`{"id":1,"jsonrpc":"2.0","error":{"code":%d,"message":%q}}`, code, message)
}

func newTestConnector(t *testing.T, handler http.Handler) *Connector {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	options := interfaces.NewOptions().
		WithCredentials("test-key", "test-secret")
	options.BaseURL = server.URL
	options.MaxRequestsPerSecond = 1000
	return NewConnector(options)
}

func TestFetchTickerNormalization(t *testing.T) {
	connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/public/get_instruments":
			fmt.Fprint(w, rpcResult(instrumentsResult))
		case "/public/ticker":
			assert.Equal(t, "BTC-USDT", r.URL.Query().Get("instrument_name"))
			fmt.Fprint(w, rpcResult(tickerResult))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	ticker, err := connector.FetchTicker(context.Background(), "BTC/USDT")
	require.NoError(t, err)

	assert.Equal(t, "BTC/USDT", ticker.Symbol)
	assert.Equal(t, 40491.6, ticker.Bid)
	assert.Equal(t, 40491.7, ticker.Ask)
	assert.Equal(t, float64(40493), ticker.Last)
	assert.Equal(t, 41468.8, ticker.High)
	assert.Equal(t, 40254.9, ticker.Low)
	assert.Equal(t, int64(1647569486224), ticker.Timestamp)
}

func TestVendorCodeClassification(t *testing.T) {
	tests := []struct {
		name    string
		code    int64
		message string
		want    error
	}{
		{"rate abuse exact code", 1005, "Operate too frequently", interfaces.ErrDDoSProtection},
		{"expired token", 2002, "token expired", interfaces.ErrAuthentication},
		{"insufficient funds", 3301, "insufficient balance", interfaces.ErrInsufficientFunds},
		{"unknown but fragment match", 7777, "please retry, system maintenance", interfaces.ErrExchangeNotAvailable},
		{"unknown entirely", 7778, "novel fault", interfaces.ErrExchange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, rpcFault(tt.code, tt.message))
			}))

			_, err := connector.FetchMarkets(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var verr *interfaces.VenueError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "btcex", verr.Venue)
			assert.Contains(t, verr.Error(), "btcex")
		})
	}
}

func TestPrivateCallSignsInOnceAndBearsToken(t *testing.T) {
	var authCalls int32
	connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/public/auth":
			atomic.AddInt32(&authCalls, 1)
			assert.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
			assert.Equal(t, "test-key", r.URL.Query().Get("client_id"))
			fmt.Fprint(w, rpcResult(`{"access_token":"tok-abc","token_type":"bearer","expires_in":604800}`))
		case "/private/get_assets_info":
			assert.Equal(t, "bearer tok-abc", r.Header.Get("Authorization"))
			fmt.Fprint(w, rpcResult(`[{"currency":"USDT","available":"100.5","freeze":"20.5"}]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	ctx := context.Background()
	balances, err := connector.FetchBalance(ctx)
	require.NoError(t, err)
	_, err = connector.FetchBalance(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&authCalls))
	usdt := balances["USDT"]
	assert.Equal(t, "100.5", usdt.Free)
	assert.Equal(t, "20.5", usdt.Used)
	assert.Equal(t, "121", usdt.Total)
}

func TestPrivateCallWithoutCredentials(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	t.Cleanup(server.Close)

	options := interfaces.NewOptions()
	options.BaseURL = server.URL
	options.MaxRequestsPerSecond = 1000
	connector := NewConnector(options)

	_, err := connector.FetchBalance(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrAuthentication)
	// The failure happens before anything leaves the adapter.
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestCreateOrderRoundsPriceToPrecision(t *testing.T) {
	connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/public/get_instruments":
			fmt.Fprint(w, rpcResult(instrumentsResult))
		case "/public/auth":
			fmt.Fprint(w, rpcResult(`{"access_token":"tok","expires_in":600}`))
		case "/private/buy":
			var params map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
			// tick_size 0.1 means one decimal place.
			assert.Equal(t, "40491.6", params["price"])
			assert.Equal(t, "0.25", params["amount"])
			fmt.Fprint(w, rpcResult(`{"order":{"order_id":"o-1","direction":"buy",
				"order_type":"limit","order_state":"open","price":"40491.6",
				"amount":"0.25","filled_amount":"0","creation_timestamp":1647569486224}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	order, err := connector.CreateOrder(context.Background(), interfaces.OrderRequest{
		Symbol: "BTC/USDT",
		Type:   interfaces.OrderTypeLimit,
		Side:   interfaces.SideBuy,
		Amount: "0.25",
		Price:  "40491.649",
	})
	require.NoError(t, err)
	assert.Equal(t, "o-1", order.ID)
	assert.Equal(t, interfaces.OrderStatusOpen, order.Status)
	assert.Equal(t, "0.25", order.Remaining)
}

func TestFetchPositionsDerivations(t *testing.T) {
	connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/public/auth":
			fmt.Fprint(w, rpcResult(`{"access_token":"tok","expires_in":600}`))
		case "/private/get_positions":
			fmt.Fprint(w, rpcResult(`[
				{"position_id":"p-1","instrument_name":"BTC-USDT-PERP","direction":"buy",
				 "size":"2","average_price":"40000","mark_price":"40500",
				 "initial_margin":"8100","leverage":"10"}
			]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	positions, err := connector.FetchPositions(context.Background(), "BTC")
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	// pnl = (mark-entry)*size and ratio = margin/(mark*size), both via
	// exact decimal arithmetic.
	assert.Equal(t, "1000", p.UnrealizedPnL)
	assert.Equal(t, "0.1", p.MarginRatio)
	assert.Equal(t, interfaces.SideBuy, p.Side)
}
