package fxopen

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veiloq/venue-adapters/pkg/exchanges/interfaces"
)

const symbolsResponse = `[
	{"Symbol":"BTCUSD","MarginCurrency":"BTC","ProfitCurrency":"USD",
	 "Precision":2,"TradeAmountStep":"0.0001","MinTradeAmount":"0.001","IsTradeAllowed":true}
]`

func newTestConnector(t *testing.T, handler http.Handler) *Connector {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	options := interfaces.NewOptions().
		WithCredentials("api-key", "api-secret").
		WithUID("web-id")
	options.BaseURL = server.URL
	options.MaxRequestsPerSecond = 1000
	return NewConnector(options)
}

var authHeaderPattern = regexp.MustCompile(`^HMAC web-id:api-key:\d+:[A-Za-z0-9+/]+=*$`)

func TestPrivateRequestAuthorizationHeader(t *testing.T) {
	var nonces []string
	connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/account", r.URL.Path)
		header := r.Header.Get("Authorization")
		assert.Regexp(t, authHeaderPattern, header)
		nonces = append(nonces, header)
		fmt.Fprint(w, `{"Id":7,"AccountingType":"Gross","Leverage":100,
			"Balance":"10000.5","BalanceCurrency":"USD"}`)
	}))

	ctx := context.Background()
	info, err := connector.AccountInfo(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.ID)
	assert.Equal(t, "Gross", info.AccountingType)
	assert.False(t, info.IsCash())

	// Forced reload issues a second signed request with a fresh nonce.
	_, err = connector.AccountInfo(ctx, true)
	require.NoError(t, err)
	require.Len(t, nonces, 2)
	assert.NotEqual(t, nonces[0], nonces[1])
}

func TestAccountContextCached(t *testing.T) {
	var calls int32
	connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"Id":7,"AccountingType":"Net","Balance":"1","BalanceCurrency":"USD"}`)
	}))

	ctx := context.Background()
	_, err := connector.AccountInfo(ctx, false)
	require.NoError(t, err)
	_, err = connector.AccountInfo(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchBalanceByAccountingMode(t *testing.T) {
	t.Run("gross account uses the single margin balance", func(t *testing.T) {
		connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/account", r.URL.Path)
			fmt.Fprint(w, `{"Id":7,"AccountingType":"Gross","Balance":"10000.5","BalanceCurrency":"usd"}`)
		}))

		balances, err := connector.FetchBalance(context.Background())
		require.NoError(t, err)
		require.Len(t, balances, 1)
		assert.Equal(t, "10000.5", balances["USD"].Total)
	})

	t.Run("cash account lists per-asset balances", func(t *testing.T) {
		connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/account":
				fmt.Fprint(w, `{"Id":7,"AccountingType":"Cash"}`)
			case "/asset":
				fmt.Fprint(w, `[
					{"Currency":"BTC","FreeAmount":"0.5","LockedAmount":"0.1"},
					{"Currency":"USD","FreeAmount":"900","LockedAmount":"100","Amount":"1000"}
				]`)
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		}))

		balances, err := connector.FetchBalance(context.Background())
		require.NoError(t, err)
		require.Len(t, balances, 2)
		// Total derived as free+locked when absent.
		assert.Equal(t, "0.6", balances["BTC"].Total)
		assert.Equal(t, "1000", balances["USD"].Total)
	})
}

func TestFetchTickerSideInference(t *testing.T) {
	tick := `[{"Symbol":"BTCUSD","Timestamp":1647569486224,
		"BestBid":{"Price":40491.6,"Volume":1.5,"Timestamp":1647569486000},
		"BestAsk":{"Price":40491.7,"Volume":2.0,"Timestamp":1647569486200}}]`

	connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/symbol":
			fmt.Fprint(w, symbolsResponse)
		case "/tick/BTCUSD":
			fmt.Fprint(w, tick)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	ticker, err := connector.FetchTicker(context.Background(), "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, 40491.6, ticker.Bid)
	assert.Equal(t, 40491.7, ticker.Ask)
	// The ask side updated last, so it is taken as the last activity.
	assert.Equal(t, 40491.7, ticker.Last)
}

func TestFetchOrderFallsBackToTradeHistory(t *testing.T) {
	var historyCalls int32
	connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trade/42":
			// No longer among open orders.
			w.WriteHeader(http.StatusNotFound)
		case "/tradehistory":
			atomic.AddInt32(&historyCalls, 1)
			fmt.Fprint(w, `{"Records":[
				{"OrderId":"42","TradeAmount":"0.4","TradePrice":"40000","TradeSide":"Buy","TransactionTimestamp":1647569486000},
				{"OrderId":"42","TradeAmount":"0.6","TradePrice":"40100","TradeSide":"Buy","TransactionTimestamp":1647569487000},
				{"OrderId":"99","TradeAmount":"5","TradePrice":"1","TradeSide":"Sell","TransactionTimestamp":1647569488000}
			]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	order, err := connector.FetchOrder(context.Background(), "42", "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&historyCalls))

	assert.Equal(t, "42", order.ID)
	assert.Equal(t, interfaces.OrderStatusClosed, order.Status)
	assert.Equal(t, interfaces.SideBuy, order.Side)
	assert.Equal(t, "1", order.Filled)
	// cost = 0.4*40000 + 0.6*40100 = 40060, avg = cost/filled.
	assert.Equal(t, "40060", order.Cost)
	assert.Equal(t, "40060", order.AveragePrice)
}

func TestFetchOrderNotFoundAnywhere(t *testing.T) {
	connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trade/42":
			w.WriteHeader(http.StatusNotFound)
		case "/tradehistory":
			fmt.Fprint(w, `{"Records":[]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	_, err := connector.FetchOrder(context.Background(), "42", "BTC/USD")
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrOrderNotFound)
}

func TestFetchOrderStillOpen(t *testing.T) {
	connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/trade/42", r.URL.Path)
		fmt.Fprint(w, `{"Id":42,"Symbol":"BTCUSD","Type":"Limit","Side":"Buy","Status":"New",
			"Price":"40000","InitialAmount":"1","RemainingAmount":"1","Created":1647569486224}`)
	}))

	order, err := connector.FetchOrder(context.Background(), "42", "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, interfaces.OrderStatusOpen, order.Status)
	assert.Equal(t, "1", order.Remaining)
}

func TestSigningWithoutUIDFailsFast(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	t.Cleanup(server.Close)

	options := interfaces.NewOptions().WithCredentials("k", "s") // no uid
	options.BaseURL = server.URL
	options.MaxRequestsPerSecond = 1000
	connector := NewConnector(options)

	_, err := connector.AccountInfo(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrAuthentication)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}
