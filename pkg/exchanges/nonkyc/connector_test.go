package nonkyc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veiloq/venue-adapters/pkg/exchanges/interfaces"
)

const marketListResponse = `[
	{"symbol":"BTC_USDT","primaryTicker":"BTC","secondaryTicker":"USDT",
	 "priceDecimals":2,"quantityDecimals":6,"minimumQuantity":"0.0001","isActive":true}
]`

func newTestConnector(t *testing.T, handler http.Handler) *Connector {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	options := interfaces.NewOptions().WithCredentials("api-key", "api-secret")
	options.BaseURL = server.URL
	options.MaxRequestsPerSecond = 1000
	return NewConnector(options)
}

func TestPrivateRequestSplitHeaders(t *testing.T) {
	var lastNonce int64
	connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/balances", r.URL.Path)
		assert.Equal(t, "api-key", r.Header.Get("X-API-KEY"))
		assert.NotEmpty(t, r.Header.Get("X-API-SIGN"))
		assert.Len(t, r.Header.Get("X-API-SIGN"), 64) // hex sha256

		nonce, err := strconv.ParseInt(r.Header.Get("X-API-NONCE"), 10, 64)
		require.NoError(t, err)
		assert.Greater(t, nonce, lastNonce)
		lastNonce = nonce

		fmt.Fprint(w, `[{"asset":"btc","available":"0.5","held":"0.25"}]`)
	}))

	ctx := context.Background()
	balances, err := connector.FetchBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.75", balances["BTC"].Total)

	// Second call carries a strictly larger nonce.
	_, err = connector.FetchBalance(ctx)
	require.NoError(t, err)
}

func TestFetchTickerShapeDispatch(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantLast float64
		wantBid  float64
		wantTS   int64
	}{
		{
			name: "compact shape",
			response: `{"symbol":"BTC_USDT","lastPrice":"40493","bestBid":"40491.6",
				"bestAsk":"40491.7","highPrice":"41468.8","lowPrice":"40254.9",
				"volume":"1998.51","updatedAt":1647569486224}`,
			wantLast: 40493,
			wantBid:  40491.6,
			wantTS:   1647569486224,
		},
		{
			name: "verbose shape",
			response: `{"symbol":"BTC_USDT","last_price":"40493","bid":"40491.6",
				"ask":"40491.7","high":"41468.8","low":"40254.9",
				"base_volume":"1998.51","timestamp":1647569486}`,
			wantLast: 40493,
			wantBid:  40491.6,
			// Second-resolution timestamps normalize to milliseconds.
			wantTS: 1647569486000,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/market/getlist":
					fmt.Fprint(w, marketListResponse)
				case "/market/getbysymbol/BTC_USDT":
					fmt.Fprint(w, tt.response)
				default:
					t.Errorf("unexpected path %s", r.URL.Path)
				}
			}))

			ticker, err := connector.FetchTicker(context.Background(), "BTC/USDT")
			require.NoError(t, err)
			assert.Equal(t, tt.wantLast, ticker.Last)
			assert.Equal(t, tt.wantBid, ticker.Bid)
			assert.Equal(t, 41468.8, ticker.High)
			assert.Equal(t, tt.wantTS, ticker.Timestamp)
		})
	}
}

func TestFetchTickerUnknownShape(t *testing.T) {
	connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/market/getlist":
			fmt.Fprint(w, marketListResponse)
		case "/market/getbysymbol/BTC_USDT":
			fmt.Fprint(w, `{"symbol":"BTC_USDT","px":"40493"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	_, err := connector.FetchTicker(context.Background(), "BTC/USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrExchange)
	assert.Contains(t, err.Error(), "unrecognized ticker shape")
}

func TestFaultWithOKStatusClassified(t *testing.T) {
	connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Vendor fault delivered with a 200.
		fmt.Fprint(w, `{"error":{"code":20010,"message":"Insufficient balance for order"}}`)
	}))

	_, err := connector.FetchBalance(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrInsufficientFunds)

	var verr *interfaces.VenueError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "20010", verr.Code)
}

func TestCreateOrderQuantizesPrice(t *testing.T) {
	connector := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/market/getlist":
			fmt.Fprint(w, marketListResponse)
		case "/createorder":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "40491.65", body["price"])
			assert.Equal(t, "limit", body["type"])
			fmt.Fprint(w, `{"id":"ord-1","symbol":"BTC_USDT","side":"buy","type":"limit",
				"status":"active","price":"40491.65","quantity":"0.25",
				"executedQuantity":"0","createdAt":1647569486224}`)
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
	assert.Equal(t, "ord-1", order.ID)
	assert.Equal(t, interfaces.OrderStatusOpen, order.Status)
	assert.Equal(t, "0.25", order.Remaining)
	assert.Equal(t, "BTC/USDT", order.Symbol)
}

func TestMissingCredentialsFailFast(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	t.Cleanup(server.Close)

	options := interfaces.NewOptions()
	options.BaseURL = server.URL
	options.MaxRequestsPerSecond = 1000
	connector := NewConnector(options)

	_, err := connector.FetchBalance(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrAuthentication)
	assert.Zero(t, hits)
}
