package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veiloq/venue-adapters/pkg/exchanges/interfaces"
)

var testCreds = interfaces.Credentials{
	APIKey: "key123",
	Secret: "secret456",
	UID:    "web7",
}

func fxopenStyleSigner(creds interfaces.Credentials) *HMACSigner {
	return NewHMACSigner(HMACConfig{
		Venue:       "fxopen",
		Credentials: creds,
		Fields: []PayloadField{
			FieldNonce, FieldUID, FieldAPIKey, FieldMethod, FieldURL, FieldBody,
		},
		Encoding:   EncodingBase64,
		Inject:     AuthorizationHMACHeader,
		RequireUID: true,
	})
}

func nonkycStyleSigner(creds interfaces.Credentials) *HMACSigner {
	return NewHMACSigner(HMACConfig{
		Venue:       "nonkyc",
		Credentials: creds,
		Fields:      []PayloadField{FieldAPIKey, FieldURL, FieldNonce},
		Encoding:    EncodingHex,
		Inject:      SplitAPIHeaders,
	})
}

func TestHMACPayloadAssembly(t *testing.T) {
	req := NewRequest("POST", "https://example.com/api/v2/trade", "/trade", `{"Symbol":"BTCUSD"}`)
	payload := fxopenStyleSigner(testCreds).Payload(req, 1647569486000)
	assert.Equal(t,
		`1647569486000web7key123POSThttps://example.com/api/v2/trade{"Symbol":"BTCUSD"}`,
		payload)
}

func TestHMACSignatureVectors(t *testing.T) {
	t.Run("combined authorization header, base64", func(t *testing.T) {
		req := NewRequest("POST", "https://example.com/api/v2/trade", "/trade", `{"Symbol":"BTCUSD"}`)
		require.NoError(t, fxopenStyleSigner(testCreds).Sign(req, 1647569486000))
		assert.Equal(t,
			"HMAC web7:key123:1647569486000:1ZzyELhOjVGEiY6prgPFBBUUt6vmfFdlEWW+5MCyNvQ=",
			req.Header.Get("Authorization"))
	})

	t.Run("split headers, hex", func(t *testing.T) {
		req := NewRequest("GET", "https://example.com/api/v2/balances", "/balances", "")
		require.NoError(t, nonkycStyleSigner(testCreds).Sign(req, 1647569486001))
		assert.Equal(t, "key123", req.Header.Get("X-API-KEY"))
		assert.Equal(t, "1647569486001", req.Header.Get("X-API-NONCE"))
		assert.Equal(t,
			"045fc49f11c24317d2519dc7c7a940380fb13825f623c8b949767fa4492f6e76",
			req.Header.Get("X-API-SIGN"))
	})
}

func TestHMACDeterminism(t *testing.T) {
	signer := nonkycStyleSigner(testCreds)

	first := NewRequest("GET", "https://example.com/api/v2/balances", "/balances", "")
	second := NewRequest("GET", "https://example.com/api/v2/balances", "/balances", "")
	require.NoError(t, signer.Sign(first, 42))
	require.NoError(t, signer.Sign(second, 42))
	assert.Equal(t, first.Header.Get("X-API-SIGN"), second.Header.Get("X-API-SIGN"))

	// A different nonce must change the signature.
	third := NewRequest("GET", "https://example.com/api/v2/balances", "/balances", "")
	require.NoError(t, signer.Sign(third, 43))
	assert.NotEqual(t, first.Header.Get("X-API-SIGN"), third.Header.Get("X-API-SIGN"))
}

func TestHMACMissingCredentials(t *testing.T) {
	tests := []struct {
		name   string
		signer *HMACSigner
	}{
		{"no key or secret", fxopenStyleSigner(interfaces.Credentials{})},
		{"uid required but absent", fxopenStyleSigner(interfaces.Credentials{APIKey: "k", Secret: "s"})},
		{"split headers without secret", nonkycStyleSigner(interfaces.Credentials{APIKey: "k"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewRequest("GET", "https://example.com/x", "/x", "")
			err := tt.signer.Sign(req, 1)
			require.Error(t, err)
			assert.ErrorIs(t, err, interfaces.ErrAuthentication)
			// Nothing may be injected on failure.
			assert.Empty(t, req.Header.Get("Authorization"))
			assert.Empty(t, req.Header.Get("X-API-SIGN"))
		})
	}
}
