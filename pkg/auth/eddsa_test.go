package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veiloq/venue-adapters/pkg/exchanges/interfaces"
)

// Fixed 32-byte patterns in base58 form, so the golden bytes below are
// reproducible by hand.
const (
	testSenderKey   = "4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi"  // 32 x 0x01
	testMatcherKey  = "8qbHbw2BbbTHBW1sbeqakYXVKRQM8Ne7pLK7m6CVfeR"  // 32 x 0x02
	testAmountAsset = "CktRuQ2mttgRGkXJtyksdKHjUdc2C4TgDzyB98oEzy8"  // 32 x 0x03
	testSeed        = "4wBqpZM9xaSheZzJSMawUKKwhdpChKbZ5eu5ky4Vigw"  // bytes 0x01..0x20
)

func TestOrderPayloadGoldenBytes(t *testing.T) {
	payload := &OrderPayload{
		SenderPublicKey:  testSenderKey,
		MatcherPublicKey: testMatcherKey,
		AmountAsset:      testAmountAsset,
		PriceAsset:       "", // native asset: presence flag only
		Side:             OrderSideSell,
		Price:            123456789,
		Amount:           987654321,
		Timestamp:        1647569486224,
		Expiration:       1647569487224,
		MatcherFee:       300000,
	}

	blob, err := payload.Bytes()
	require.NoError(t, err)
	require.Len(t, blob, 139)

	want := "0101010101010101010101010101010101010101010101010101010101010101" +
		"0202020202020202020202020202020202020202020202020202020202020202" +
		"01" + "0303030303030303030303030303030303030303030303030303030303030303" +
		"00" + "01" +
		"00000000075bcd15" + // price
		"000000003ade68b1" + // amount
		"0000017f9acb4190" + // timestamp
		"0000017f9acb4578" + // expiration
		"00000000000493e0" // matcher fee
	assert.Equal(t, want, hex.EncodeToString(blob))
}

func TestTransferPayloadLayout(t *testing.T) {
	payload := &TransferPayload{
		SenderPublicKey: testSenderKey,
		AssetID:         "", // native
		FeeAssetID:      "",
		Timestamp:       1647569486224,
		Amount:          500,
		Fee:             100000,
		Recipient:       testMatcherKey,
		Attachment:      "hi",
	}

	blob, err := payload.Bytes()
	require.NoError(t, err)

	// type tag, sender key, two zero asset flags.
	assert.Equal(t, byte(4), blob[0])
	assert.Equal(t, byte(0), blob[33])
	assert.Equal(t, byte(0), blob[34])
	// trailing attachment: big-endian uint16 length then the bytes.
	assert.Equal(t, []byte{0, 2, 'h', 'i'}, blob[len(blob)-4:])
}

func TestPayloadRejectsBadKeys(t *testing.T) {
	_, err := (&OrderPayload{
		SenderPublicKey:  "not-base58-!!",
		MatcherPublicKey: testMatcherKey,
	}).Bytes()
	assert.Error(t, err)

	// A key that decodes to the wrong width is rejected too.
	short := base58.Encode([]byte{1, 2, 3})
	_, err = (&OrderPayload{
		SenderPublicKey:  short,
		MatcherPublicKey: testMatcherKey,
	}).Bytes()
	assert.Error(t, err)
}

func TestEdDSASignVerifyRoundTrip(t *testing.T) {
	signer := NewEdDSASigner("waves", interfaces.Credentials{Secret: testSeed})

	pubB58, err := signer.PublicKey()
	require.NoError(t, err)
	pub, err := base58.Decode(pubB58)
	require.NoError(t, err)
	require.Len(t, pub, ed25519.PublicKeySize)

	blob := []byte{0xde, 0xad, 0xbe, 0xef}
	sigB58, err := signer.SignBytes(blob)
	require.NoError(t, err)
	sig, err := base58.Decode(sigB58)
	require.NoError(t, err)

	// The signature covers the lowercase-hex rendering of the blob.
	message := []byte(hex.EncodeToString(blob))
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub), message, sig))
	assert.False(t, ed25519.Verify(ed25519.PublicKey(pub), blob, sig))

	// Deterministic: same blob, same signature.
	again, err := signer.SignBytes(blob)
	require.NoError(t, err)
	assert.Equal(t, sigB58, again)
}

func TestEdDSASignEmbedsBodyField(t *testing.T) {
	signer := NewEdDSASigner("waves", interfaces.Credentials{Secret: testSeed})

	req := NewRequest("POST", "https://matcher.example/matcher/orderbook", "/matcher/orderbook", "")
	req.Binary = &OrderPayload{
		SenderPublicKey:  testSenderKey,
		MatcherPublicKey: testMatcherKey,
		Side:             OrderSideBuy,
		Price:            1,
		Amount:           1,
		Timestamp:        1,
		Expiration:       2,
		MatcherFee:       3,
	}
	require.NoError(t, signer.Sign(req, 0))

	signature, ok := req.Params["signature"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, signature)
	// Body signing never touches headers.
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestEdDSAMissingSeed(t *testing.T) {
	signer := NewEdDSASigner("waves", interfaces.Credentials{})
	_, err := signer.SignBytes([]byte{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrAuthentication)

	bad := NewEdDSASigner("waves", interfaces.Credentials{Secret: "0OIl"})
	_, err = bad.SignBytes([]byte{1})
	assert.ErrorIs(t, err, interfaces.ErrAuthentication)
}
