package auth

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/veiloq/venue-adapters/pkg/exchanges/interfaces"
)

// Binary serialization for Waves-style transaction signing. The venue
// re-derives the same bytes server-side to verify the signature, so
// field order and width are fixed: 1-byte type tags and presence
// flags, 8-byte big-endian integers for amount/price/timestamp/
// expiration/fee, and 32-byte base58-decoded keys and asset ids.

const transferTxType = 4

// BinaryPayload is anything that can render itself into the venue's
// transaction-serialization format.
type BinaryPayload interface {
	Bytes() ([]byte, error)
}

// OrderSide is the byte the binary layout uses for order direction.
type OrderSide byte

const (
	OrderSideBuy  OrderSide = 0
	OrderSideSell OrderSide = 1
)

// OrderPayload is the fixed-layout binary form of a matcher order.
// Asset ids are base58 strings; the empty string denotes the chain's
// native asset, serialized as a zero presence flag with no id bytes.
type OrderPayload struct {
	SenderPublicKey  string
	MatcherPublicKey string
	AmountAsset      string
	PriceAsset       string
	Side             OrderSide
	Price            int64
	Amount           int64
	Timestamp        int64
	Expiration       int64
	MatcherFee       int64
}

// Bytes implements BinaryPayload.
func (p *OrderPayload) Bytes() ([]byte, error) {
	buf := make([]byte, 0, 160)
	var err error
	if buf, err = appendPublicKey(buf, p.SenderPublicKey); err != nil {
		return nil, err
	}
	if buf, err = appendPublicKey(buf, p.MatcherPublicKey); err != nil {
		return nil, err
	}
	if buf, err = appendAsset(buf, p.AmountAsset); err != nil {
		return nil, err
	}
	if buf, err = appendAsset(buf, p.PriceAsset); err != nil {
		return nil, err
	}
	buf = append(buf, byte(p.Side))
	buf = appendInt64(buf, p.Price)
	buf = appendInt64(buf, p.Amount)
	buf = appendInt64(buf, p.Timestamp)
	buf = appendInt64(buf, p.Expiration)
	buf = appendInt64(buf, p.MatcherFee)
	return buf, nil
}

// TransferPayload is the fixed-layout binary form of a type-4 transfer
// transaction, used for withdrawals.
type TransferPayload struct {
	SenderPublicKey string
	AssetID         string
	FeeAssetID      string
	Timestamp       int64
	Amount          int64
	Fee             int64
	// Recipient is the base58 address bytes are decoded from.
	Recipient  string
	Attachment string
}

// Bytes implements BinaryPayload.
func (p *TransferPayload) Bytes() ([]byte, error) {
	buf := make([]byte, 0, 160)
	buf = append(buf, transferTxType)
	var err error
	if buf, err = appendPublicKey(buf, p.SenderPublicKey); err != nil {
		return nil, err
	}
	if buf, err = appendAsset(buf, p.AssetID); err != nil {
		return nil, err
	}
	if buf, err = appendAsset(buf, p.FeeAssetID); err != nil {
		return nil, err
	}
	buf = appendInt64(buf, p.Timestamp)
	buf = appendInt64(buf, p.Amount)
	buf = appendInt64(buf, p.Fee)
	recipient, err := base58.Decode(p.Recipient)
	if err != nil {
		return nil, errors.Wrap(err, "decoding recipient address")
	}
	buf = append(buf, recipient...)
	attachment := []byte(p.Attachment)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(attachment)))
	buf = append(buf, attachment...)
	return buf, nil
}

func appendInt64(buf []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(v))
}

func appendPublicKey(buf []byte, key string) ([]byte, error) {
	raw, err := base58.Decode(key)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding public key %q", key)
	}
	if len(raw) != 32 {
		return nil, errors.Errorf("public key %q is %d bytes, want 32", key, len(raw))
	}
	return append(buf, raw...), nil
}

// appendAsset writes the presence flag plus the 32-byte asset id; the
// empty string is the native asset and contributes only a zero flag.
func appendAsset(buf []byte, assetID string) ([]byte, error) {
	if assetID == "" {
		return append(buf, 0), nil
	}
	raw, err := base58.Decode(assetID)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding asset id %q", assetID)
	}
	if len(raw) != 32 {
		return nil, errors.Errorf("asset id %q is %d bytes, want 32", assetID, len(raw))
	}
	buf = append(buf, 1)
	return append(buf, raw...), nil
}

// EdDSASigner signs binary payloads with the account's Ed25519 key.
// The secret is the base58-encoded 32-byte seed; the signature covers
// the lowercase-hex encoding of the serialized payload and is embedded
// base58-encoded as a JSON body field, not a header.
type EdDSASigner struct {
	venue string
	creds interfaces.Credentials
}

// NewEdDSASigner builds a signer for the given venue credentials.
func NewEdDSASigner(venue string, creds interfaces.Credentials) *EdDSASigner {
	return &EdDSASigner{venue: venue, creds: creds}
}

func (s *EdDSASigner) key() (ed25519.PrivateKey, error) {
	if s.creds.Secret == "" {
		return nil, missingCredentials(s.venue, "base58 seed is required")
	}
	seed, err := base58.Decode(s.creds.Secret)
	if err != nil {
		return nil, interfaces.NewVenueError(s.venue, interfaces.ErrAuthentication, "",
			"secret is not valid base58", "")
	}
	if len(seed) != ed25519.SeedSize {
		return nil, interfaces.NewVenueError(s.venue, interfaces.ErrAuthentication, "",
			"secret seed must decode to 32 bytes", "")
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// PublicKey returns the base58 form of the account public key.
func (s *EdDSASigner) PublicKey() (string, error) {
	key, err := s.key()
	if err != nil {
		return "", err
	}
	return base58.Encode(key.Public().(ed25519.PublicKey)), nil
}

// SignBytes signs a serialized payload and returns the base58
// signature. Deterministic: identical payloads produce identical
// signatures (Ed25519 is deterministic by construction).
func (s *EdDSASigner) SignBytes(blob []byte) (string, error) {
	key, err := s.key()
	if err != nil {
		return "", err
	}
	message := []byte(hex.EncodeToString(blob))
	return base58.Encode(ed25519.Sign(key, message)), nil
}

// Sign implements Signer: serializes the payload attached to the
// request and embeds the signature into the JSON body params. The
// nonce is unused here; replay protection comes from the timestamp
// field inside the signed payload.
func (s *EdDSASigner) Sign(req *Request, _ int64) error {
	if req.Binary == nil {
		return interfaces.NewVenueError(s.venue, interfaces.ErrBadRequest, "",
			"no binary payload attached to request", "")
	}
	blob, err := req.Binary.Bytes()
	if err != nil {
		return interfaces.NewVenueError(s.venue, interfaces.ErrBadRequest, "", err.Error(), "")
	}
	signature, err := s.SignBytes(blob)
	if err != nil {
		return err
	}
	if req.Params == nil {
		req.Params = make(map[string]any)
	}
	req.Params["signature"] = signature
	return nil
}
