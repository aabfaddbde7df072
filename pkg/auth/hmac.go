package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/veiloq/venue-adapters/pkg/exchanges/interfaces"
)

// PayloadField identifies one component of the HMAC payload. The field
// order and presence vary per venue and must match the venue's
// reference byte-for-byte, so the payload is assembled from an ordered
// field list rather than a fixed template.
type PayloadField int

const (
	FieldNonce PayloadField = iota
	FieldUID
	FieldAPIKey
	FieldMethod
	FieldURL
	FieldPath
	FieldBody
)

// Encoding selects the signature's wire representation.
type Encoding int

const (
	EncodingHex Encoding = iota
	EncodingBase64
)

// InjectFunc places the computed signature into the request envelope.
// The two shapes used by the HMAC venues are provided below; a venue
// with another header format supplies its own.
type InjectFunc func(req *Request, creds interfaces.Credentials, nonce int64, signature string)

// AuthorizationHMACHeader writes the single combined header format
//
//	Authorization: HMAC {uid}:{apiKey}:{nonce}:{signature}
//
// used by FXOpen.
func AuthorizationHMACHeader(req *Request, creds interfaces.Credentials, nonce int64, signature string) {
	req.Header.Set("Authorization",
		fmt.Sprintf("HMAC %s:%s:%d:%s", creds.UID, creds.APIKey, nonce, signature))
}

// SplitAPIHeaders writes the three-header format
//
//	X-API-KEY / X-API-NONCE / X-API-SIGN
//
// used by NonKYC.
func SplitAPIHeaders(req *Request, creds interfaces.Credentials, nonce int64, signature string) {
	req.Header.Set("X-API-KEY", creds.APIKey)
	req.Header.Set("X-API-NONCE", strconv.FormatInt(nonce, 10))
	req.Header.Set("X-API-SIGN", signature)
}

// HMACConfig describes one venue's HMAC dialect.
type HMACConfig struct {
	Venue       string
	Credentials interfaces.Credentials

	// Fields is the ordered payload layout; the concatenated UTF-8
	// bytes of these fields are what gets MACed.
	Fields []PayloadField

	Encoding Encoding
	Inject   InjectFunc

	// RequireUID makes signing fail fast when the venue signs the
	// account id into the payload and none was configured.
	RequireUID bool
}

// HMACSigner computes HMAC-SHA256 over the venue's payload layout and
// injects the encoded signature into the request headers. It is a pure
// function of (credentials, request, nonce).
type HMACSigner struct {
	cfg HMACConfig
}

// NewHMACSigner builds a signer for one venue dialect.
func NewHMACSigner(cfg HMACConfig) *HMACSigner {
	return &HMACSigner{cfg: cfg}
}

// Payload assembles the exact byte string to be MACed. Exposed for
// signature-vector tests.
func (s *HMACSigner) Payload(req *Request, nonce int64) string {
	var buf []byte
	for _, f := range s.cfg.Fields {
		switch f {
		case FieldNonce:
			buf = strconv.AppendInt(buf, nonce, 10)
		case FieldUID:
			buf = append(buf, s.cfg.Credentials.UID...)
		case FieldAPIKey:
			buf = append(buf, s.cfg.Credentials.APIKey...)
		case FieldMethod:
			buf = append(buf, req.Method...)
		case FieldURL:
			buf = append(buf, req.URL...)
		case FieldPath:
			buf = append(buf, req.Path...)
		case FieldBody:
			buf = append(buf, req.Body...)
		}
	}
	return string(buf)
}

// Sign implements Signer.
func (s *HMACSigner) Sign(req *Request, nonce int64) error {
	creds := s.cfg.Credentials
	if !creds.Configured() {
		return missingCredentials(s.cfg.Venue, "apiKey and secret are required")
	}
	if s.cfg.RequireUID && creds.UID == "" {
		return missingCredentials(s.cfg.Venue, "account id (uid) is required")
	}

	mac := hmac.New(sha256.New, []byte(creds.Secret))
	mac.Write([]byte(s.Payload(req, nonce)))
	sum := mac.Sum(nil)

	var signature string
	switch s.cfg.Encoding {
	case EncodingBase64:
		signature = base64.StdEncoding.EncodeToString(sum)
	default:
		signature = hex.EncodeToString(sum)
	}

	s.cfg.Inject(req, creds, nonce, signature)
	return nil
}
