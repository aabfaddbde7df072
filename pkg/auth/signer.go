// Package auth implements the authentication core shared by the venue
// adapters: nonce generation, the request-signing strategies (HMAC
// header signing, EdDSA body signing, bearer-token injection) and the
// session manager that owns the token and account-context caches.
//
// Signing is stateless with respect to request content: signing the
// same method, URL, body and nonce twice yields byte-identical output.
// Only the nonce varies between calls, which is what prevents replay
// on the venue side.
package auth

import (
	"net/http"

	"github.com/veiloq/venue-adapters/pkg/exchanges/interfaces"
)

// Request is the mutable transport envelope a signer operates on. It
// is constructed fresh per call and never persisted. Header injection
// strategies write into Header; body-embedding strategies (Waves)
// write into Params before the body is marshaled.
type Request struct {
	Method string
	// URL is the absolute request URL including query string.
	URL string
	// Path is the path+query portion, for venues whose signed payload
	// covers the path rather than the absolute URL.
	Path string
	// Body is the serialized request body, empty for GET.
	Body string

	Header http.Header
	// Params is the not-yet-marshaled JSON body for venues that embed
	// the signature as a body field.
	Params map[string]any
	// Binary is the fixed-layout payload for body-signing venues; nil
	// for header-signing strategies.
	Binary BinaryPayload
}

// NewRequest builds an envelope with an initialized header map.
func NewRequest(method, url, path, body string) *Request {
	return &Request{
		Method: method,
		URL:    url,
		Path:   path,
		Body:   body,
		Header: make(http.Header),
	}
}

// Signer binds a request to the adapter's credentials. Implementations
// must not mutate the semantic content of the request: header signers
// only add headers, body signers only add signature fields.
//
// Sign fails fast with an ErrAuthentication-classified error when the
// required credentials are absent; no partially signed request is ever
// handed to the transport.
type Signer interface {
	Sign(req *Request, nonce int64) error
}

// missingCredentials builds the fail-fast error every strategy raises
// before any network call is attempted.
func missingCredentials(venue, detail string) error {
	return interfaces.NewVenueError(venue, interfaces.ErrAuthentication, "", "missing credentials: "+detail, "")
}
