package interfaces

import (
	"strings"
)

// SubstringRule maps a vendor message fragment to a semantic error
// kind. Rules are checked in declaration order, so narrower fragments
// should precede broader ones.
type SubstringRule struct {
	Fragment string
	Kind     error
}

// Classifier turns a venue's failed response into exactly one
// VenueError of a known semantic kind. The tables are static: built at
// adapter construction and never mutated afterwards.
//
// Dispatch order:
//  1. HTTP status table, consulted for transport-level failures before
//     the body is parsed for a vendor code (ClassifyStatus).
//  2. Exact vendor code match (Classify).
//  3. Ordered substring match against the vendor message.
//  4. Fallback ErrExchange embedding the raw body.
//
// A Classifier never returns nil from a classification call and never
// signals success-with-caveats.
type Classifier struct {
	Venue  string
	Status map[int]error
	Exact  map[string]error
	Broad  []SubstringRule
}

// defaultStatusKinds covers statuses most venues agree on. Per-venue
// Status entries override these.
var defaultStatusKinds = map[int]error{
	400: ErrBadRequest,
	401: ErrAuthentication,
	403: ErrPermissionDenied,
	404: ErrExchange,
	405: ErrNotSupported,
	408: ErrCancelled,
	418: ErrDDoSProtection,
	429: ErrRateLimit,
	500: ErrExchange,
	502: ErrExchangeNotAvailable,
	503: ErrExchangeNotAvailable,
	504: ErrExchangeNotAvailable,
}

// ClassifyStatus maps a non-2xx HTTP status to a VenueError. The raw
// body is embedded untouched; no vendor-code parsing happens here.
func (c *Classifier) ClassifyStatus(status int, raw []byte) *VenueError {
	kind, ok := c.Status[status]
	if !ok {
		kind, ok = defaultStatusKinds[status]
	}
	if !ok {
		if status >= 500 {
			kind = ErrExchangeNotAvailable
		} else {
			kind = ErrExchange
		}
	}
	verr := NewVenueError(c.Venue, kind, "", string(raw), string(raw))
	verr.HTTPStatus = status
	return verr
}

// Classify maps a vendor error code/message pair to a VenueError.
// An exact-code hit always wins over a substring hit.
func (c *Classifier) Classify(code, message string, raw []byte) *VenueError {
	if code != "" {
		if kind, ok := c.Exact[code]; ok {
			return NewVenueError(c.Venue, kind, code, message, string(raw))
		}
	}
	lower := strings.ToLower(message)
	for _, rule := range c.Broad {
		if strings.Contains(lower, strings.ToLower(rule.Fragment)) {
			return NewVenueError(c.Venue, rule.Kind, code, message, string(raw))
		}
	}
	return NewVenueError(c.Venue, ErrExchange, code, message, string(raw))
}
