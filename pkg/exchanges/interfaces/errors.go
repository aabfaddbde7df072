package interfaces

import (
	"errors"
	"fmt"
)

// Semantic error kinds shared by every venue adapter. Vendor-specific
// codes and messages differ per exchange, but a failed call always
// unwraps to exactly one of these sentinels so callers can branch with
// errors.Is regardless of which venue produced the failure.
var (
	// ErrAuthentication covers missing or invalid credentials, expired
	// or rejected session tokens, and "login required" responses.
	ErrAuthentication = errors.New("authentication failed")

	// ErrPermissionDenied is returned when the request is authenticated
	// but the account is not allowed to perform the action.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrBadRequest covers malformed parameters and validation failures.
	ErrBadRequest = errors.New("bad request")

	// ErrInvalidOrder is returned when order parameters are rejected by
	// the venue (price/amount out of bounds, unsupported type, etc.).
	ErrInvalidOrder = errors.New("invalid order")

	// ErrOrderNotFound is returned when the referenced order does not
	// exist on the venue.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInsufficientFunds is returned on balance or margin shortfall.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAddress is returned when a withdrawal or deposit address
	// is rejected by the venue.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrRateLimit is returned when the venue reports request throttling.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrDDoSProtection is returned when the venue's anti-abuse layer
	// rejects the request before it reaches the API proper.
	ErrDDoSProtection = errors.New("ddos protection triggered")

	// ErrExchangeNotAvailable is returned on venue-side outage or
	// maintenance windows.
	ErrExchangeNotAvailable = errors.New("exchange not available")

	// ErrNotSupported is returned when the operation is not implemented
	// by the venue or the account type.
	ErrNotSupported = errors.New("operation not supported")

	// ErrExchange is the generic fallback when no more specific kind
	// matches the vendor error.
	ErrExchange = errors.New("exchange error")

	// ErrCancelled is returned when the caller's context was cancelled
	// or timed out before the call completed. It is kept apart from
	// ErrExchange so callers can tell a local abort from a venue-side
	// failure.
	ErrCancelled = errors.New("request cancelled")
)

// VenueError is the concrete error type every adapter raises on a
// failed venue response. It carries the venue identifier, the vendor
// code and message when the body yielded them, and the raw body for
// debugging. Unwrap returns the semantic kind so errors.Is works
// against the sentinels above.
type VenueError struct {
	Venue      string
	Kind       error
	Code       string
	Message    string
	HTTPStatus int
	Raw        string
}

func (e *VenueError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code %s)", e.Venue, msg, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Venue, msg)
}

func (e *VenueError) Unwrap() error {
	return e.Kind
}

// NewVenueError builds a VenueError of the given kind. Error() prefixes
// the venue id, so messages stay composable when wrapped further.
func NewVenueError(venue string, kind error, code, message, raw string) *VenueError {
	return &VenueError{
		Venue:   venue,
		Kind:    kind,
		Code:    code,
		Message: message,
		Raw:     raw,
	}
}
