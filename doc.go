// Package venueadapters unifies the REST dialects of five trading
// venues behind one schema and one operation set.
//
// Each venue lives in its own package under pkg/exchanges and
// implements interfaces.Exchange: market data (markets, tickers, order
// books, trades, candles) and account operations (balances, order
// lifecycle). Venue-specific extras such as positions, transfers and
// withdrawals stay as methods on the concrete connector types.
//
// Authentication strategies live in pkg/auth: HMAC header signing
// (FXOpen, NonKYC), Ed25519 binary-payload signing (Waves.Exchange)
// and bearer tokens obtained through a sign-in exchange (BTCEX,
// Coinlist, Waves reads). Venue errors are normalized into the
// taxonomy of pkg/exchanges/interfaces, so callers can branch with
// errors.Is against sentinel kinds regardless of venue.
//
// See cmd/examples for a runnable walkthrough.
package venueadapters
