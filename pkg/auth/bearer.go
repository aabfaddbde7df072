package auth

import "context"

// TokenProvider supplies a valid session token, performing the venue's
// sign-in exchange on first use. *Session satisfies this.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// BearerSigner attaches a previously obtained session token as an
// Authorization header. No per-request cryptography is involved; the
// proof of authenticity is the token itself.
type BearerSigner struct {
	venue    string
	provider TokenProvider
}

// NewBearerSigner builds a signer drawing tokens from the provider.
func NewBearerSigner(venue string, provider TokenProvider) *BearerSigner {
	return &BearerSigner{venue: venue, provider: provider}
}

// Sign implements Signer. The nonce is unused: replay protection for
// bearer venues lives in the token lifetime, not per-request state.
func (s *BearerSigner) Sign(req *Request, _ int64) error {
	token, err := s.provider.Token(context.Background())
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "bearer "+token)
	return nil
}

// SignContext is the context-aware variant adapters use on the request
// path, threading the caller's deadline through the sign-in exchange.
func (s *BearerSigner) SignContext(ctx context.Context, req *Request) error {
	token, err := s.provider.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "bearer "+token)
	return nil
}
