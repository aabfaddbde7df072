package auth

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/veiloq/venue-adapters/pkg/exchanges/interfaces"
)

// SignInFunc performs the venue's sign-in exchange: submits the
// credentials and returns the issued token. Called at most once per
// token lifetime.
type SignInFunc func(ctx context.Context) (interfaces.SessionToken, error)

// ContextLoader fetches one piece of account metadata from the venue.
type ContextLoader func(ctx context.Context) (any, error)

// Session owns the only persistent state an adapter has: the cached
// session token and the account-context cache. Both are created lazily
// on first need and live in memory only; losing the process means
// re-authenticating.
//
// Read-check-then-write on both caches is guarded by a singleflight
// group, so concurrent callers racing on a cold cache share one
// in-flight sign-in or fetch instead of each issuing their own.
type Session struct {
	venue  string
	creds  interfaces.Credentials
	signIn SignInFunc

	mu    sync.RWMutex
	token interfaces.SessionToken

	group    singleflight.Group
	contexts *gocache.Cache
	ttl      time.Duration
}

// NewSession builds a session manager. ttl bounds account-context
// freshness; zero falls back to 30 seconds.
func NewSession(venue string, creds interfaces.Credentials, ttl time.Duration, signIn SignInFunc) *Session {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Session{
		venue:    venue,
		creds:    creds,
		signIn:   signIn,
		contexts: gocache.New(ttl, 2*ttl),
		ttl:      ttl,
	}
}

// EnsureSignedIn performs the sign-in exchange unless a valid token is
// already cached. Idempotent: repeated or concurrent calls with a
// cached token are no-ops, and concurrent calls on a cold cache share
// a single exchange.
func (s *Session) EnsureSignedIn(ctx context.Context) error {
	_, err := s.Token(ctx)
	return err
}

// Token returns the cached session token, signing in first when none
// is cached or the cached one has expired.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token.Valid(time.Now()) {
		return token.Value, nil
	}

	if !s.creds.Configured() {
		return "", missingCredentials(s.venue, "apiKey and secret are required to sign in")
	}

	v, err, _ := s.group.Do("token", func() (interface{}, error) {
		s.mu.RLock()
		cached := s.token
		s.mu.RUnlock()
		if cached.Valid(time.Now()) {
			return cached.Value, nil
		}
		issued, err := s.signIn(ctx)
		if err != nil {
			return nil, wrapCancelled(s.venue, ctx, err)
		}
		if issued.ObtainedAt.IsZero() {
			issued.ObtainedAt = time.Now()
		}
		s.mu.Lock()
		s.token = issued
		s.mu.Unlock()
		return issued.Value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token. There is no automatic
// refresh-and-retry on an authentication error mid-call; the caller
// sees the raised error, may Invalidate, and the next request signs in
// again.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.token = interfaces.SessionToken{}
	s.mu.Unlock()
}

// SignedIn reports whether a currently valid token is cached.
func (s *Session) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.Valid(time.Now())
}

// AccountContext returns cached account metadata under the given key
// when fresh, otherwise runs the loader and caches the result for the
// session TTL. forceReload bypasses the freshness check. The returned
// value is always the product of a single fetch; a context never mixes
// fields from two loads.
func (s *Session) AccountContext(ctx context.Context, key string, forceReload bool, loader ContextLoader) (any, error) {
	if !forceReload {
		if v, ok := s.contexts.Get(key); ok {
			return v, nil
		}
	} else {
		s.contexts.Delete(key)
	}
	v, err, _ := s.group.Do("context:"+key, func() (interface{}, error) {
		if !forceReload {
			if v, ok := s.contexts.Get(key); ok {
				return v, nil
			}
		}
		loaded, err := loader(ctx)
		if err != nil {
			return nil, wrapCancelled(s.venue, ctx, err)
		}
		s.contexts.SetDefault(key, loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// InvalidateContext drops one cached account-context entry.
func (s *Session) InvalidateContext(key string) {
	s.contexts.Delete(key)
}

// wrapCancelled keeps caller-side aborts distinct from venue failures:
// when the error coincides with the context being done, it surfaces as
// ErrCancelled rather than whatever the transport reported.
func wrapCancelled(venue string, ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return interfaces.NewVenueError(venue, interfaces.ErrCancelled, "", ctx.Err().Error(), "")
	}
	return err
}
