package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veiloq/venue-adapters/pkg/exchanges/interfaces"
)

func newTestSession(signIn SignInFunc) *Session {
	return NewSession("test", interfaces.Credentials{APIKey: "k", Secret: "s"}, time.Minute, signIn)
}

func TestSessionTokenReuse(t *testing.T) {
	var calls int32
	session := newTestSession(func(ctx context.Context) (interfaces.SessionToken, error) {
		atomic.AddInt32(&calls, 1)
		return interfaces.SessionToken{Value: "tok-1"}, nil
	})

	ctx := context.Background()
	first, err := session.Token(ctx)
	require.NoError(t, err)
	second, err := session.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first)
	assert.Equal(t, "tok-1", second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, session.SignedIn())
}

func TestSessionConcurrentSignInShared(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	session := newTestSession(func(ctx context.Context) (interfaces.SessionToken, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return interfaces.SessionToken{Value: "tok-shared"}, nil
	})

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = session.Token(context.Background())
		}(i)
	}

	// Let the goroutines pile onto the singleflight before the sign-in
	// returns.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-shared", tokens[i])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSessionExpiredTokenRenewed(t *testing.T) {
	var calls int32
	session := newTestSession(func(ctx context.Context) (interfaces.SessionToken, error) {
		n := atomic.AddInt32(&calls, 1)
		token := interfaces.SessionToken{Value: "tok-1"}
		if n == 1 {
			token.ExpiresAt = time.Now().Add(-time.Second)
		} else {
			token.Value = "tok-2"
		}
		return token, nil
	})

	ctx := context.Background()
	// First token is already expired when cached, so the next call
	// signs in again.
	_, err := session.Token(ctx)
	require.NoError(t, err)
	second, err := session.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSessionInvalidate(t *testing.T) {
	var calls int32
	session := newTestSession(func(ctx context.Context) (interfaces.SessionToken, error) {
		atomic.AddInt32(&calls, 1)
		return interfaces.SessionToken{Value: "tok"}, nil
	})

	ctx := context.Background()
	require.NoError(t, session.EnsureSignedIn(ctx))
	session.Invalidate()
	assert.False(t, session.SignedIn())
	require.NoError(t, session.EnsureSignedIn(ctx))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSessionMissingCredentialsFailFast(t *testing.T) {
	var calls int32
	session := NewSession("test", interfaces.Credentials{}, time.Minute,
		func(ctx context.Context) (interfaces.SessionToken, error) {
			atomic.AddInt32(&calls, 1)
			return interfaces.SessionToken{Value: "never"}, nil
		})

	_, err := session.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrAuthentication)
	// The sign-in exchange must not run at all.
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestSessionCancellation(t *testing.T) {
	session := newTestSession(func(ctx context.Context) (interfaces.SessionToken, error) {
		<-ctx.Done()
		return interfaces.SessionToken{}, ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := session.Token(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrCancelled)
	assert.NotErrorIs(t, err, interfaces.ErrExchange)
}

func TestAccountContextCaching(t *testing.T) {
	session := newTestSession(nil)

	var loads int32
	loader := func(ctx context.Context) (any, error) {
		return atomic.AddInt32(&loads, 1), nil
	}

	ctx := context.Background()
	v1, err := session.AccountContext(ctx, "account", false, loader)
	require.NoError(t, err)
	v2, err := session.AccountContext(ctx, "account", false, loader)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))

	// forceReload bypasses the TTL.
	v3, err := session.AccountContext(ctx, "account", true, loader)
	require.NoError(t, err)
	assert.Equal(t, int32(2), v3)

	// Distinct keys load independently.
	_, err = session.AccountContext(ctx, "other", false, loader)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&loads))

	session.InvalidateContext("account")
	_, err = session.AccountContext(ctx, "account", false, loader)
	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&loads))
}
