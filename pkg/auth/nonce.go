package auth

import (
	"sync/atomic"
	"time"
)

// NonceSource produces strictly increasing nonces for signed requests.
// Values start at the current epoch milliseconds and advance by at
// least one per call, so two requests from the same credentials can
// never reuse a nonce even when issued within the same millisecond.
// Safe for concurrent use.
type NonceSource struct {
	last atomic.Int64
}

// NewNonceSource returns a source seeded just below the current time,
// so the first Next() lands on the current millisecond.
func NewNonceSource() *NonceSource {
	n := &NonceSource{}
	n.last.Store(time.Now().UnixMilli() - 1)
	return n
}

// Next returns the next nonce: the current epoch milliseconds, bumped
// past the previously issued value when the clock has not advanced.
func (n *NonceSource) Next() int64 {
	for {
		now := time.Now().UnixMilli()
		last := n.last.Load()
		if now <= last {
			now = last + 1
		}
		if n.last.CompareAndSwap(last, now) {
			return now
		}
	}
}
