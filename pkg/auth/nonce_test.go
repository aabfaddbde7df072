package auth

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceStrictlyIncreasing(t *testing.T) {
	source := NewNonceSource()
	prev := source.Next()
	for i := 0; i < 10_000; i++ {
		next := source.Next()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestNonceConcurrentBurst(t *testing.T) {
	source := NewNonceSource()

	const workers = 16
	const perWorker = 1000

	results := make([][]int64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			batch := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				batch = append(batch, source.Next())
			}
			results[w] = batch
		}(w)
	}
	wg.Wait()

	// Every nonce is unique across all goroutines, even when many land
	// in the same millisecond.
	all := make([]int64, 0, workers*perWorker)
	for _, batch := range results {
		all = append(all, batch...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	for i := 1; i < len(all); i++ {
		assert.NotEqual(t, all[i-1], all[i])
	}
}
