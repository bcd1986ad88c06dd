package predictor

import (
	"context"
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"turkish-name-generator/internal/metrics"
)

// Cached memoises a predictor by window. Predictors keep no state between
// calls, so an identical window always yields the same distribution; with
// short names most generation steps revisit a handful of windows.
type Cached struct {
	next  Predictor
	cache *lru.Cache[uint64, cacheEntry]
}

// cacheEntry keeps the full window next to its distribution so a hash
// collision is detected instead of served.
type cacheEntry struct {
	window []int
	probs  []float64
}

// NewCached wraps next with an LRU cache holding up to size windows.
func NewCached(next Predictor, size int) (*Cached, error) {
	cache, err := lru.New[uint64, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache}, nil
}

// Predict implements Predictor. Returned slices are copies and may be
// modified by the caller.
func (c *Cached) Predict(ctx context.Context, window []int) ([]float64, error) {
	key := windowKey(window)
	if entry, ok := c.cache.Get(key); ok && slices.Equal(entry.window, window) {
		metrics.RecordPredictorCache(true)
		return append([]float64(nil), entry.probs...), nil
	}
	metrics.RecordPredictorCache(false)

	probs, err := c.next.Predict(ctx, window)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cacheEntry{
		window: append([]int(nil), window...),
		probs:  append([]float64(nil), probs...),
	})
	return probs, nil
}

// Len is the number of cached windows.
func (c *Cached) Len() int { return c.cache.Len() }

func windowKey(window []int) uint64 {
	buf := make([]byte, 0, 4*len(window)+4)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(window)))
	for _, code := range window {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(code))
	}
	return xxhash.Sum64(buf)
}
