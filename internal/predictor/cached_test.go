package predictor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedPredict(t *testing.T) {
	calls := 0
	next := Func(func(_ context.Context, window []int) ([]float64, error) {
		calls++
		if window[len(window)-1] == 1 {
			return []float64{0, 1}, nil
		}
		return []float64{1, 0}, nil
	})
	c, err := NewCached(next, 8)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := c.Predict(ctx, []int{0, 1})
	require.NoError(t, err)
	second, err := c.Predict(ctx, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	_, err = c.Predict(ctx, []int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, c.Len())

	// Callers may scribble on the result without corrupting the cache.
	second[0] = 42
	third, err := c.Predict(ctx, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, third)
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	calls := 0
	next := Func(func(context.Context, []int) ([]float64, error) {
		calls++
		return nil, errors.New("boom")
	})
	c, err := NewCached(next, 8)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := c.Predict(context.Background(), []int{1})
		assert.Error(t, err)
	}
	assert.Equal(t, 2, calls)
	assert.Zero(t, c.Len())
}

func TestCachedInvalidSize(t *testing.T) {
	_, err := NewCached(Func(nil), 0)
	assert.Error(t, err)
}

func TestWindowKeyDistinguishesLength(t *testing.T) {
	assert.NotEqual(t, windowKey([]int{0, 1}), windowKey([]int{0, 0, 1}))
	assert.Equal(t, windowKey([]int{3, 7}), windowKey([]int{3, 7}))
}

func TestCachedIgnoresKeyCollision(t *testing.T) {
	calls := 0
	next := Func(func(_ context.Context, window []int) ([]float64, error) {
		calls++
		return []float64{0.25, 0.75}, nil
	})
	c, err := NewCached(next, 8)
	require.NoError(t, err)

	// Plant an entry for a different window under the same key.
	c.cache.Add(windowKey([]int{1}), cacheEntry{window: []int{2}, probs: []float64{1, 0}})

	got, err := c.Predict(context.Background(), []int{1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.75}, got)
	assert.Equal(t, 1, calls)

	got, err = c.Predict(context.Background(), []int{1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.75}, got)
	assert.Equal(t, 1, calls)
}
