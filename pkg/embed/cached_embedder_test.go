package embed_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/memg/memg-core/pkg/embed"
	"github.com/stretchr/testify/require"
)

// countingEmbedder returns a deterministic embedding derived from the
// input's length and counts how many times the base embedder was
// actually invoked, so tests can assert on cache hits vs misses.
type countingEmbedder struct {
	calls     int64
	batchSize int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt64(&c.calls, 1)
	return []float32{float32(len(text)), 0.5, 0.5}, nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt64(&c.calls, int64(len(texts)))
	c.batchSize = len(texts)
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = []float32{float32(len(text)), 0.5, 0.5}
	}
	return results, nil
}

func (c *countingEmbedder) Model() string   { return "counting" }
func (c *countingEmbedder) Dimensions() int { return 3 }
func (c *countingEmbedder) CallCount() int64 {
	return atomic.LoadInt64(&c.calls)
}

func TestCachedEmbedderCacheHit(t *testing.T) {
	base := &countingEmbedder{}
	cached := embed.NewCachedEmbedder(base, 100)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "hello world")
	require.NoError(t, err)
	require.EqualValues(t, 1, base.CallCount())

	_, err = cached.Embed(ctx, "hello world")
	require.NoError(t, err)
	require.EqualValues(t, 1, base.CallCount(), "repeated text must hit the cache")

	_, err = cached.Embed(ctx, "different text")
	require.NoError(t, err)
	require.EqualValues(t, 2, base.CallCount())

	stats := cached.Stats()
	require.EqualValues(t, 1, stats.Hits)
	require.EqualValues(t, 2, stats.Misses)
	require.Equal(t, 2, stats.Size)
}

func TestCachedEmbedderBatchCaching(t *testing.T) {
	base := &countingEmbedder{}
	cached := embed.NewCachedEmbedder(base, 100)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "cached")
	require.NoError(t, err)

	texts := []string{"cached", "new1", "new2"}
	_, err = cached.EmbedBatch(ctx, texts)
	require.NoError(t, err)

	require.EqualValues(t, 3, base.CallCount(), "1 pre-cache call + 2 batch misses")
	require.Equal(t, 2, base.batchSize, "only the misses go to the base embedder")

	require.EqualValues(t, 1, cached.Stats().Hits)
}

func TestCachedEmbedderLRUEviction(t *testing.T) {
	base := &countingEmbedder{}
	cached := embed.NewCachedEmbedder(base, 3)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		_, err := cached.Embed(ctx, text)
		require.NoError(t, err)
	}
	require.Equal(t, 3, cached.Stats().Size)

	_, err := cached.Embed(ctx, "d")
	require.NoError(t, err)
	require.Equal(t, 3, cached.Stats().Size, "size stays at maxSize after eviction")

	callsBefore := base.CallCount()
	_, err = cached.Embed(ctx, "a")
	require.NoError(t, err)
	require.Greater(t, base.CallCount(), callsBefore, "'a' was evicted, so this must be a miss")
}

func TestCachedEmbedderConcurrent(t *testing.T) {
	base := &countingEmbedder{}
	cached := embed.NewCachedEmbedder(base, 1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := "text"
			if i%2 == 0 {
				text = "other"
			}
			_, err := cached.Embed(ctx, text)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stats := cached.Stats()
	require.Equal(t, 2, stats.Size, "only 2 unique texts were embedded")
	require.Greater(t, stats.HitRate, 90.0)
}

func TestCachedEmbedderClear(t *testing.T) {
	base := &countingEmbedder{}
	cached := embed.NewCachedEmbedder(base, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 1, cached.Stats().Size)

	cached.Clear()
	require.Equal(t, 0, cached.Stats().Size)

	callsBefore := base.CallCount()
	_, err = cached.Embed(ctx, "a")
	require.NoError(t, err)
	require.Greater(t, base.CallCount(), callsBefore, "cleared entries must re-miss")
}

func BenchmarkCachedEmbedderCacheHit(b *testing.B) {
	base := &countingEmbedder{}
	cached := embed.NewCachedEmbedder(base, 1000)
	ctx := context.Background()

	_, _ = cached.Embed(ctx, "benchmark text")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = cached.Embed(ctx, "benchmark text")
	}
}

func BenchmarkCachedEmbedderCacheMiss(b *testing.B) {
	base := &countingEmbedder{}
	cached := embed.NewCachedEmbedder(base, b.N+1)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		text := string(rune('a' + i%26))
		_, _ = cached.Embed(ctx, text)
	}
}
