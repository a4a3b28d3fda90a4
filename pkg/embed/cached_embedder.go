package embed

import (
	"container/list"
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
)

// CachedEmbedder wraps a real Embedder with an LRU cache keyed by
// FNV-1a hash of the input text, so re-indexing an unchanged anchor
// text (a no-op Service.Update, a re-embed retry after a transient
// store failure) never pays for a second Ollama/OpenAI round trip.
// Thread-safe: used concurrently by the single-writer indexer and the
// retrieval pipeline sharing the same embedder instance.
type CachedEmbedder struct {
	base Embedder

	mu      sync.RWMutex
	cache   map[string]*list.Element
	lru     *list.List
	maxSize int

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key       string
	embedding []float32
}

// NewCachedEmbedder wraps base with an LRU cache holding up to maxSize
// embeddings (0 defaults to 1024, matching config.EmbeddingConfig's
// default cache size).
func NewCachedEmbedder(base Embedder, maxSize int) *CachedEmbedder {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &CachedEmbedder{
		base:    base,
		cache:   make(map[string]*list.Element, maxSize),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

func hashText(text string) string {
	h := fnv.New64a()
	h.Write([]byte(text))
	return strconv.FormatUint(h.Sum64(), 36)
}

// Embed returns the cached embedding for text if present, promoting it
// to most-recently-used; otherwise it calls base and caches the result.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)

	c.mu.RLock()
	if elem, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		atomic.AddUint64(&c.hits, 1)
		c.mu.Lock()
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		c.mu.Unlock()
		return entry.embedding, nil
	}
	c.mu.RUnlock()

	atomic.AddUint64(&c.misses, 1)
	embedding, err := c.base.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).embedding, nil
	}
	for c.lru.Len() >= c.maxSize {
		c.evictOldest()
	}
	entry := &cacheEntry{key: key, embedding: embedding}
	c.cache[key] = c.lru.PushFront(entry)
	return embedding, nil
}

// EmbedBatch checks the cache per text and sends only the misses to
// base, preserving input order in the returned slice.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var misses []int
	var missTexts []string

	for i, text := range texts {
		key := hashText(text)
		c.mu.RLock()
		elem, ok := c.cache[key]
		c.mu.RUnlock()
		if ok {
			entry := elem.Value.(*cacheEntry)
			results[i] = entry.embedding
			atomic.AddUint64(&c.hits, 1)
			c.mu.Lock()
			c.lru.MoveToFront(elem)
			c.mu.Unlock()
			continue
		}
		atomic.AddUint64(&c.misses, 1)
		misses = append(misses, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	embeddings, err := c.base.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for j, embedding := range embeddings {
		i := misses[j]
		results[i] = embedding
		key := hashText(missTexts[j])
		if _, ok := c.cache[key]; ok {
			continue
		}
		for c.lru.Len() >= c.maxSize {
			c.evictOldest()
		}
		entry := &cacheEntry{key: key, embedding: embedding}
		c.cache[key] = c.lru.PushFront(entry)
	}
	return results, nil
}

func (c *CachedEmbedder) Dimensions() int { return c.base.Dimensions() }

func (c *CachedEmbedder) Model() string { return c.base.Model() }

// Stats reports cache effectiveness, surfaced through
// pkg/sysinfo.Reporter.Report when the service's embedder is cached.
func (c *CachedEmbedder) Stats() CacheStats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)

	c.mu.RLock()
	size := c.lru.Len()
	c.mu.RUnlock()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return CacheStats{Size: size, MaxSize: c.maxSize, Hits: hits, Misses: misses, HitRate: hitRate}
}

// CacheStats is a point-in-time snapshot of CachedEmbedder's hit rate.
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Clear drops all cached embeddings; used by tests that need a known
// cold-cache starting state.
func (c *CachedEmbedder) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*list.Element, c.maxSize)
	c.lru.Init()
}

// evictOldest removes the least recently used entry. Caller must hold
// the write lock.
func (c *CachedEmbedder) evictOldest() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*cacheEntry)
	delete(c.cache, entry.key)
	c.lru.Remove(elem)
}
