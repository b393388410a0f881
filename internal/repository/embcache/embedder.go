package embcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/cache"
	"github.com/mailscope/mailscope/internal/domain"
)

// CachedEmbedder caches embeddings through the shared two-tier cache.
// Keys include the model name so a model change never serves stale vectors.
type CachedEmbedder struct {
	inner      domain.Embedder
	cache      *cache.Cache
	model      string
	dimensions int
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. Cached vectors are revalidated against
// dimensions on every hit (0 disables the check); a mismatched entry, say
// one written before a dimensions change, counts as a miss.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	c *cache.Cache,
	model string,
	dimensions int,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		cache:      c,
		model:      model,
		dimensions: dimensions,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
// Cache miss: full EmbeddingResult from inner; the vector is stored for
// later calls. Failed embeddings are never cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	c.incCache("miss")

	start := time.Now()
	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	c.cache.RecordMissCost(cache.NSEmbedding, time.Since(start))

	c.cache.Set(ctx, cache.NSEmbedding, key, vectorToCacheBytes(result.Embedding))
	return result, nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	return cache.Key(cache.NSEmbedding, c.model+"\x00"+text)
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, found := c.cache.Get(ctx, cache.NSEmbedding, key)
	if !found || len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if c.dimensions > 0 && len(vec) != c.dimensions {
		c.logger.Warn("Cached embedding has wrong dimensions",
			zap.String("key", key), zap.Int("got", len(vec)), zap.Int("want", c.dimensions))
		return nil, false
	}

	return vec, true
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
