// Package cache provides a two-tier namespaced cache: an in-process tier
// backed by go-cache fronting an optional Redis tier. Reads fall through
// memory to Redis and backfill memory; writes go to both tiers.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/mailscope/mailscope/internal/db"
	"github.com/mailscope/mailscope/internal/domain"
)

// Namespace partitions cached values by concern. Each namespace carries
// its own TTL and hit/miss accounting.
type Namespace string

const (
	NSEmbedding Namespace = "embedding"
	NSQuery     Namespace = "query"
	NSMetadata  Namespace = "metadata"
	NSResults   Namespace = "results"
)

// Default TTLs per namespace.
const (
	EmbeddingTTL = time.Hour
	QueryTTL     = time.Hour
	MetadataTTL  = 30 * time.Minute
	ResultsTTL   = 10 * time.Minute
)

// TTLs maps namespaces to expiration times. Zero-value entries fall back
// to the package defaults.
type TTLs struct {
	Embedding time.Duration
	Query     time.Duration
	Metadata  time.Duration
	Results   time.Duration
}

func (t TTLs) forNamespace(ns Namespace) time.Duration {
	var d time.Duration
	switch ns {
	case NSEmbedding:
		d = t.Embedding
	case NSQuery:
		d = t.Query
	case NSMetadata:
		d = t.Metadata
	case NSResults:
		d = t.Results
	}
	if d <= 0 {
		d = defaultTTL(ns)
	}
	return d
}

func defaultTTL(ns Namespace) time.Duration {
	switch ns {
	case NSEmbedding:
		return EmbeddingTTL
	case NSQuery:
		return QueryTTL
	case NSMetadata:
		return MetadataTTL
	case NSResults:
		return ResultsTTL
	default:
		return 10 * time.Minute
	}
}

// Stats reports per-namespace cache effectiveness. AvgMissCostMS is the
// mean wall time callers spent computing values after a miss, reported
// through RecordMissCost.
type Stats struct {
	Namespace     Namespace `json:"namespace"`
	Hits          int64     `json:"hits"`
	Misses        int64     `json:"misses"`
	HitRate       float64   `json:"hit_rate"`
	AvgMissCostMS float64   `json:"avg_miss_cost_ms"`
}

type counters struct {
	hits       atomic.Int64
	misses     atomic.Int64
	missCostNS atomic.Int64
	missCostN  atomic.Int64
}

// Cache is safe for concurrent use. The Redis tier may be nil, in which
// case the cache is memory-only.
type Cache struct {
	mem  *gocache.Cache
	kv   db.KVStore
	ttls TTLs

	embedding counters
	query     counters
	metadata  counters
	results   counters
	other     counters
}

// New builds a Cache over the given Redis tier. Pass nil kv for a
// memory-only cache.
func New(kv db.KVStore, ttls TTLs) *Cache {
	return &Cache{
		mem:  gocache.New(5*time.Minute, 10*time.Minute),
		kv:   kv,
		ttls: ttls,
	}
}

// Key builds the storage key for a namespace and raw identity string.
// The identity is hashed so arbitrary query text stays key-safe.
func Key(ns Namespace, identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return domain.KeyPrefix + "cache:" + string(ns) + ":" + hex.EncodeToString(sum[:])
}

// Get reads a value. Memory is checked first; on a memory miss the Redis
// tier is consulted and a hit backfills memory. Redis errors degrade to
// a miss.
func (c *Cache) Get(ctx context.Context, ns Namespace, key string) ([]byte, bool) {
	ttl := c.ttls.forNamespace(ns)

	if v, found := c.mem.Get(key); found {
		c.count(ns).hits.Add(1)
		return v.([]byte), true
	}

	if c.kv != nil {
		data, err := c.kv.Get(ctx, key)
		if err == nil {
			c.mem.Set(key, data, memTTL(ttl))
			c.count(ns).hits.Add(1)
			return data, true
		}
	}

	c.count(ns).misses.Add(1)
	return nil, false
}

// Set writes a value to both tiers. The Redis write is best effort.
func (c *Cache) Set(ctx context.Context, ns Namespace, key string, data []byte) {
	ttl := c.ttls.forNamespace(ns)
	c.mem.Set(key, data, memTTL(ttl))
	if c.kv != nil {
		_ = c.kv.SetWithTTL(ctx, key, data, ttl)
	}
}

// GetJSON reads and unmarshals a cached value into out. A corrupt entry
// counts as a miss.
func (c *Cache) GetJSON(ctx context.Context, ns Namespace, key string, out any) bool {
	data, found := c.Get(ctx, ns, key)
	if !found {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.mem.Delete(key)
		return false
	}
	return true
}

// SetJSON marshals and stores v. Marshal failures are dropped silently;
// the cache never fails a request.
func (c *Cache) SetJSON(ctx context.Context, ns Namespace, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.Set(ctx, ns, key, data)
}

// RecordMissCost notes how long a caller spent recomputing a value after
// a miss. Feeds the optimization suggestions in the performance monitor.
func (c *Cache) RecordMissCost(ns Namespace, d time.Duration) {
	cnt := c.count(ns)
	cnt.missCostNS.Add(int64(d))
	cnt.missCostN.Add(1)
}

// Stats returns a snapshot for every namespace that saw traffic.
func (c *Cache) Stats() []Stats {
	all := []Namespace{NSEmbedding, NSQuery, NSMetadata, NSResults}
	out := make([]Stats, 0, len(all))
	for _, ns := range all {
		cnt := c.count(ns)
		hits := cnt.hits.Load()
		misses := cnt.misses.Load()
		if hits == 0 && misses == 0 {
			continue
		}
		s := Stats{Namespace: ns, Hits: hits, Misses: misses}
		if total := hits + misses; total > 0 {
			s.HitRate = float64(hits) / float64(total)
		}
		if n := cnt.missCostN.Load(); n > 0 {
			s.AvgMissCostMS = float64(cnt.missCostNS.Load()) / float64(n) / float64(time.Millisecond)
		}
		out = append(out, s)
	}
	return out
}

func (c *Cache) count(ns Namespace) *counters {
	switch ns {
	case NSEmbedding:
		return &c.embedding
	case NSQuery:
		return &c.query
	case NSMetadata:
		return &c.metadata
	case NSResults:
		return &c.results
	default:
		return &c.other
	}
}

// memTTL keeps the in-process tier shorter-lived than Redis so the two
// tiers cannot drift for long.
func memTTL(ttl time.Duration) time.Duration {
	if ttl > 5*time.Minute {
		return 5 * time.Minute
	}
	return ttl
}
