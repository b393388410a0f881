// Package monitor tracks per-stage latency and derives bottleneck and
// cache tuning reports from the recorded samples.
package monitor

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mailscope/mailscope/internal/cache"
	"github.com/mailscope/mailscope/internal/metrics"
)

// maxSamples bounds memory per stage; older samples are evicted first.
const maxSamples = 1000

// Severity thresholds on average stage latency.
const (
	highAvgMS   = 500
	mediumAvgMS = 200
)

// Summary aggregates one stage's samples.
type Summary struct {
	Stage string  `json:"stage"`
	Count int     `json:"count"`
	AvgMS float64 `json:"avg_ms"`
	MinMS float64 `json:"min_ms"`
	MaxMS float64 `json:"max_ms"`
	P50MS float64 `json:"p50_ms"`
	P95MS float64 `json:"p95_ms"`
	P99MS float64 `json:"p99_ms"`
}

// Bottleneck flags a slow stage.
type Bottleneck struct {
	Stage    string  `json:"stage"`
	Severity string  `json:"severity"` // "high" / "medium" / "low"
	AvgMS    float64 `json:"avg_ms"`
	MaxMS    float64 `json:"max_ms"`
}

// CacheSuggestion recommends tuning for an underperforming namespace.
type CacheSuggestion struct {
	Namespace     string  `json:"namespace"`
	HitRate       float64 `json:"hit_rate"`
	AvgMissCostMS float64 `json:"avg_miss_cost_ms"`
	Suggestion    string  `json:"suggestion"`
}

// Monitor is safe for concurrent use.
type Monitor struct {
	mu     sync.RWMutex
	stages map[string][]float64
	cache  *cache.Cache
}

// New creates a monitor. The cache may be nil; cache suggestions are
// then always empty.
func New(c *cache.Cache) *Monitor {
	return &Monitor{
		stages: make(map[string][]float64),
		cache:  c,
	}
}

// Record stores one stage sample and mirrors it to Prometheus.
func (m *Monitor) Record(stage string, d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	metrics.SearchStageDuration.WithLabelValues(stage).Observe(d.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	samples := append(m.stages[stage], ms)
	if len(samples) > maxSamples {
		samples = samples[len(samples)-maxSamples:]
	}
	m.stages[stage] = samples
}

// Summaries reports aggregates for every recorded stage, sorted by name.
func (m *Monitor) Summaries() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0, len(m.stages))
	for stage, samples := range m.stages {
		out = append(out, summarize(stage, samples))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// Bottlenecks flags stages by severity: high when the average exceeds
// 500ms, medium above 200ms, low when spikes run past four times an
// otherwise healthy average.
func (m *Monitor) Bottlenecks() []Bottleneck {
	summaries := m.Summaries()

	var out []Bottleneck
	for _, s := range summaries {
		var severity string
		switch {
		case s.AvgMS > highAvgMS:
			severity = "high"
		case s.AvgMS > mediumAvgMS:
			severity = "medium"
		case s.Count >= 2 && s.MaxMS > 4*s.AvgMS:
			severity = "low"
		default:
			continue
		}
		out = append(out, Bottleneck{
			Stage:    s.Stage,
			Severity: severity,
			AvgMS:    s.AvgMS,
			MaxMS:    s.MaxMS,
		})
	}
	return out
}

// minHitRate and missCostFloorMS gate cache suggestions: a namespace is
// only flagged when misses are both frequent and expensive.
const (
	minHitRate      = 0.8
	missCostFloorMS = 50
)

// CacheSuggestions flags cache namespaces whose hit rate is low while
// recomputation is expensive.
func (m *Monitor) CacheSuggestions() []CacheSuggestion {
	if m.cache == nil {
		return nil
	}

	var out []CacheSuggestion
	for _, s := range m.cache.Stats() {
		if s.HitRate >= minHitRate || s.AvgMissCostMS <= missCostFloorMS {
			continue
		}
		out = append(out, CacheSuggestion{
			Namespace:     string(s.Namespace),
			HitRate:       s.HitRate,
			AvgMissCostMS: s.AvgMissCostMS,
			Suggestion:    "increase TTL or pre-warm this namespace",
		})
	}
	return out
}

func summarize(stage string, samples []float64) Summary {
	s := Summary{Stage: stage, Count: len(samples)}
	if len(samples) == 0 {
		return s
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	s.AvgMS = sum / float64(len(sorted))
	s.MinMS = sorted[0]
	s.MaxMS = sorted[len(sorted)-1]
	s.P50MS = percentile(sorted, 0.50)
	s.P95MS = percentile(sorted, 0.95)
	s.P99MS = percentile(sorted, 0.99)
	return s
}

// percentile uses the nearest-rank method on a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
