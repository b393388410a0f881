package vector

import (
	"sort"

	"github.com/mailscope/mailscope/internal/domain/search/match"
)

// applyWeight scales raw scores by the collection weight before
// normalization.
func applyWeight(matches []match.Match, weight float64) {
	if weight == 1.0 {
		return
	}
	for i := range matches {
		matches[i].Score *= weight
	}
}

// normalize min-max scales one collection's scores into [0,1]. When all
// scores are equal there is no spread to map, so scores pass through
// clamped instead of collapsing to a constant.
func normalize(matches []match.Match) {
	if len(matches) == 0 {
		return
	}

	lo, hi := matches[0].Score, matches[0].Score
	for _, m := range matches[1:] {
		if m.Score < lo {
			lo = m.Score
		}
		if m.Score > hi {
			hi = m.Score
		}
	}

	if hi == lo {
		for i := range matches {
			matches[i].Normalized = clamp01(matches[i].Score)
		}
		return
	}

	spread := hi - lo
	for i := range matches {
		matches[i].Normalized = (matches[i].Score - lo) / spread
	}
}

// passthrough carries raw scores into the normalized slot, clamped to
// [0,1]. Used for single-collection searches where min-max scaling has
// no cross-collection spread to reconcile.
func passthrough(matches []match.Match) {
	for i := range matches {
		matches[i].Normalized = clamp01(matches[i].Score)
	}
}

// rank pools normalized matches: deduplicate by document ID keeping the
// highest score (the same message can be indexed in several collections),
// order by score with recency as tie-break, drop matches below the
// threshold, and truncate to the limit.
func rank(pooled []match.Match, threshold float64, limit int) []match.Match {
	best := make(map[string]match.Match, len(pooled))
	order := make([]string, 0, len(pooled))
	for _, m := range pooled {
		key := m.DocID
		if prev, ok := best[key]; !ok {
			best[key] = m
			order = append(order, key)
		} else if m.Normalized > prev.Normalized {
			best[key] = m
		}
	}

	deduped := make([]match.Match, 0, len(best))
	for _, key := range order {
		m := best[key]
		if m.Normalized >= threshold {
			deduped = append(deduped, m)
		}
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		if deduped[i].Normalized != deduped[j].Normalized {
			return deduped[i].Normalized > deduped[j].Normalized
		}
		return deduped[i].Timestamp.After(deduped[j].Timestamp)
	})

	if len(deduped) > limit {
		deduped = deduped[:limit]
	}
	return deduped
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
