package vector

import (
	"context"

	"github.com/mailscope/mailscope/internal/domain/search/filter"
	"github.com/mailscope/mailscope/internal/domain/search/match"
)

// Searcher defines the storage contract for per-collection searches.
type Searcher interface {
	SearchKNN(
		ctx context.Context, collection string,
		vector []float32, filters filter.Filters, topK int,
	) ([]match.Match, error)

	SearchFilter(
		ctx context.Context, collection string,
		filters filter.Filters, limit int,
	) ([]match.Match, error)
}

// Collection describes one searchable collection: its score weight and
// the routing keywords used by the auto strategy.
type Collection struct {
	Name     string
	Weight   float64
	Keywords []string
}
