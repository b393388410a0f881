// Package vector fans a query out across collections, then normalizes,
// deduplicates and thresholds the pooled matches into a single ranking.
package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mailscope/mailscope/internal/domain"
	"github.com/mailscope/mailscope/internal/domain/search/filter"
	"github.com/mailscope/mailscope/internal/domain/search/match"
	"github.com/mailscope/mailscope/internal/domain/search/mode"
	"github.com/mailscope/mailscope/internal/domain/search/query"
	"github.com/mailscope/mailscope/internal/logger"
	"github.com/mailscope/mailscope/internal/metrics"
)

// Config holds the engine settings.
type Config struct {
	Collections       []Collection
	DefaultCollection string
	CallTimeout       time.Duration
}

// Result is the outcome of one multi-collection search. Failed reports
// collections whose backend call failed; the ranking covers the rest.
type Result struct {
	Matches     []match.Match
	Collections []string
	Failed      map[string]error
}

// Degraded reports whether any selected collection failed.
func (r Result) Degraded() bool { return len(r.Failed) > 0 }

// Engine runs parallel vector searches.
type Engine struct {
	searcher Searcher
	cfg      Config
}

// New creates a search engine.
func New(searcher Searcher, cfg Config) *Engine {
	if cfg.DefaultCollection == "" {
		cfg.DefaultCollection = "emails"
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	return &Engine{searcher: searcher, cfg: cfg}
}

// Search fans out across the selected collections. A nil vector runs the
// filter-only path. Partial failures degrade the result; only when every
// collection fails is domain.ErrSearchBackend returned.
func (e *Engine) Search(ctx context.Context, q query.Query, processed query.Processed, vector []float32) (Result, error) {
	collections := e.selectCollections(q, processed)

	// fetch more than the final limit so dedup and thresholding still
	// leave enough candidates
	perCollection := q.Limit() * 2
	if perCollection < q.Limit() {
		perCollection = q.Limit()
	}

	var (
		mu      sync.Mutex
		byColl  = make(map[string][]match.Match, len(collections))
		failed  = make(map[string]error)
		filters = q.Filters()
	)
	// Pure vector search ranks by similarity alone. Structured filters only
	// apply in hybrid and filter_only modes.
	if q.Mode() == mode.VectorOnly {
		filters = filter.Filters{}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, coll := range collections {
		coll := coll
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, e.cfg.CallTimeout)
			defer cancel()

			var (
				matches []match.Match
				err     error
			)
			if q.Mode() == mode.FilterOnly || vector == nil {
				matches, err = e.searcher.SearchFilter(callCtx, coll, filters, perCollection)
			} else {
				matches, err = e.searcher.SearchKNN(callCtx, coll, vector, filters, perCollection)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[coll] = err
				metrics.SearchCollectionErrors.WithLabelValues(coll).Inc()
				logger.FromContext(ctx).Warn("Collection search failed",
					zap.String("collection", coll), zap.Error(err))
				return nil
			}
			byColl[coll] = matches
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) == len(collections) {
		errs := make([]error, 0, len(failed))
		for _, coll := range collections {
			if err, ok := failed[coll]; ok {
				errs = append(errs, fmt.Errorf("%s: %w", coll, err))
			}
		}
		return Result{Collections: collections, Failed: failed},
			fmt.Errorf("all collections failed: %w: %w", errors.Join(errs...), domain.ErrSearchBackend)
	}

	// pool in selection order so goroutine completion order cannot
	// influence the final ranking
	// Min-max scaling reconciles score ranges across collections. With a
	// single collection there is nothing to reconcile, and scaling would
	// pin the lowest match to zero, so raw scores pass through clamped.
	multi := len(collections) > 1
	pooled := make([]match.Match, 0)
	for _, coll := range collections {
		matches := byColl[coll]
		applyWeight(matches, e.weightFor(coll))
		if multi {
			normalize(matches)
		} else {
			passthrough(matches)
		}
		pooled = append(pooled, matches...)
	}

	ranked := rank(pooled, q.ScoreThreshold(), q.Limit())

	return Result{Matches: ranked, Collections: collections, Failed: failed}, nil
}

func (e *Engine) weightFor(collection string) float64 {
	for _, c := range e.cfg.Collections {
		if c.Name == collection {
			if c.Weight > 0 {
				return c.Weight
			}
			break
		}
	}
	return 1.0
}
