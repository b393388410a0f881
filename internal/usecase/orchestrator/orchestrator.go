// Package orchestrator drives the search pipeline: process, embed, search,
// enrich, log. Stage failures degrade the response where the remaining
// stages can still produce something useful.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/cache"
	"github.com/mailscope/mailscope/internal/domain"
	"github.com/mailscope/mailscope/internal/domain/search/filter"
	"github.com/mailscope/mailscope/internal/domain/search/mode"
	"github.com/mailscope/mailscope/internal/domain/search/query"
	"github.com/mailscope/mailscope/internal/domain/search/result"
	"github.com/mailscope/mailscope/internal/logger"
	"github.com/mailscope/mailscope/internal/metrics"
	"github.com/mailscope/mailscope/internal/repository/searchlog"
)

// Pipeline stage names used for latency accounting.
const (
	StageProcess = "process"
	StageEmbed   = "embed"
	StageSearch  = "search"
	StageEnrich  = "enrich"
	StageTotal   = "total"
)

// emaAlpha weights the newest sample in the rolling response-time average.
const emaAlpha = 0.1

// Service coordinates one search request end to end.
type Service struct {
	processor Processor
	embedder  domain.Embedder
	engine    Engine
	enricher  Enricher
	logs      LogSink
	stages    StageRecorder
	cache     *cache.Cache

	mu    sync.Mutex
	ema   float64
	total int64
}

// New creates an orchestrator. logs, stages and c can be nil; the
// corresponding concerns are then skipped.
func New(
	processor Processor,
	embedder domain.Embedder,
	engine Engine,
	enricher Enricher,
	logs LogSink,
	stages StageRecorder,
	c *cache.Cache,
) *Service {
	return &Service{
		processor: processor,
		embedder:  embedder,
		engine:    engine,
		enricher:  enricher,
		logs:      logs,
		stages:    stages,
		cache:     c,
	}
}

// Search runs the full pipeline for one validated query.
func (s *Service) Search(ctx context.Context, q query.Query) (result.Response, error) {
	start := time.Now()
	requestID := uuid.NewString()
	log := logger.FromContext(ctx).With(zap.String("search_request_id", requestID))

	resp, err := s.search(ctx, q, requestID, start, log)

	elapsed := time.Since(start)
	s.record(StageTotal, elapsed)
	s.observeResponseTime(elapsed)

	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case resp.Degraded:
		status = "degraded"
	}
	metrics.SearchRequestsTotal.WithLabelValues(string(q.Mode()), status).Inc()
	metrics.SearchRequestDuration.WithLabelValues(string(q.Mode())).Observe(elapsed.Seconds())
	if err == nil {
		metrics.SearchResultsReturned.WithLabelValues(string(q.Mode())).Observe(float64(len(resp.Results)))
	}

	if err != nil {
		return result.Response{}, err
	}

	resp.ElapsedMS = elapsed.Milliseconds()
	s.logSearch(ctx, q, resp, log)
	return resp, nil
}

func (s *Service) search(
	ctx context.Context, q query.Query, requestID string, start time.Time, log *zap.Logger,
) (result.Response, error) {
	// process
	stageStart := time.Now()
	processed, err := s.processor.Process(ctx, q.Text())
	s.record(StageProcess, time.Since(stageStart))
	if err != nil {
		return result.Response{}, fmt.Errorf("process query: %w", err)
	}

	merged, err := s.mergeFilters(q, processed)
	if err != nil {
		return result.Response{}, err
	}
	processed.Filters = merged.Filters()

	cacheKey := resultCacheKey(merged, processed)
	if cached, ok := s.cachedResponse(ctx, cacheKey); ok {
		cached.RequestID = requestID
		cached.CacheHit = true
		cached.ElapsedMS = time.Since(start).Milliseconds()
		log.Debug("Search served from result cache")
		return cached, nil
	}

	// embed
	var (
		vec      []float32
		degraded bool
	)
	if merged.Mode().NeedsEmbedding() {
		stageStart = time.Now()
		embRes, embErr := s.embedder.Embed(ctx, processed.Normalized)
		s.record(StageEmbed, time.Since(stageStart))
		switch {
		case embErr == nil:
			vec = embRes.Embedding
		case merged.Mode() == mode.VectorOnly:
			return result.Response{}, fmt.Errorf("embed query: %w", embErr)
		default:
			// hybrid falls back to the filter predicate alone
			degraded = true
			log.Warn("Embedding failed, degrading to filter-only search", zap.Error(embErr))
		}
	}

	// search
	stageStart = time.Now()
	searchRes, err := s.engine.Search(ctx, merged, processed, vec)
	s.record(StageSearch, time.Since(stageStart))
	if err != nil {
		return result.Response{}, fmt.Errorf("vector search: %w", err)
	}

	// enrich
	stageStart = time.Now()
	results := s.enricher.Enrich(ctx, searchRes.Matches, processed)
	s.record(StageEnrich, time.Since(stageStart))

	for _, r := range results {
		if r.Degraded {
			degraded = true
			break
		}
	}

	resp := result.Response{
		Query:       q.Text(),
		Results:     results,
		TotalCount:  len(results),
		RequestID:   requestID,
		Mode:        q.Mode(),
		Collections: searchRes.Collections,
		Degraded:    degraded || searchRes.Degraded(),
	}

	if s.cache != nil && !resp.Degraded {
		s.cache.SetJSON(ctx, cache.NSResults, cacheKey, resp)
	}
	return resp, nil
}

// mergeFilters folds filters extracted from the query text into the
// caller's explicit filters; explicit values win.
func (s *Service) mergeFilters(q query.Query, processed query.Processed) (query.Query, error) {
	merged := filter.Merge(q.Filters(), processed.Filters)
	out, err := query.New(
		q.Text(), q.Mode(), q.Strategy(), q.Collections(), merged, q.Limit(), q.ScoreThreshold(),
	)
	if err != nil {
		return query.Query{}, fmt.Errorf("merge filters: %w", err)
	}
	return out, nil
}

// resultCacheKey derives the response cache identity from everything that
// changes the ranking.
func resultCacheKey(q query.Query, processed query.Processed) string {
	identity := struct {
		Normalized  string         `json:"normalized"`
		Mode        mode.Mode      `json:"mode"`
		Strategy    mode.Strategy  `json:"strategy"`
		Collections []string       `json:"collections,omitempty"`
		Filters     filter.Filters `json:"filters"`
		Limit       int            `json:"limit"`
		Threshold   float64        `json:"threshold"`
	}{
		Normalized:  processed.Normalized,
		Mode:        q.Mode(),
		Strategy:    q.Strategy(),
		Collections: q.Collections(),
		Filters:     q.Filters(),
		Limit:       q.Limit(),
		Threshold:   q.ScoreThreshold(),
	}
	b, _ := json.Marshal(identity)
	return cache.Key(cache.NSResults, string(b))
}

func (s *Service) cachedResponse(ctx context.Context, key string) (result.Response, bool) {
	if s.cache == nil {
		return result.Response{}, false
	}
	var resp result.Response
	if !s.cache.GetJSON(ctx, cache.NSResults, key, &resp) {
		return result.Response{}, false
	}
	return resp, true
}

// logSearch writes the search log entry without blocking the response.
// The entry outlives the request, so the write detaches from cancellation.
func (s *Service) logSearch(ctx context.Context, q query.Query, resp result.Response, log *zap.Logger) {
	if s.logs == nil {
		return
	}
	entry := searchlog.Entry{
		RequestID:   resp.RequestID,
		Query:       q.Text(),
		Mode:        string(resp.Mode),
		Collections: resp.Collections,
		ResultCount: resp.TotalCount,
		ElapsedMS:   resp.ElapsedMS,
		CacheHit:    resp.CacheHit,
		Degraded:    resp.Degraded,
		Timestamp:   time.Now().UTC(),
	}
	go func() {
		logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.logs.Record(logCtx, entry); err != nil {
			log.Warn("Search log write failed", zap.Error(err))
		}
	}()
}

func (s *Service) record(stage string, d time.Duration) {
	if s.stages != nil {
		s.stages.Record(stage, d)
	}
}

func (s *Service) observeResponseTime(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if s.total == 1 {
		s.ema = ms
		return
	}
	s.ema = emaAlpha*ms + (1-emaAlpha)*s.ema
}

// AvgResponseMS reports the rolling average end-to-end latency.
func (s *Service) AvgResponseMS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ema
}

// TotalRequests reports how many searches this instance has served.
func (s *Service) TotalRequests() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}
