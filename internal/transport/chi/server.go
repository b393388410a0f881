// Package chi exposes the search pipeline over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/domain"
	"github.com/mailscope/mailscope/internal/domain/search/filter"
	"github.com/mailscope/mailscope/internal/domain/search/mode"
	"github.com/mailscope/mailscope/internal/domain/search/query"
	"github.com/mailscope/mailscope/internal/domain/search/result"
	healthuc "github.com/mailscope/mailscope/internal/usecase/health"
	"github.com/mailscope/mailscope/internal/usecase/monitor"
	"github.com/mailscope/mailscope/internal/version"
)

// Error codes returned in JSON error responses.
const (
	codeBadRequest         = "bad_request"
	codeInvalidQuery       = "invalid_query"
	codeRateLimited        = "rate_limited"
	codeEmbeddingFailed    = "embedding_failed"
	codeBackendUnavailable = "search_backend_unavailable"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Searcher runs one validated search request.
type Searcher interface {
	Search(ctx context.Context, q query.Query) (result.Response, error)
}

// HealthChecker reports dependency status.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// MetricsReader exposes the performance monitor's aggregates.
type MetricsReader interface {
	Summaries() []monitor.Summary
	Bottlenecks() []monitor.Bottleneck
	CacheSuggestions() []monitor.CacheSuggestion
}

// Server handles the HTTP API.
type Server struct {
	search        Searcher
	health        HealthChecker
	perf          MetricsReader
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search Searcher, health HealthChecker, perf MetricsReader, logger *zap.Logger) *Server {
	s := &Server{
		search: search,
		health: health,
		perf:   perf,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrEmbeddingRateLimited, http.StatusBadGateway, codeEmbeddingFailed),
		sentinelHandler(domain.ErrEmbeddingTimeout, http.StatusBadGateway, codeEmbeddingFailed),
		sentinelHandler(domain.ErrEmbeddingInvalid, http.StatusBadGateway, codeEmbeddingFailed),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, codeEmbeddingFailed),
		sentinelHandler(domain.ErrSearchBackend, http.StatusServiceUnavailable, codeBackendUnavailable),
	}
	return s
}

// Router builds the route table. Cross-cutting middleware is attached by
// the caller.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.Search)
		r.Route("/metrics", func(r chi.Router) {
			r.Get("/summary", s.MetricsSummary)
			r.Get("/bottlenecks", s.MetricsBottlenecks)
			r.Get("/cache-suggestions", s.MetricsCacheSuggestions)
		})
	})
	return r
}

// searchRequest is the POST /v1/search body.
type searchRequest struct {
	Query          string         `json:"query"`
	Mode           string         `json:"mode,omitempty"`
	Strategy       string         `json:"collection_strategy,omitempty"`
	Collections    []string       `json:"collections,omitempty"`
	Filters        *searchFilters `json:"filters,omitempty"`
	Limit          int            `json:"limit,omitempty"`
	ScoreThreshold *float64       `json:"score_threshold,omitempty"`
}

type searchFilters struct {
	DateRange       *dateRange `json:"date_range,omitempty"`
	Sender          string     `json:"sender,omitempty"`
	Recipients      []string   `json:"recipients,omitempty"`
	SubjectKeywords []string   `json:"subject_keywords,omitempty"`
	HasAttachments  *bool      `json:"has_attachments,omitempty"`
	ThreadID        string     `json:"thread_id,omitempty"`
}

type dateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	q, err := queryFromRequest(req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp, err := s.search.Search(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func queryFromRequest(req searchRequest) (query.Query, error) {
	filters, err := filtersFromRequest(req.Filters)
	if err != nil {
		return query.Query{}, err
	}

	threshold := query.DefaultScoreThreshold
	if req.ScoreThreshold != nil {
		threshold = *req.ScoreThreshold
	}

	return query.New(
		req.Query,
		mode.Mode(req.Mode),
		mode.Strategy(req.Strategy),
		req.Collections,
		filters,
		req.Limit,
		threshold,
	)
}

func filtersFromRequest(f *searchFilters) (filter.Filters, error) {
	if f == nil {
		return filter.Filters{}, nil
	}

	out := filter.Filters{
		Sender:          f.Sender,
		Recipients:      f.Recipients,
		SubjectKeywords: f.SubjectKeywords,
		HasAttachments:  f.HasAttachments,
		ThreadID:        f.ThreadID,
	}

	if f.DateRange != nil {
		var dr filter.DateRange
		if f.DateRange.Start != "" {
			start, err := time.Parse(time.RFC3339, f.DateRange.Start)
			if err != nil {
				return filter.Filters{}, fmt.Errorf("%w: invalid date range start: %w", domain.ErrInvalidQuery, err)
			}
			dr.Start = start
		}
		if f.DateRange.End != "" {
			end, err := time.Parse(time.RFC3339, f.DateRange.End)
			if err != nil {
				return filter.Filters{}, fmt.Errorf("%w: invalid date range end: %w", domain.ErrInvalidQuery, err)
			}
			dr.End = end
		}
		out.DateRange = &dr
	}

	return out, nil
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":          report.Status,
		"checks":          report.Checks,
		"avg_response_ms": report.AvgResponseMS,
		"version":         version.Version,
	})
}

// MetricsSummary handles GET /v1/metrics/summary.
func (s *Server) MetricsSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"stages": s.perf.Summaries()})
}

// MetricsBottlenecks handles GET /v1/metrics/bottlenecks.
func (s *Server) MetricsBottlenecks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"bottlenecks": s.perf.Bottlenecks()})
}

// MetricsCacheSuggestions handles GET /v1/metrics/cache-suggestions.
func (s *Server) MetricsCacheSuggestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": s.perf.CacheSuggestions()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrRateLimited,
		domain.ErrEmbeddingRateLimited,
		domain.ErrEmbeddingTimeout,
		domain.ErrEmbeddingInvalid,
		domain.ErrEmbeddingProvider,
		domain.ErrSearchBackend,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
