// Package client is a thin Go client for the mailscope HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client calls the mailscope HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mailscope: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// DateRange bounds a search by document date. Zero boundaries stay open.
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Filters narrows a search with structured conditions.
type Filters struct {
	DateRange       *DateRange `json:"date_range,omitempty"`
	Sender          string     `json:"sender,omitempty"`
	Recipients      []string   `json:"recipients,omitempty"`
	SubjectKeywords []string   `json:"subject_keywords,omitempty"`
	HasAttachments  *bool      `json:"has_attachments,omitempty"`
	ThreadID        string     `json:"thread_id,omitempty"`
}

// SearchRequest is the POST /v1/search body.
type SearchRequest struct {
	Query          string   `json:"query"`
	Mode           string   `json:"mode,omitempty"`
	Strategy       string   `json:"collection_strategy,omitempty"`
	Collections    []string `json:"collections,omitempty"`
	Filters        *Filters `json:"filters,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
}

// Span is a highlighted byte range within a snippet.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Result is one search hit.
type Result struct {
	DocID            string   `json:"doc_id"`
	Title            string   `json:"title"`
	Snippet          string   `json:"snippet"`
	Highlights       []Span   `json:"highlights,omitempty"`
	Score            float64  `json:"score"`
	Relevance        float64  `json:"relevance"`
	SourceCollection string   `json:"source_collection"`
	Sender           string   `json:"sender,omitempty"`
	Recipients       []string `json:"recipients,omitempty"`
	Date             string   `json:"date,omitempty"`
	HasAttachments   bool     `json:"has_attachments,omitempty"`
	ThreadID         string   `json:"thread_id,omitempty"`
	Degraded         bool     `json:"degraded,omitempty"`
}

// SearchResponse is the answer to one search request.
type SearchResponse struct {
	Query       string   `json:"query"`
	Results     []Result `json:"results"`
	TotalCount  int      `json:"total_count"`
	ElapsedMS   int64    `json:"elapsed_ms"`
	RequestID   string   `json:"request_id"`
	Mode        string   `json:"mode"`
	Collections []string `json:"collections_searched"`
	Degraded    bool     `json:"degraded,omitempty"`
	CacheHit    bool     `json:"cache_hit,omitempty"`
}

// HealthStatus is the GET /healthz response.
type HealthStatus struct {
	Status        string            `json:"status"`
	Checks        map[string]string `json:"checks"`
	AvgResponseMS float64           `json:"avg_response_ms"`
	Version       string            `json:"version"`
}

// StageSummary aggregates one pipeline stage's latency samples.
type StageSummary struct {
	Stage string  `json:"stage"`
	Count int     `json:"count"`
	AvgMS float64 `json:"avg_ms"`
	MinMS float64 `json:"min_ms"`
	MaxMS float64 `json:"max_ms"`
	P50MS float64 `json:"p50_ms"`
	P95MS float64 `json:"p95_ms"`
	P99MS float64 `json:"p99_ms"`
}

// Search runs one search request.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	var resp SearchResponse
	if err := c.post(ctx, "/v1/search", req, &resp); err != nil {
		return SearchResponse{}, err
	}
	return resp, nil
}

// Health fetches the server health report. A degraded server answers with
// 503 and a body; that still decodes into the returned status.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return HealthStatus{}, err
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("mailscope: health request: %w", err)
	}
	defer res.Body.Close()

	var status HealthStatus
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		return HealthStatus{}, fmt.Errorf("mailscope: decode health response: %w", err)
	}
	return status, nil
}

// MetricsSummary fetches per-stage latency aggregates.
func (c *Client) MetricsSummary(ctx context.Context) ([]StageSummary, error) {
	var body struct {
		Stages []StageSummary `json:"stages"`
	}
	if err := c.get(ctx, "/v1/metrics/summary", &body); err != nil {
		return nil, err
	}
	return body.Stages, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("mailscope: encode request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("mailscope: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mailscope: request %s: %w", req.URL.Path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &APIError{StatusCode: res.StatusCode}
		if err := json.NewDecoder(res.Body).Decode(apiErr); err != nil {
			apiErr.Code = "unknown"
			apiErr.Message = res.Status
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("mailscope: decode response: %w", err)
	}
	return nil
}
