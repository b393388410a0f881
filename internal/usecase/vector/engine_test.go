package vector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mailscope/mailscope/internal/domain"
	"github.com/mailscope/mailscope/internal/domain/search/filter"
	"github.com/mailscope/mailscope/internal/domain/search/match"
	"github.com/mailscope/mailscope/internal/domain/search/mode"
	"github.com/mailscope/mailscope/internal/domain/search/query"
)

// mockSearcher serves canned per-collection matches and errors.
type mockSearcher struct {
	knn    map[string][]match.Match
	errs   map[string]error
	filter map[string][]match.Match

	mu          sync.Mutex
	lastFilters filter.Filters
}

func (m *mockSearcher) SearchKNN(_ context.Context, collection string, _ []float32, f filter.Filters, _ int) ([]match.Match, error) {
	m.mu.Lock()
	m.lastFilters = f
	m.mu.Unlock()
	if err, ok := m.errs[collection]; ok {
		return nil, err
	}
	return m.knn[collection], nil
}

func (m *mockSearcher) SearchFilter(_ context.Context, collection string, _ filter.Filters, _ int) ([]match.Match, error) {
	if err, ok := m.errs[collection]; ok {
		return nil, err
	}
	return m.filter[collection], nil
}

func testConfig() Config {
	return Config{
		DefaultCollection: "emails",
		CallTimeout:       time.Second,
		Collections: []Collection{
			{Name: "emails", Weight: 1.0, Keywords: []string{"email", "inbox"}},
			{Name: "documents", Weight: 0.9, Keywords: []string{"document", "contract", "report"}},
			{Name: "messages", Weight: 0.8, Keywords: []string{"chat", "message"}},
		},
	}
}

func mustQuery(t *testing.T, m mode.Mode, strategy mode.Strategy, collections []string, limit int, threshold float64) query.Query {
	t.Helper()
	q, err := query.New("test query", m, strategy, collections, filter.Filters{}, limit, threshold)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return q
}

func mk(docID, collection string, score float64) match.Match {
	return match.Match{DocID: docID, Collection: collection, Score: score}
}

func vectorOf(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = 0.5
	}
	return v
}

func TestSearch_SingleCollection(t *testing.T) {
	ms := &mockSearcher{knn: map[string][]match.Match{
		"emails": {mk("a", "emails", 0.9), mk("b", "emails", 0.5)},
	}}
	e := New(ms, testConfig())
	q := mustQuery(t, mode.Hybrid, mode.StrategySingle, nil, 10, 0)

	res, err := e.Search(context.Background(), q, query.Processed{}, vectorOf(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Collections) != 1 || res.Collections[0] != "emails" {
		t.Errorf("expected default collection, got %v", res.Collections)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(res.Matches))
	}
	if res.Matches[0].DocID != "a" {
		t.Errorf("expected highest score first, got %s", res.Matches[0].DocID)
	}
	if res.Degraded() {
		t.Error("no failures expected")
	}
}

func TestSearch_DeterministicAcrossCompletionOrder(t *testing.T) {
	ms := &mockSearcher{knn: map[string][]match.Match{
		"emails":    {mk("e1", "emails", 0.9), mk("e2", "emails", 0.2)},
		"documents": {mk("d1", "documents", 0.8), mk("d2", "documents", 0.3)},
		"messages":  {mk("m1", "messages", 0.7)},
	}}
	e := New(ms, testConfig())
	q := mustQuery(t, mode.Hybrid, mode.StrategyMultiple, []string{"emails", "documents", "messages"}, 10, 0)

	var first []string
	for run := 0; run < 20; run++ {
		res, err := e.Search(context.Background(), q, query.Processed{}, vectorOf(4))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids := make([]string, len(res.Matches))
		for i, m := range res.Matches {
			ids[i] = m.DocID
		}
		if run == 0 {
			first = ids
			continue
		}
		if len(ids) != len(first) {
			t.Fatalf("run %d: ranking length changed: %v vs %v", run, ids, first)
		}
		for i := range ids {
			if ids[i] != first[i] {
				t.Fatalf("run %d: ranking order changed: %v vs %v", run, ids, first)
			}
		}
	}
}

func TestSearch_DedupKeepsHighest(t *testing.T) {
	ms := &mockSearcher{knn: map[string][]match.Match{
		// same document indexed in two collections; anchor scores keep
		// both collections on the same 0.1..1.0 scale after normalization
		"emails":    {mk("shared", "emails", 0.6), mk("e-lo", "emails", 0.1), mk("e-hi", "emails", 1.0)},
		"documents": {mk("shared", "documents", 0.9), mk("d-lo", "documents", 0.1), mk("d-hi", "documents", 1.0)},
	}}
	cfg := testConfig()
	cfg.Collections = []Collection{
		{Name: "emails", Weight: 1.0},
		{Name: "documents", Weight: 1.0},
	}
	e := New(ms, cfg)
	q := mustQuery(t, mode.Hybrid, mode.StrategyMultiple, []string{"emails", "documents"}, 10, 0)

	res, err := e.Search(context.Background(), q, query.Processed{}, vectorOf(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var shared int
	for _, m := range res.Matches {
		if m.DocID == "shared" {
			shared++
			if m.Collection != "documents" {
				t.Errorf("dedup should keep the higher-scoring copy, got %s", m.Collection)
			}
		}
	}
	if shared != 1 {
		t.Errorf("expected exactly one copy of shared doc, got %d", shared)
	}
}

func TestSearch_PartialFailureDegrades(t *testing.T) {
	ms := &mockSearcher{
		knn:  map[string][]match.Match{"emails": {mk("a", "emails", 0.9)}},
		errs: map[string]error{"documents": errors.New("index gone")},
	}
	e := New(ms, testConfig())
	q := mustQuery(t, mode.Hybrid, mode.StrategyMultiple, []string{"emails", "documents"}, 10, 0)

	res, err := e.Search(context.Background(), q, query.Processed{}, vectorOf(4))
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}
	if !res.Degraded() {
		t.Error("expected degraded result")
	}
	if len(res.Matches) != 1 {
		t.Errorf("expected surviving collection's matches, got %d", len(res.Matches))
	}
	if _, ok := res.Failed["documents"]; !ok {
		t.Error("expected documents in failed set")
	}
}

func TestSearch_TotalFailure(t *testing.T) {
	ms := &mockSearcher{errs: map[string]error{
		"emails":    errors.New("down"),
		"documents": errors.New("down"),
	}}
	e := New(ms, testConfig())
	q := mustQuery(t, mode.Hybrid, mode.StrategyMultiple, []string{"emails", "documents"}, 10, 0)

	_, err := e.Search(context.Background(), q, query.Processed{}, vectorOf(4))
	if !errors.Is(err, domain.ErrSearchBackend) {
		t.Fatalf("expected ErrSearchBackend, got %v", err)
	}
}

func TestSearch_ThresholdFilters(t *testing.T) {
	ms := &mockSearcher{knn: map[string][]match.Match{
		"emails": {
			mk("a", "emails", 1.0),
			mk("b", "emails", 0.75),
			mk("c", "emails", 0.2),
		},
	}}
	e := New(ms, testConfig())
	// single collection, so raw scores pass through: a and b clear 0.5, c drops
	q := mustQuery(t, mode.Hybrid, mode.StrategySingle, []string{"emails"}, 10, 0.5)

	res, err := e.Search(context.Background(), q, query.Processed{}, vectorOf(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("expected 2 matches above threshold, got %d", len(res.Matches))
	}
	for _, m := range res.Matches {
		if m.Normalized < 0.5 {
			t.Errorf("match %s below threshold: %f", m.DocID, m.Normalized)
		}
	}
}

func TestSearch_SingleCollectionKeepsRawScores(t *testing.T) {
	ms := &mockSearcher{knn: map[string][]match.Match{
		"emails": {
			mk("a", "emails", 0.95),
			mk("b", "emails", 0.90),
			mk("c", "emails", 0.80),
		},
	}}
	e := New(ms, testConfig())
	q := mustQuery(t, mode.Hybrid, mode.StrategySingle, []string{"emails"}, 10, 0.7)

	res, err := e.Search(context.Background(), q, query.Processed{}, vectorOf(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// min-max scaling here would pin c to 0 and discard it; a lone
	// collection keeps raw scores, so all three clear the threshold
	if len(res.Matches) != 3 {
		t.Fatalf("expected 3 matches above threshold, got %d", len(res.Matches))
	}
	want := []float64{0.95, 0.90, 0.80}
	for i, m := range res.Matches {
		if m.Normalized != want[i] {
			t.Errorf("match %s: expected raw score %f, got %f", m.DocID, want[i], m.Normalized)
		}
	}
}

func TestSearch_VectorOnlyDropsFilters(t *testing.T) {
	ms := &mockSearcher{knn: map[string][]match.Match{
		"emails": {mk("a", "emails", 0.9)},
	}}
	e := New(ms, testConfig())

	f := filter.Filters{Sender: "alice@example.com"}
	q, err := query.New("from alice", mode.VectorOnly, mode.StrategySingle, []string{"emails"}, f, 10, 0)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}

	if _, err := e.Search(context.Background(), q, query.Processed{}, vectorOf(4)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ms.lastFilters.IsEmpty() {
		t.Errorf("pure vector search must not attach structured filters, got %+v", ms.lastFilters)
	}
}

func TestSearch_HybridKeepsFilters(t *testing.T) {
	ms := &mockSearcher{knn: map[string][]match.Match{
		"emails": {mk("a", "emails", 0.9)},
	}}
	e := New(ms, testConfig())

	f := filter.Filters{Sender: "alice@example.com"}
	q, err := query.New("from alice", mode.Hybrid, mode.StrategySingle, []string{"emails"}, f, 10, 0)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}

	if _, err := e.Search(context.Background(), q, query.Processed{}, vectorOf(4)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.lastFilters.Sender != "alice@example.com" {
		t.Errorf("hybrid search should attach filters, got %+v", ms.lastFilters)
	}
}

func TestSearch_LimitTruncates(t *testing.T) {
	matches := make([]match.Match, 30)
	for i := range matches {
		matches[i] = mk(string(rune('a'+i)), "emails", float64(30-i))
	}
	ms := &mockSearcher{knn: map[string][]match.Match{"emails": matches}}
	e := New(ms, testConfig())
	q := mustQuery(t, mode.Hybrid, mode.StrategySingle, []string{"emails"}, 5, 0)

	res, err := e.Search(context.Background(), q, query.Processed{}, vectorOf(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Matches) != 5 {
		t.Errorf("expected 5 matches, got %d", len(res.Matches))
	}
}

func TestSearch_FilterOnlyPath(t *testing.T) {
	ms := &mockSearcher{filter: map[string][]match.Match{
		"emails": {mk("a", "emails", 1.0), mk("b", "emails", 1.0)},
	}}
	e := New(ms, testConfig())
	q := mustQuery(t, mode.FilterOnly, mode.StrategySingle, []string{"emails"}, 10, 0.7)

	res, err := e.Search(context.Background(), q, query.Processed{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// uniform scores pass through clamped, staying above the threshold
	if len(res.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(res.Matches))
	}
	for _, m := range res.Matches {
		if m.Normalized != 1.0 {
			t.Errorf("expected passthrough score 1.0, got %f", m.Normalized)
		}
	}
}

// --- selection ---

func TestSelect_AutoRoutesByKeywords(t *testing.T) {
	e := New(&mockSearcher{}, testConfig())
	q := mustQuery(t, mode.Hybrid, mode.StrategyAuto, nil, 10, 0)

	processed := query.Processed{
		Normalized: "contract renewal details",
		Keywords:   []string{"contract", "renewal"},
	}
	got := e.selectCollections(q, processed)
	if len(got) != 1 || got[0] != "documents" {
		t.Errorf("expected routing to documents, got %v", got)
	}
}

func TestSelect_AutoFallsBackToAll(t *testing.T) {
	e := New(&mockSearcher{}, testConfig())
	q := mustQuery(t, mode.Hybrid, mode.StrategyAuto, nil, 10, 0)

	processed := query.Processed{Normalized: "completely unrelated", Keywords: []string{"unrelated"}}
	got := e.selectCollections(q, processed)
	if len(got) != 3 {
		t.Errorf("expected all collections, got %v", got)
	}
}

func TestSelect_MultipleWithoutListUsesDefault(t *testing.T) {
	e := New(&mockSearcher{}, testConfig())
	q := mustQuery(t, mode.Hybrid, mode.StrategyMultiple, nil, 10, 0)

	got := e.selectCollections(q, query.Processed{})
	if len(got) != 1 || got[0] != "emails" {
		t.Errorf("expected default collection fallback, got %v", got)
	}
}

func TestSelect_NeverEmpty(t *testing.T) {
	e := New(&mockSearcher{}, Config{DefaultCollection: "emails"})
	q := mustQuery(t, mode.Hybrid, mode.StrategySingle, nil, 10, 0)

	got := e.selectCollections(q, query.Processed{})
	if len(got) != 1 || got[0] != "emails" {
		t.Errorf("expected default fallback, got %v", got)
	}
}

// --- normalization ---

func TestNormalize_MinMax(t *testing.T) {
	matches := []match.Match{
		mk("a", "emails", 0.2),
		mk("b", "emails", 0.6),
		mk("c", "emails", 1.0),
	}
	normalize(matches)
	if matches[0].Normalized != 0 || matches[2].Normalized != 1 {
		t.Errorf("expected endpoints 0 and 1, got %f and %f", matches[0].Normalized, matches[2].Normalized)
	}
	if matches[1].Normalized < 0.49 || matches[1].Normalized > 0.51 {
		t.Errorf("expected midpoint ~0.5, got %f", matches[1].Normalized)
	}
}

func TestNormalize_ZeroVariancePassthrough(t *testing.T) {
	matches := []match.Match{
		mk("a", "emails", 0.8),
		mk("b", "emails", 0.8),
	}
	normalize(matches)
	for _, m := range matches {
		if m.Normalized != 0.8 {
			t.Errorf("expected passthrough 0.8, got %f", m.Normalized)
		}
	}

	over := []match.Match{mk("x", "emails", 1.4)}
	normalize(over)
	if over[0].Normalized != 1.0 {
		t.Errorf("expected clamp to 1.0, got %f", over[0].Normalized)
	}
}
