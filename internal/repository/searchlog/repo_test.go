package searchlog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type mockStore struct {
	key  string
	data []byte
	ttl  time.Duration
	err  error
}

func (m *mockStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.key = key
	m.data = value
	m.ttl = ttl
	return m.err
}

func TestRecord_WritesKeyedEntry(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, time.Hour)

	err := repo.Record(context.Background(), Entry{
		RequestID:   "req-1",
		Query:       "budget emails",
		Mode:        "hybrid",
		Collections: []string{"emails"},
		ResultCount: 5,
		ElapsedMS:   120,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.key != "mailscope:searchlog:req-1" {
		t.Errorf("unexpected key: %s", ms.key)
	}
	if ms.ttl != time.Hour {
		t.Errorf("unexpected ttl: %v", ms.ttl)
	}

	var got Entry
	if err := json.Unmarshal(ms.data, &got); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if got.Query != "budget emails" || got.ResultCount != 5 {
		t.Errorf("unexpected entry: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected timestamp to be filled")
	}
}

func TestRecord_RequiresRequestID(t *testing.T) {
	repo := New(&mockStore{}, 0)

	if err := repo.Record(context.Background(), Entry{Query: "q"}); err == nil {
		t.Fatal("expected error for missing request id")
	}
}

func TestRecord_StoreError(t *testing.T) {
	ms := &mockStore{err: errors.New("connection refused")}
	repo := New(ms, 0)

	err := repo.Record(context.Background(), Entry{RequestID: "req-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if ms.ttl != defaultTTL {
		t.Errorf("expected default ttl, got %v", ms.ttl)
	}
}
