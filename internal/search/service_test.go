package search

import (
	"errors"
	"testing"
)

type stubBackend struct {
	results []Result
	total   int
	err     error
}

func (s *stubBackend) Search(Query) ([]Result, int, error) {
	return s.results, s.total, s.err
}

func (s *stubBackend) Healthy() bool { return true }

func TestRunQueryKeepsBackendTotal(t *testing.T) {
	backend := &stubBackend{
		results: []Result{
			{Type: ResultKnowledge, ID: "ki_1", Title: "Alpha"},
			{Type: ResultKnowledge, ID: "ki_2", Title: "Beta"},
		},
		total: 7,
	}

	hits, err := runQuery(backend, Query{Text: "a", Limit: 2})
	if err != nil {
		t.Fatalf("runQuery: %v", err)
	}
	if len(hits.results) != 2 {
		t.Fatalf("got %d results, want 2", len(hits.results))
	}
	// The total is the backend's match count, not the page size.
	if hits.total != 7 {
		t.Fatalf("total = %d, want 7", hits.total)
	}
}

func TestRunQueryReturnsBackendError(t *testing.T) {
	backend := &stubBackend{err: errors.New("backend down")}
	if _, err := runQuery(backend, Query{Text: "a"}); err == nil {
		t.Fatal("expected error from backend")
	}
}
