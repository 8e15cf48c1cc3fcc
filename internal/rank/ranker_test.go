package rank

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gchatrian/BLOOMBERG-RAG/internal/store"
)

type mockSearch struct {
	hits   []Hit
	err    error
	lastK  int
	lastQ  string
	called int
}

func (m *mockSearch) Search(_ context.Context, query string, k int) ([]Hit, error) {
	m.called++
	m.lastQ = query
	m.lastK = k
	if m.err != nil {
		return nil, m.err
	}
	if len(m.hits) > k {
		return m.hits[:k], nil
	}
	return m.hits, nil
}

type mockSource struct {
	docs map[string]store.Document
}

func (m *mockSource) GetDocuments(ids []string) ([]store.Document, error) {
	var out []store.Document
	for _, id := range ids {
		if doc, ok := m.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// distanceFor inverts the semantic normalization so tests can pin exact
// similarity scores.
func distanceFor(semantic float64) float64 {
	return 1/semantic - 1
}

func testRanker(search *mockSearch, source *mockSource, opts Options, now time.Time) *Ranker {
	r := NewRanker(search, source, opts)
	r.now = func() time.Time { return now }
	return r
}

func rankedDoc(id string, date time.Time) store.Document {
	return store.Document{ID: id, Subject: "Subject " + id, ArticleDate: date, ReceivedAt: date}
}

func TestRankRecencyOutweighsSimilarity(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	search := &mockSearch{hits: []Hit{
		{DocID: "older", Distance: distanceFor(0.95)},
		{DocID: "recent", Distance: distanceFor(0.89)},
	}}
	source := &mockSource{docs: map[string]store.Document{
		"recent": rankedDoc("recent", now.AddDate(0, 0, -10)),
		"older":  rankedDoc("older", now.AddDate(0, 0, -200)),
	}}
	r := testRanker(search, source, Options{RecencyWeight: 0.3, HalflifeDays: 30}, now)

	results, err := r.Rank(context.Background(), Query{Text: "rate decision", TopK: 5})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2", len(results))
	}
	if results[0].Doc.ID != "recent" {
		t.Errorf("first = %s, want recent despite lower similarity", results[0].Doc.ID)
	}
	if math.Abs(results[0].Semantic-0.89) > 1e-9 {
		t.Errorf("semantic = %v, want 0.89", results[0].Semantic)
	}
	if results[0].Rank != 1 || results[1].Rank != 2 {
		t.Errorf("ranks = %d, %d", results[0].Rank, results[1].Rank)
	}
}

func TestRankWeightZeroIsPureSemantic(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	search := &mockSearch{hits: []Hit{
		{DocID: "older", Distance: distanceFor(0.95)},
		{DocID: "recent", Distance: distanceFor(0.89)},
	}}
	source := &mockSource{docs: map[string]store.Document{
		"recent": rankedDoc("recent", now.AddDate(0, 0, -10)),
		"older":  rankedDoc("older", now.AddDate(0, 0, -200)),
	}}
	r := testRanker(search, source, Options{HalflifeDays: 30}, now)

	zero := 0.0
	results, err := r.Rank(context.Background(), Query{Text: "q", TopK: 5, RecencyWeight: &zero})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if results[0].Doc.ID != "older" {
		t.Errorf("first = %s, want older on pure similarity", results[0].Doc.ID)
	}
}

func TestRankWeightOneIsPureRecency(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	search := &mockSearch{hits: []Hit{
		{DocID: "older", Distance: distanceFor(0.95)},
		{DocID: "recent", Distance: distanceFor(0.5)},
	}}
	source := &mockSource{docs: map[string]store.Document{
		"recent": rankedDoc("recent", now.AddDate(0, 0, -1)),
		"older":  rankedDoc("older", now.AddDate(0, 0, -300)),
	}}
	r := testRanker(search, source, Options{HalflifeDays: 30}, now)

	one := 1.0
	results, err := r.Rank(context.Background(), Query{Text: "q", TopK: 5, RecencyWeight: &one})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if results[0].Doc.ID != "recent" {
		t.Errorf("first = %s, want recent on pure recency", results[0].Doc.ID)
	}
}

func TestRankInvalidQueries(t *testing.T) {
	r := testRanker(&mockSearch{}, &mockSource{}, Options{}, time.Now())

	bad := 1.5
	negative := -0.1
	tests := []struct {
		name string
		q    Query
	}{
		{"empty text", Query{Text: "   "}},
		{"weight above one", Query{Text: "q", RecencyWeight: &bad}},
		{"negative weight", Query{Text: "q", RecencyWeight: &negative}},
		{"negative top k", Query{Text: "q", TopK: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Rank(context.Background(), tt.q)
			if !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("err = %v, want ErrInvalidQuery", err)
			}
		})
	}
}

func TestRankEmptyIndexNotAnError(t *testing.T) {
	r := testRanker(&mockSearch{}, &mockSource{}, Options{}, time.Now())
	results, err := r.Rank(context.Background(), Query{Text: "anything"})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len = %d, want 0", len(results))
	}
}

func TestRankCandidatePool(t *testing.T) {
	search := &mockSearch{}
	r := testRanker(search, &mockSource{}, Options{CandidateFloor: 20}, time.Now())

	if _, err := r.Rank(context.Background(), Query{Text: "q", TopK: 10}); err != nil {
		t.Fatalf("rank: %v", err)
	}
	if search.lastK != 30 {
		t.Errorf("pool = %d, want 3x top k", search.lastK)
	}

	if _, err := r.Rank(context.Background(), Query{Text: "q", TopK: 2}); err != nil {
		t.Fatalf("rank: %v", err)
	}
	if search.lastK != 20 {
		t.Errorf("pool = %d, want candidate floor", search.lastK)
	}
}

func TestRankFilterTrimsCandidates(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	docA := rankedDoc("a", now.AddDate(0, 0, -1))
	docA.Topics = []string{"Energy"}
	docB := rankedDoc("b", now.AddDate(0, 0, -1))
	docB.Topics = []string{"Technology"}

	search := &mockSearch{hits: []Hit{
		{DocID: "a", Distance: 0.1},
		{DocID: "b", Distance: 0.2},
	}}
	source := &mockSource{docs: map[string]store.Document{"a": docA, "b": docB}}
	r := testRanker(search, source, Options{}, now)

	results, err := r.Rank(context.Background(), Query{
		Text:   "chips",
		TopK:   5,
		Filter: Filter{Topics: []string{"Technology"}},
	})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(results) != 1 || results[0].Doc.ID != "b" {
		t.Errorf("results = %+v, want only b", results)
	}
}

func TestRankTopKTruncation(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	search := &mockSearch{}
	source := &mockSource{docs: map[string]store.Document{}}
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		search.hits = append(search.hits, Hit{DocID: id, Distance: float64(i) * 0.1})
		source.docs[id] = rankedDoc(id, now.AddDate(0, 0, -i))
	}
	r := testRanker(search, source, Options{}, now)

	results, err := r.Rank(context.Background(), Query{Text: "q", TopK: 3})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len = %d, want 3", len(results))
	}
	for i, res := range results {
		if res.Rank != i+1 {
			t.Errorf("rank[%d] = %d", i, res.Rank)
		}
	}
}

func TestRankTopKZeroUsesConfiguredDefault(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	search := &mockSearch{}
	source := &mockSource{docs: map[string]store.Document{}}
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		search.hits = append(search.hits, Hit{DocID: id, Distance: float64(i) * 0.1})
		source.docs[id] = rankedDoc(id, now.AddDate(0, 0, -i))
	}
	r := testRanker(search, source, Options{TopK: 2}, now)

	results, err := r.Rank(context.Background(), Query{Text: "q"})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("len = %d, want configured default 2", len(results))
	}
}

func TestRankTieBreakPrefersRecent(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	// Same distance, different dates, weight zero so combined scores tie.
	search := &mockSearch{hits: []Hit{
		{DocID: "old", Distance: 0.5},
		{DocID: "new", Distance: 0.5},
	}}
	source := &mockSource{docs: map[string]store.Document{
		"old": rankedDoc("old", now.AddDate(0, 0, -100)),
		"new": rankedDoc("new", now.AddDate(0, 0, -1)),
	}}
	r := testRanker(search, source, Options{}, now)

	zero := 0.0
	results, err := r.Rank(context.Background(), Query{Text: "q", TopK: 5, RecencyWeight: &zero})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if results[0].Doc.ID != "new" {
		t.Errorf("first = %s, want newer document on tie", results[0].Doc.ID)
	}
}

func TestRankSearchError(t *testing.T) {
	search := &mockSearch{err: errors.New("index offline")}
	r := testRanker(search, &mockSource{}, Options{}, time.Now())
	if _, err := r.Rank(context.Background(), Query{Text: "q"}); err == nil {
		t.Fatal("expected error from search")
	}
}
