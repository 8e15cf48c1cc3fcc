package index

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestAddAndSearch(t *testing.T) {
	ix := New()
	if err := ix.Add("a", []float64{0, 0}); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := ix.Add("b", []float64{3, 4}); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if err := ix.Add("c", []float64{1, 0}); err != nil {
		t.Fatalf("add c: %v", err)
	}

	matches, err := ix.Search([]float64{0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("len = %d, want 2", len(matches))
	}
	if matches[0].ID != "a" || matches[0].Distance != 0 {
		t.Errorf("first = %+v, want a at distance 0", matches[0])
	}
	if matches[1].ID != "c" || matches[1].Distance != 1 {
		t.Errorf("second = %+v, want c at distance 1", matches[1])
	}
}

func TestSearchSquaredDistance(t *testing.T) {
	ix := New()
	if err := ix.Add("far", []float64{3, 4}); err != nil {
		t.Fatalf("add: %v", err)
	}
	matches, err := ix.Search([]float64{0, 0}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if matches[0].Distance != 25 {
		t.Errorf("distance = %v, want squared 25", matches[0].Distance)
	}
}

func TestAddDimensionMismatch(t *testing.T) {
	ix := New()
	if err := ix.Add("a", []float64{1, 2}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := ix.Add("b", []float64{1, 2, 3}); err == nil {
		t.Fatal("expected dimension error")
	}
	if _, err := ix.Search([]float64{1}, 1); err == nil {
		t.Fatal("expected query dimension error")
	}
}

func TestAddReplacesExisting(t *testing.T) {
	ix := New()
	if err := ix.Add("a", []float64{0, 0}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := ix.Add("a", []float64{5, 5}); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if ix.Size() != 1 {
		t.Errorf("size = %d, want 1", ix.Size())
	}
	matches, err := ix.Search([]float64{5, 5}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if matches[0].Distance != 0 {
		t.Errorf("distance = %v, want replaced vector", matches[0].Distance)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	ix := New()
	matches, err := ix.Search([]float64{1, 2}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if matches != nil {
		t.Errorf("matches = %v, want nil", matches)
	}
}

func TestConcurrentAddSearch(t *testing.T) {
	ix := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				id := fmt.Sprintf("doc-%d-%d", n, j)
				if err := ix.Add(id, []float64{float64(n), float64(j)}); err != nil {
					t.Errorf("add %s: %v", id, err)
				}
				if _, err := ix.Search([]float64{0, 0}, 5); err != nil {
					t.Errorf("search: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()
	if ix.Size() != 160 {
		t.Errorf("size = %d, want 160", ix.Size())
	}
}

type stubEmbedder struct {
	vec []float64
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func (s *stubEmbedder) IsConfigured() bool { return true }

func TestSemanticSearch(t *testing.T) {
	ix := New()
	if err := ix.Add("near", []float64{1, 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := ix.Add("far", []float64{10, 10}); err != nil {
		t.Fatalf("add: %v", err)
	}

	sem := NewSemantic(&stubEmbedder{vec: []float64{1, 1}}, ix)
	hits, err := sem.Search(context.Background(), "query", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].DocID != "near" {
		t.Errorf("hits = %+v, want near", hits)
	}
}

func TestSemanticSearchEmptyIndexSkipsEmbedding(t *testing.T) {
	sem := NewSemantic(&stubEmbedder{err: fmt.Errorf("should not be called")}, New())
	hits, err := sem.Search(context.Background(), "query", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits != nil {
		t.Errorf("hits = %v, want nil", hits)
	}
}
