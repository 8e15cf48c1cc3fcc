package index

import (
	"context"
	"fmt"

	"github.com/gchatrian/BLOOMBERG-RAG/internal/embed"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/rank"
)

// Semantic answers text queries against the index by embedding them first.
type Semantic struct {
	embedder embed.Embedder
	index    *Index
}

// NewSemantic creates a semantic search over the given embedder and index.
func NewSemantic(embedder embed.Embedder, ix *Index) *Semantic {
	return &Semantic{embedder: embedder, index: ix}
}

// Search embeds the query and returns the k nearest documents.
func (s *Semantic) Search(ctx context.Context, query string, k int) ([]rank.Hit, error) {
	if s.index.Size() == 0 {
		return nil, nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vecs))
	}

	matches, err := s.index.Search(vecs[0], k)
	if err != nil {
		return nil, err
	}
	hits := make([]rank.Hit, len(matches))
	for i, m := range matches {
		hits[i] = rank.Hit{DocID: m.ID, Distance: m.Distance}
	}
	return hits, nil
}
