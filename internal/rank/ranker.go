package rank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gchatrian/BLOOMBERG-RAG/internal/store"
)

// ErrInvalidQuery indicates a query that cannot be executed.
var ErrInvalidQuery = errors.New("invalid query")

// Hit is a raw similarity match from the vector index.
type Hit struct {
	DocID    string
	Distance float64
}

// SimilaritySearch finds the k nearest documents to a query string.
type SimilaritySearch interface {
	Search(ctx context.Context, query string, k int) ([]Hit, error)
}

// DocumentSource loads documents by id, preserving input order.
type DocumentSource interface {
	GetDocuments(ids []string) ([]store.Document, error)
}

// Query is a ranked retrieval request.
type Query struct {
	Text string
	// TopK is the number of results to return. Zero means "use the
	// ranker's configured default"; negative values are invalid.
	TopK int
	// RecencyWeight overrides the configured blend weight when set.
	// Must be between 0 and 1 inclusive.
	RecencyWeight *float64
	Filter        Filter
}

// Result is a ranked document with its score breakdown.
type Result struct {
	Rank     int
	Doc      store.Document
	Distance float64
	Semantic float64
	Recency  float64
	Combined float64
}

// Options configures a Ranker. Zero values fall back to defaults.
type Options struct {
	TopK           int
	RecencyWeight  float64
	HalflifeDays   float64
	CandidateFloor int
}

const (
	defaultTopK           = 20
	defaultRecencyWeight  = 0.3
	defaultCandidateFloor = 20
)

// Ranker blends semantic similarity with recency to order search results.
type Ranker struct {
	search   SimilaritySearch
	docs     DocumentSource
	temporal *TemporalScorer
	weight   float64
	topK     int
	floor    int
	now      func() time.Time
}

// NewRanker creates a ranker over the given similarity search and document
// source.
func NewRanker(search SimilaritySearch, docs DocumentSource, opts Options) *Ranker {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.RecencyWeight <= 0 {
		opts.RecencyWeight = defaultRecencyWeight
	}
	if opts.CandidateFloor <= 0 {
		opts.CandidateFloor = defaultCandidateFloor
	}
	return &Ranker{
		search:   search,
		docs:     docs,
		temporal: NewTemporalScorer(opts.HalflifeDays),
		weight:   opts.RecencyWeight,
		topK:     opts.TopK,
		floor:    opts.CandidateFloor,
		now:      time.Now,
	}
}

// Rank executes the query and returns results ordered by combined score.
// An empty result set is not an error.
func (r *Ranker) Rank(ctx context.Context, q Query) ([]Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("%w: empty query text", ErrInvalidQuery)
	}
	weight := r.weight
	if q.RecencyWeight != nil {
		weight = *q.RecencyWeight
		if weight < 0 || weight > 1 {
			return nil, fmt.Errorf("%w: recency weight %v outside [0, 1]", ErrInvalidQuery, weight)
		}
	}
	topK := q.TopK
	if topK < 0 {
		return nil, fmt.Errorf("%w: negative top k", ErrInvalidQuery)
	}
	if topK == 0 {
		topK = r.topK
	}

	// Over-fetch so metadata filters still leave enough candidates.
	pool := 3 * topK
	if pool < r.floor {
		pool = r.floor
	}

	hits, err := r.search.Search(ctx, q.Text, pool)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	distances := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.DocID
		distances[h.DocID] = h.Distance
	}
	docs, err := r.docs.GetDocuments(ids)
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}

	now := r.now()
	results := make([]Result, 0, len(docs))
	for _, doc := range docs {
		if !q.Filter.Matches(&doc) {
			continue
		}
		d := distances[doc.ID]
		semantic := 1.0 / (1.0 + d)
		recency := r.temporal.Score(doc.EffectiveDate(), now)
		results = append(results, Result{
			Doc:      doc,
			Distance: d,
			Semantic: semantic,
			Recency:  recency,
			Combined: semantic*(1-weight) + recency*weight,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Combined != results[j].Combined {
			return results[i].Combined > results[j].Combined
		}
		di, dj := results[i].Doc.EffectiveDate(), results[j].Doc.EffectiveDate()
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return results[i].Semantic > results[j].Semantic
	})

	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}
