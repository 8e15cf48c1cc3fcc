// Package ingest walks the source mailbox, classifies each alert, updates
// the stub registry, and files indexed documents into the vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gchatrian/BLOOMBERG-RAG/internal/classify"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/config"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/embed"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/index"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/mail"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/reconcile"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/registry"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/store"
)

// Counts summarizes one ingestion run.
type Counts struct {
	Processed   int
	Malformed   int
	Stubs       int
	AlreadySeen int
	Indexed     int
	Completed   int
	Failed      int
}

// Pipeline runs the classify-reconcile-index loop over the source folder.
type Pipeline struct {
	mailbox    mail.Store
	folders    config.Mailbox
	classifier *classify.Classifier
	reconciler *reconcile.Reconciler
	reg        *registry.Registry
	db         *store.DB
	embedder   embed.Embedder
	index      *index.Index
}

// New creates an ingestion pipeline.
func New(mailbox mail.Store, folders config.Mailbox, classifier *classify.Classifier,
	reconciler *reconcile.Reconciler, reg *registry.Registry, db *store.DB,
	embedder embed.Embedder, ix *index.Index) *Pipeline {
	return &Pipeline{
		mailbox:    mailbox,
		folders:    folders,
		classifier: classifier,
		reconciler: reconciler,
		reg:        reg,
		db:         db,
		embedder:   embedder,
		index:      ix,
	}
}

// Run processes every item currently in the source folder. Item-level
// failures are counted and logged; the run continues. The registry is
// persisted once at the end.
func (p *Pipeline) Run(ctx context.Context) (*Counts, error) {
	items, err := p.mailbox.List(p.folders.Source)
	if err != nil {
		return nil, fmt.Errorf("listing source folder: %w", err)
	}

	counts := &Counts{}
	for _, item := range items {
		counts.Processed++
		if err := p.processItem(ctx, item, counts); err != nil {
			log.Printf("Failed to process %s: %v", item.ID, err)
			counts.Failed++
		}
	}

	if err := p.reg.Save(); err != nil {
		return counts, fmt.Errorf("saving registry: %w", err)
	}
	return counts, nil
}

func (p *Pipeline) processItem(ctx context.Context, item mail.RawItem, counts *Counts) error {
	res, err := p.classifier.Classify(item)
	if errors.Is(err, classify.ErrMalformedItem) {
		log.Printf("Skipping malformed item %s: %v", item.ID, err)
		counts.Malformed++
		return nil
	}
	if err != nil {
		return fmt.Errorf("classifying: %w", err)
	}

	decision, err := p.reconciler.Reconcile(item, res)
	if err != nil {
		return fmt.Errorf("reconciling: %w", err)
	}

	switch decision.Disposition {
	case reconcile.FileAsStub:
		if err := p.mailbox.Move(item.ID, p.folders.Source, p.folders.Stubs); err != nil {
			return fmt.Errorf("filing stub: %w", err)
		}
		counts.Stubs++

	case reconcile.AlreadySeen:
		if err := p.mailbox.Move(item.ID, p.folders.Source, p.folders.Processed); err != nil {
			return fmt.Errorf("filing duplicate: %w", err)
		}
		counts.AlreadySeen++

	case reconcile.IndexAsNew, reconcile.Completes:
		doc := buildDocument(item, res, decision)
		if err := p.indexDocument(ctx, doc); err != nil {
			// Leave the item in the source folder so the next run retries.
			return fmt.Errorf("indexing: %w", err)
		}
		if err := p.mailbox.Move(item.ID, p.folders.Source, p.folders.Indexed); err != nil {
			return fmt.Errorf("filing indexed item: %w", err)
		}
		counts.Indexed++

		if decision.Disposition == reconcile.Completes && decision.Matched != nil {
			counts.Completed++
			if err := p.mailbox.Move(decision.Matched.ExternalID, p.folders.Stubs, p.folders.Processed); err != nil {
				// The registry already records the completion; a missing
				// stub file is not worth failing the item over.
				log.Printf("Could not retire stub %s: %v", decision.Matched.ExternalID, err)
			}
		}

	default:
		return fmt.Errorf("unknown disposition %q", decision.Disposition)
	}
	return nil
}

func (p *Pipeline) indexDocument(ctx context.Context, doc store.Document) error {
	inserted, err := p.db.InsertDocument(doc)
	if err != nil {
		return fmt.Errorf("storing document: %w", err)
	}
	if !inserted {
		log.Printf("Document %s already indexed", doc.ID)
		return nil
	}

	vecs, err := p.embedder.Embed(ctx, []string{doc.EmbeddingText()})
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := p.db.InsertEmbedding(doc.ID, vecs[0]); err != nil {
		return fmt.Errorf("storing embedding: %w", err)
	}
	return p.index.Add(doc.ID, vecs[0])
}

func buildDocument(item mail.RawItem, res *classify.Result, decision *reconcile.Decision) store.Document {
	doc := store.Document{
		ID:          item.ID,
		StoryID:     res.StoryID,
		Subject:     item.Subject,
		Body:        res.CleanBody,
		Author:      res.Metadata.Author,
		Category:    res.Metadata.Category,
		ArticleDate: res.Metadata.ArticleDate,
		ReceivedAt:  item.ReceivedAt,
		Topics:      res.Metadata.Topics,
		People:      res.Metadata.People,
		Tickers:     res.Metadata.Tickers,
	}
	if decision.Disposition == reconcile.Completes && decision.Matched != nil {
		doc.CompletedStub = decision.Matched.ExternalID
	}
	return doc
}

// LoadIndex rebuilds the in-memory vector index from stored embeddings.
func LoadIndex(db *store.DB) (*index.Index, error) {
	embs, err := db.AllEmbeddings()
	if err != nil {
		return nil, fmt.Errorf("loading embeddings: %w", err)
	}
	ix := index.New()
	for _, e := range embs {
		if err := ix.Add(e.DocID, e.Vector); err != nil {
			return nil, fmt.Errorf("indexing %s: %w", e.DocID, err)
		}
	}
	return ix, nil
}
