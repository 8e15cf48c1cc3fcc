// Package reconcile matches stub placeholders with their eventual complete
// articles and emits the disposition the orchestration layer translates
// into mailbox moves.
package reconcile

import (
	"errors"
	"fmt"
	"log"

	"github.com/gchatrian/BLOOMBERG-RAG/internal/classify"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/mail"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/registry"
)

// Disposition tells the caller how to file the item.
type Disposition string

const (
	// FileAsStub: a new stub was registered; move the item to the stubs folder.
	FileAsStub Disposition = "file_as_stub"
	// AlreadySeen: a pending stub for this key already exists; no-op.
	AlreadySeen Disposition = "already_seen"
	// IndexAsNew: a complete article with no matching stub; index it.
	IndexAsNew Disposition = "new"
	// Completes: a complete article that resolves a pending stub; index it
	// and retire the matched stub.
	Completes Disposition = "completes"
)

// Decision is the reconciliation outcome for one item. Matched is set only
// for Completes.
type Decision struct {
	Disposition Disposition
	Matched     *registry.Record
}

// Reconciler updates the registry per classified item. Lookup-then-mutate
// races are resolved by the registry's check-and-set: the loser proceeds as
// if no match existed.
type Reconciler struct {
	reg *registry.Registry
	fp  *classify.Fingerprinter
}

// New creates a Reconciler over the registry and fingerprinter.
func New(reg *registry.Registry, fp *classify.Fingerprinter) *Reconciler {
	return &Reconciler{reg: reg, fp: fp}
}

// Reconcile decides the disposition for one classified item.
func (r *Reconciler) Reconcile(item mail.RawItem, res *classify.Result) (*Decision, error) {
	if res == nil {
		return nil, errors.New("nil classification result")
	}
	fingerprint := r.fp.Fingerprint(item.Subject, item.ReceivedAt)

	switch res.Verdict {
	case classify.VerdictStub:
		return r.reconcileStub(item, res.StoryID, fingerprint)
	case classify.VerdictComplete:
		return r.reconcileComplete(item, res.StoryID, fingerprint), nil
	default:
		return nil, fmt.Errorf("unknown verdict %q", res.Verdict)
	}
}

func (r *Reconciler) reconcileStub(item mail.RawItem, storyID, fingerprint string) (*Decision, error) {
	existing := r.reg.LookupByStory(storyID)
	if existing == nil && storyID == "" {
		existing = r.reg.LookupByFingerprint(fingerprint)
	}
	if existing != nil {
		log.Printf("Stub already pending (%s), skipping %s", existing.ExternalID, item.ID)
		return &Decision{Disposition: AlreadySeen}, nil
	}

	rec := registry.Record{
		ExternalID:  item.ID,
		StoryID:     storyID,
		Fingerprint: fingerprint,
		Subject:     item.Subject,
		ReceivedAt:  item.ReceivedAt,
		State:       registry.StatePending,
	}
	if err := r.reg.Insert(rec); err != nil {
		if errors.Is(err, registry.ErrDuplicateKey) {
			// Lost an insert race: some other sweep registered this stub.
			return &Decision{Disposition: AlreadySeen}, nil
		}
		return nil, fmt.Errorf("registering stub %s: %w", item.ID, err)
	}
	return &Decision{Disposition: FileAsStub}, nil
}

func (r *Reconciler) reconcileComplete(item mail.RawItem, storyID, fingerprint string) *Decision {
	var matched *registry.Record
	if storyID != "" {
		matched = r.reg.LookupByStory(storyID)
	} else {
		// Fingerprint fallback applies only when no story id exists on
		// either side.
		matched = r.reg.LookupByFingerprint(fingerprint)
	}
	if matched == nil {
		return &Decision{Disposition: IndexAsNew}
	}

	if err := r.reg.MarkCompleted(matched, item.ID, item.ReceivedAt); err != nil {
		// Benign race loss: another item completed this stub first.
		log.Printf("Stub %s already completed, treating %s as new", matched.ExternalID, item.ID)
		return &Decision{Disposition: IndexAsNew}
	}
	return &Decision{Disposition: Completes, Matched: matched}
}
