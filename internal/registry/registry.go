// Package registry tracks stub lifecycle state. It is the sole source of
// truth for "has this story been seen as a stub": loaded fully into memory
// at start, mutated under a single lock, and persisted through a Store.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrDuplicateKey reports an insert that would create a second pending
	// record for the same key.
	ErrDuplicateKey = errors.New("duplicate registry key")
	// ErrInvalidState reports a completion attempt on a record that is no
	// longer pending. Callers treat it as a benign race loss.
	ErrInvalidState = errors.New("record not pending")
)

// State is the lifecycle state of a stub record.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateExpired   State = "expired"
)

// Record is one registry entry. Records are never deleted by the pipeline;
// expiry is an external maintenance operation.
type Record struct {
	ExternalID  string     `json:"external_id"`
	StoryID     string     `json:"story_id,omitempty"`
	Fingerprint string     `json:"fingerprint"`
	Subject     string     `json:"subject"`
	ReceivedAt  time.Time  `json:"received_at"`
	State       State      `json:"state"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CompletedBy string     `json:"completed_by,omitempty"`
}

// Store persists registry state. Save must be atomic: a crash mid-save must
// not leave a torn file readable by the next Load.
type Store interface {
	Load() ([]Record, error)
	Save(records []Record) error
}

// Stats summarizes registry contents.
type Stats struct {
	Total                 int
	Pending               int
	Completed             int
	PendingWithStoryID    int
	PendingWithoutStoryID int
}

// Registry is the in-memory stub registry. All mutations are serialized by
// one mutex; MarkCompleted is the check-and-set that resolves concurrent
// reconciliation races.
type Registry struct {
	mu      sync.Mutex
	records []*Record
	store   Store

	// oldestFirst controls fingerprint tie-breaking: true prefers completing
	// the oldest outstanding stub.
	oldestFirst bool
}

// New creates a registry backed by store, loading existing state. A nil
// store yields an in-memory registry for tests and dry runs.
func New(store Store, oldestFirst bool) (*Registry, error) {
	r := &Registry{store: store, oldestFirst: oldestFirst}
	if store == nil {
		return r, nil
	}
	records, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}
	r.records = make([]*Record, len(records))
	for i := range records {
		rec := records[i]
		r.records[i] = &rec
	}
	return r, nil
}

// LookupByStory returns the pending record for the story id, or nil.
func (r *Registry) LookupByStory(storyID string) *Record {
	if storyID == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.State == StatePending && rec.StoryID == storyID {
			return rec
		}
	}
	return nil
}

// LookupByExternalID returns the record for the external id regardless of
// state, or nil.
func (r *Registry) LookupByExternalID(id string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ExternalID == id {
			return rec
		}
	}
	return nil
}

// LookupByFingerprint returns a pending record matching the fingerprint.
// Only records without a story id are considered: fingerprints are the
// fallback key for items on which no story id exists on either side.
// When several pending records collide, the oldest received wins by default.
func (r *Registry) LookupByFingerprint(fp string) *Record {
	if fp == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *Record
	for _, rec := range r.records {
		if rec.State != StatePending || rec.StoryID != "" || rec.Fingerprint != fp {
			continue
		}
		if best == nil {
			best = rec
			continue
		}
		older := rec.ReceivedAt.Before(best.ReceivedAt)
		if (r.oldestFirst && older) || (!r.oldestFirst && !older) {
			best = rec
		}
	}
	return best
}

// Insert adds a new pending record. It fails with ErrDuplicateKey when a
// pending record already exists for the same story id, or — for records
// without a story id — the same fingerprint.
func (r *Registry) Insert(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.records {
		if existing.State != StatePending {
			continue
		}
		if rec.StoryID != "" && existing.StoryID == rec.StoryID {
			return fmt.Errorf("%w: story %s", ErrDuplicateKey, rec.StoryID)
		}
		if rec.StoryID == "" && existing.StoryID == "" && existing.Fingerprint == rec.Fingerprint {
			return fmt.Errorf("%w: fingerprint %s", ErrDuplicateKey, rec.Fingerprint)
		}
	}

	rec.State = StatePending
	rec.CompletedAt = nil
	rec.CompletedBy = ""
	r.records = append(r.records, &rec)
	return nil
}

// MarkCompleted atomically transitions a pending record to completed,
// recording the completing item's external id and timestamp. A record in
// any other state fails with ErrInvalidState, so of two concurrent
// reconciliations exactly one succeeds.
func (r *Registry) MarkCompleted(rec *Record, completingID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.State != StatePending {
		return fmt.Errorf("%w: %s is %s", ErrInvalidState, rec.ExternalID, rec.State)
	}
	rec.State = StateCompleted
	rec.CompletedBy = completingID
	completed := at
	rec.CompletedAt = &completed
	return nil
}

// All returns copies of records in the given state; an empty state returns
// everything.
func (r *Registry) All(state State) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Record
	for _, rec := range r.records {
		if state == "" || rec.State == state {
			out = append(out, *rec)
		}
	}
	return out
}

// Stats returns aggregate counts.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s Stats
	s.Total = len(r.records)
	for _, rec := range r.records {
		switch rec.State {
		case StatePending:
			s.Pending++
			if rec.StoryID != "" {
				s.PendingWithStoryID++
			} else {
				s.PendingWithoutStoryID++
			}
		case StateCompleted:
			s.Completed++
		}
	}
	return s
}

// Save persists the current state through the store. Call after each
// mutating batch; a nil store makes it a no-op.
func (r *Registry) Save() error {
	if r.store == nil {
		return nil
	}
	r.mu.Lock()
	snapshot := make([]Record, len(r.records))
	for i, rec := range r.records {
		snapshot[i] = *rec
	}
	r.mu.Unlock()

	if err := r.store.Save(snapshot); err != nil {
		return fmt.Errorf("saving registry: %w", err)
	}
	return nil
}
