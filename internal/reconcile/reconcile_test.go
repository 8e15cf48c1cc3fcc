package reconcile

import (
	"sync"
	"testing"
	"time"

	"github.com/gchatrian/BLOOMBERG-RAG/internal/classify"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/mail"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/registry"
)

func newTestReconciler(t *testing.T) (*Reconciler, *registry.Registry) {
	t.Helper()
	reg, err := registry.New(nil, true)
	if err != nil {
		t.Fatalf("creating registry: %v", err)
	}
	return New(reg, classify.NewFingerprinter(5*time.Minute)), reg
}

func stubResult(storyID string) *classify.Result {
	return &classify.Result{Verdict: classify.VerdictStub, StoryID: storyID}
}

func completeResult(storyID string) *classify.Result {
	return &classify.Result{Verdict: classify.VerdictComplete, StoryID: storyID}
}

func item(id, subject string, at time.Time) mail.RawItem {
	return mail.RawItem{ID: id, Subject: subject, Body: "body", ReceivedAt: at}
}

func TestNewStubIsFiled(t *testing.T) {
	r, reg := newTestReconciler(t)
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	d, err := r.Reconcile(item("stub-1", "Fed Holds Rates", at), stubResult("STORY1"))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if d.Disposition != FileAsStub {
		t.Fatalf("expected FileAsStub, got %s", d.Disposition)
	}

	rec := reg.LookupByStory("STORY1")
	if rec == nil || rec.State != registry.StatePending {
		t.Fatalf("stub not registered as pending: %+v", rec)
	}
	if rec.ExternalID != "stub-1" {
		t.Errorf("wrong external id: %q", rec.ExternalID)
	}
}

func TestResubmittedStubIsAlreadySeen(t *testing.T) {
	r, reg := newTestReconciler(t)
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	if _, err := r.Reconcile(item("stub-1", "Fed Holds Rates", at), stubResult("STORY1")); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	d, err := r.Reconcile(item("stub-1", "Fed Holds Rates", at), stubResult("STORY1"))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if d.Disposition != AlreadySeen {
		t.Errorf("expected AlreadySeen, got %s", d.Disposition)
	}
	if got := len(reg.All(registry.StatePending)); got != 1 {
		t.Errorf("expected 1 pending record, got %d", got)
	}
}

func TestIDLessStubDedupedByFingerprint(t *testing.T) {
	r, reg := newTestReconciler(t)
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	if _, err := r.Reconcile(item("stub-1", "Swiss Watch Exports", at), stubResult("")); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	// Same subject, 2 minutes later: same fingerprint bucket.
	d, err := r.Reconcile(item("stub-2", "Swiss Watch Exports", at.Add(2*time.Minute)), stubResult(""))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if d.Disposition != AlreadySeen {
		t.Errorf("expected AlreadySeen for fingerprint duplicate, got %s", d.Disposition)
	}
	if got := len(reg.All("")); got != 1 {
		t.Errorf("expected 1 record, got %d", got)
	}
}

func TestCompleteMatchesStubByStoryID(t *testing.T) {
	r, reg := newTestReconciler(t)
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	r.Reconcile(item("stub-1", "Fed Holds Rates", at), stubResult("STORY1"))

	d, err := r.Reconcile(item("full-1", "Fed Holds Rates Steady", at.Add(time.Hour)), completeResult("STORY1"))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if d.Disposition != Completes {
		t.Fatalf("expected Completes, got %s", d.Disposition)
	}
	if d.Matched == nil || d.Matched.ExternalID != "stub-1" {
		t.Fatalf("wrong matched record: %+v", d.Matched)
	}

	rec := reg.LookupByExternalID("stub-1")
	if rec.State != registry.StateCompleted || rec.CompletedBy != "full-1" {
		t.Errorf("stub not completed: %+v", rec)
	}
	if rec.CompletedAt == nil || !rec.CompletedAt.Equal(at.Add(time.Hour)) {
		t.Errorf("completion timestamp should be the completing item's: %v", rec.CompletedAt)
	}
}

func TestCompleteWithoutMatchIsNew(t *testing.T) {
	r, _ := newTestReconciler(t)
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	d, err := r.Reconcile(item("full-1", "Unrelated Story", at), completeResult("NOPE"))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if d.Disposition != IndexAsNew {
		t.Errorf("expected New, got %s", d.Disposition)
	}
}

func TestCompleteMatchesIDLessStubByFingerprint(t *testing.T) {
	r, _ := newTestReconciler(t)
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	r.Reconcile(item("stub-1", "Swiss Watch Exports", at), stubResult(""))

	// Complete without a story id, same subject and bucket.
	d, err := r.Reconcile(item("full-1", "Swiss Watch Exports", at.Add(time.Minute)), completeResult(""))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if d.Disposition != Completes {
		t.Errorf("expected Completes via fingerprint, got %s", d.Disposition)
	}
}

func TestCompleteWithStoryIDIgnoresFingerprint(t *testing.T) {
	r, _ := newTestReconciler(t)
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// Pending id-less stub with the same subject.
	r.Reconcile(item("stub-1", "Fed Holds Rates", at), stubResult(""))

	// Complete carries a story id, so the fingerprint fallback is off.
	d, err := r.Reconcile(item("full-1", "Fed Holds Rates", at.Add(time.Minute)), completeResult("STORY9"))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if d.Disposition != IndexAsNew {
		t.Errorf("story-id-bearing complete must not fall back to fingerprint, got %s", d.Disposition)
	}
}

func TestDuplicateCompletionSecondIsNew(t *testing.T) {
	r, _ := newTestReconciler(t)
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	r.Reconcile(item("stub-1", "Fed Holds Rates", at), stubResult("STORY1"))

	first, _ := r.Reconcile(item("full-1", "Fed Holds Rates", at.Add(time.Hour)), completeResult("STORY1"))
	second, _ := r.Reconcile(item("full-2", "Fed Holds Rates", at.Add(2*time.Hour)), completeResult("STORY1"))

	if first.Disposition != Completes {
		t.Errorf("first completion should match, got %s", first.Disposition)
	}
	if second.Disposition != IndexAsNew {
		t.Errorf("second completion should proceed as New, got %s", second.Disposition)
	}
}

func TestConcurrentCompletionExactlyOnce(t *testing.T) {
	r, _ := newTestReconciler(t)
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	r.Reconcile(item("stub-1", "Fed Holds Rates", at), stubResult("STORY1"))

	const callers = 8
	var wg sync.WaitGroup
	decisions := make([]*Decision, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			d, err := r.Reconcile(item("full-"+string(rune('a'+n)), "Fed Holds Rates", at.Add(time.Hour)), completeResult("STORY1"))
			if err == nil {
				decisions[n] = d
			}
		}(i)
	}
	wg.Wait()

	completes := 0
	for _, d := range decisions {
		if d != nil && d.Disposition == Completes {
			completes++
		}
	}
	if completes != 1 {
		t.Errorf("expected exactly one Completes, got %d", completes)
	}
}
