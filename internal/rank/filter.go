package rank

import (
	"strings"
	"time"

	"github.com/gchatrian/BLOOMBERG-RAG/internal/store"
)

// Filter restricts search results by metadata. Zero-value fields are
// inactive. Active fields combine with AND; values within a list combine
// with OR.
type Filter struct {
	Start   time.Time
	End     time.Time
	Topics  []string
	People  []string
	Tickers []string
}

// IsZero reports whether no filter field is active.
func (f *Filter) IsZero() bool {
	return f.Start.IsZero() && f.End.IsZero() &&
		len(f.Topics) == 0 && len(f.People) == 0 && len(f.Tickers) == 0
}

// Matches reports whether doc passes every active filter field.
func (f *Filter) Matches(doc *store.Document) bool {
	if !f.Start.IsZero() || !f.End.IsZero() {
		date := doc.EffectiveDate()
		if date.IsZero() {
			// Documents without any usable date never pass a date filter.
			return false
		}
		if !f.Start.IsZero() && date.Before(f.Start) {
			return false
		}
		if !f.End.IsZero() && date.After(f.End) {
			return false
		}
	}
	if len(f.Topics) > 0 && !intersects(f.Topics, doc.Topics) {
		return false
	}
	if len(f.People) > 0 && !intersects(f.People, doc.People) {
		return false
	}
	if len(f.Tickers) > 0 && !intersects(f.Tickers, doc.Tickers) {
		return false
	}
	return true
}

// intersects reports whether any wanted value appears in have,
// compared case-insensitively.
func intersects(want, have []string) bool {
	if len(have) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[strings.ToLower(strings.TrimSpace(w))]; ok {
			return true
		}
	}
	return false
}
