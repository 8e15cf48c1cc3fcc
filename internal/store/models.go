package store

import (
	"strings"
	"time"
)

// Document is an indexed complete article.
type Document struct {
	ID            string // external id from the mail store
	StoryID       string
	Subject       string
	Body          string
	Author        string
	Category      string
	ArticleDate   time.Time // zero when no explicit date was extracted
	ReceivedAt    time.Time
	Topics        []string
	People        []string
	Tickers       []string
	CompletedStub string // external id of the stub this article completed
	IndexedAt     time.Time
}

// EffectiveDate is the date used for recency scoring and date filters:
// the explicit article date when present, the receipt time otherwise.
func (d Document) EffectiveDate() time.Time {
	if !d.ArticleDate.IsZero() {
		return d.ArticleDate
	}
	return d.ReceivedAt
}

// EmbeddingText combines subject, metadata, and body into the text that gets
// embedded, so structured fields contribute to semantic matching.
func (d Document) EmbeddingText() string {
	parts := []string{"Subject: " + d.Subject}
	if !d.ReceivedAt.IsZero() {
		parts = append(parts, "Date: "+d.ReceivedAt.Format("2006-01-02"))
	}
	if d.Category != "" {
		parts = append(parts, "Category: "+d.Category)
	}
	if d.Author != "" {
		parts = append(parts, "Author: "+d.Author)
	}
	if len(d.Tickers) > 0 {
		parts = append(parts, "Tickers: "+strings.Join(d.Tickers, ", "))
	}
	if len(d.Topics) > 0 {
		parts = append(parts, "Topics: "+strings.Join(d.Topics, ", "))
	}
	if len(d.People) > 0 {
		parts = append(parts, "People: "+strings.Join(d.People, ", "))
	}
	parts = append(parts, "\n"+d.Body)
	return strings.Join(parts, "\n")
}

// Preview returns a shortened body for listings.
func (d Document) Preview(maxLen int) string {
	if len(d.Body) <= maxLen {
		return d.Body
	}
	return d.Body[:maxLen] + "..."
}
