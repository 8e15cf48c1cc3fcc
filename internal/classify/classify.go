// Package classify decides whether an incoming alert is a stub placeholder
// or a complete article, and extracts the story identifier and metadata
// block reconciliation and ranking depend on.
package classify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gchatrian/BLOOMBERG-RAG/internal/mail"
)

// ErrMalformedItem reports a RawItem missing required identifying fields.
// It is fatal only to that single item.
var ErrMalformedItem = errors.New("malformed item")

// Verdict is the classification outcome for one item.
type Verdict string

const (
	VerdictStub     Verdict = "stub"
	VerdictComplete Verdict = "complete"
)

// Result is the immutable classification of one RawItem.
type Result struct {
	Verdict   Verdict
	StoryID   string // "" when no story-sharing URL was found
	Metadata  Metadata
	CleanBody string
}

// Classifier applies the stub/complete decision rule. Thresholds are
// configuration, not constants, so the policy can be tuned independently of
// the extraction logic.
type Classifier struct {
	minCompleteLength int
	proseThreshold    int
}

const (
	DefaultMinCompleteLength = 500
	DefaultProseThreshold    = 200
)

// stub marker substrings; both must appear for the marker rule to fire.
const (
	alertMarker  = "alert:"
	sourceMarker = "source:"
)

// NewClassifier creates a Classifier. Non-positive thresholds fall back to
// the defaults.
func NewClassifier(minCompleteLength, proseThreshold int) *Classifier {
	if minCompleteLength <= 0 {
		minCompleteLength = DefaultMinCompleteLength
	}
	if proseThreshold <= 0 {
		proseThreshold = DefaultProseThreshold
	}
	return &Classifier{
		minCompleteLength: minCompleteLength,
		proseThreshold:    proseThreshold,
	}
}

// Classify cleans the item body and applies the decision rule, first match
// wins:
//
//  1. both stub markers present anywhere -> stub
//  2. short stripped body + story URL with no substantial prose before
//     it -> stub
//  3. otherwise -> complete
//
// Extraction failures degrade to zero values; the only error is a
// structurally invalid item.
func (c *Classifier) Classify(item mail.RawItem) (*Result, error) {
	if item.ID == "" {
		return nil, fmt.Errorf("%w: missing external id", ErrMalformedItem)
	}
	if item.ReceivedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing received timestamp", ErrMalformedItem)
	}

	cleaned := CleanBody(item.Body)
	storyID := ExtractStoryID(item.Body)
	if storyID == "" {
		storyID = ExtractStoryID(cleaned)
	}

	res := &Result{
		StoryID:   storyID,
		CleanBody: cleaned,
		Metadata: Metadata{
			Category: extractCategory(item.Subject),
			StoryID:  storyID,
			Topics:   extractSection(cleaned, "Topics"),
			People:   extractSection(cleaned, "People"),
			Tickers:  extractSection(cleaned, "Tickers"),
		},
	}

	if c.isStub(cleaned, storyID) {
		res.Verdict = VerdictStub
		return res, nil
	}

	res.Verdict = VerdictComplete
	res.Metadata.Author = extractAuthor(cleaned)
	res.Metadata.ArticleDate = extractArticleDate(cleaned)
	return res, nil
}

func (c *Classifier) isStub(cleaned, storyID string) bool {
	lower := strings.ToLower(cleaned)
	if strings.Contains(lower, alertMarker) && strings.Contains(lower, sourceMarker) {
		return true
	}

	if storyID == "" {
		return false
	}

	stripped := strings.TrimSpace(cleaned[:firstMetadataMarker(cleaned)])
	if len(stripped) >= c.minCompleteLength {
		return false
	}

	// A short body whose story URL is preceded by real prose is a terse but
	// complete article, not a placeholder.
	return c.proseBeforeURL(cleaned) < c.proseThreshold
}

// proseBeforeURL measures the substantial text preceding the first story URL.
func (c *Classifier) proseBeforeURL(cleaned string) int {
	loc := storyIDPattern.FindStringIndex(cleaned)
	if loc == nil {
		return len(cleaned)
	}
	before := strings.TrimSpace(cleaned[:loc[0]])
	return len(before)
}
