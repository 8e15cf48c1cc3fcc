package classify

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Metadata is the structured block extracted from an alert body. Every field
// is optional; extraction failures leave zero values, never errors.
type Metadata struct {
	Author      string
	ArticleDate time.Time // zero when no explicit date was found
	Topics      []string
	People      []string
	Tickers     []string
	Category    string
	StoryID     string
}

// Bloomberg newsletter category codes found in subject lines.
var categories = []string{"BFW", "BI", "BBF", "BNEF"}

var (
	storyIDPattern = regexp.MustCompile(`(?i)bloomberg\.com/news/articles/([A-Z0-9-]+)`)
	authorPattern  = regexp.MustCompile(`(?i)\bBy\s+([A-Z][a-z]+\s+[A-Z][a-z]+(?:\s+and\s+[A-Z][a-z]+\s+[A-Z][a-z]+)?)`)

	// Explicit date formats searched near the top of the body, in priority
	// order: "January 15, 2024", "15 January 2024", "2024-01-15".
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)[A-Z][a-z]+\s+\d{1,2},?\s+\d{4}`),
		regexp.MustCompile(`(?i)\d{1,2}\s+[A-Z][a-z]+\s+\d{4}`),
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	}

	sectionNames          = []string{"Topics", "People", "Tickers"}
	nextSectionPattern    = regexp.MustCompile(`(?mi)^\s*(People|Topics|Tickers|Alert|Source)\s*:?\s*$`)
	sectionHeaderPatterns = map[string]*regexp.Regexp{}
)

func init() {
	for _, name := range append(append([]string{}, sectionNames...), "Alert", "Source") {
		sectionHeaderPatterns[name] = regexp.MustCompile(`(?mi)^\s*` + name + `\s*:?\s*$`)
	}
}

const (
	authorSearchWindow = 1000
	dateSearchWindow   = 2000
)

// ExtractStoryID returns the story identifier from the first recognized
// story-sharing URL in the body, or "" if none is present.
func ExtractStoryID(body string) string {
	m := storyIDPattern.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return m[1]
}

// extractAuthor looks for a "By <Name>" pattern near the top of the body.
func extractAuthor(body string) string {
	window := body
	if len(window) > authorSearchWindow {
		window = window[:authorSearchWindow]
	}
	m := authorPattern.FindStringSubmatch(window)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractArticleDate returns an explicitly stated date near the top of the
// body, or the zero time if none parses.
func extractArticleDate(body string) time.Time {
	window := body
	if len(window) > dateSearchWindow {
		window = window[:dateSearchWindow]
	}
	for _, p := range datePatterns {
		for _, candidate := range p.FindAllString(window, 3) {
			if t, err := dateparse.ParseAny(candidate); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// extractCategory matches a known category code in the subject.
func extractCategory(subject string) string {
	upper := strings.ToUpper(subject)
	for _, c := range categories {
		if strings.Contains(upper, c) {
			return c
		}
	}
	return ""
}

// extractSection parses a trailing metadata section such as:
//
//	Topics:
//	AI, Technology
//	Regulation
//
// Items are split on newlines and commas. A missing section yields nil.
func extractSection(body, name string) []string {
	header := sectionHeaderPatterns[name]
	loc := header.FindStringIndex(body)
	if loc == nil {
		return nil
	}

	rest := body[loc[1]:]
	if next := nextSectionPattern.FindStringIndex(rest); next != nil {
		rest = rest[:next[0]]
	}

	var items []string
	seen := map[string]struct{}{}
	for _, line := range strings.Split(strings.TrimSpace(rest), "\n") {
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			key := strings.ToLower(part)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			items = append(items, part)
		}
	}
	return items
}

// firstMetadataMarker returns the byte offset of the earliest metadata or
// stub marker line, or len(body) when none exists.
func firstMetadataMarker(body string) int {
	earliest := len(body)
	for _, p := range sectionHeaderPatterns {
		if loc := p.FindStringIndex(body); loc != nil && loc[0] < earliest {
			earliest = loc[0]
		}
	}
	return earliest
}
