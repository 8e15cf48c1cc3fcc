package feed

import (
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/gchatrian/BLOOMBERG-RAG/internal/mail"
)

const maxPerFeed = 50

// Source is a single feed to poll.
type Source struct {
	URL  string
	Name string
}

// Fetcher pulls RSS/Atom feed entries into the mail intake format so they
// flow through the same classification pipeline as delivered messages.
type Fetcher struct {
	sources []Source
	parser  *gofeed.Parser
}

// NewFetcher creates a fetcher for the given sources.
func NewFetcher(sources []Source) *Fetcher {
	return &Fetcher{sources: sources, parser: gofeed.NewParser()}
}

// FetchAll polls every source and returns items published within daysBack.
// Per-feed failures are logged and skipped.
func (f *Fetcher) FetchAll(daysBack int) []mail.RawItem {
	cutoff := time.Now().AddDate(0, 0, -daysBack)
	var all []mail.RawItem

	for _, src := range f.sources {
		name := src.Name
		if name == "" {
			name = sourceName(src.URL)
		}
		items, err := f.fetch(src.URL, cutoff)
		if err != nil {
			log.Printf("Failed to parse feed %s: %v", src.URL, err)
			continue
		}
		all = append(all, items...)
		log.Printf("Parsed %d entries from %s (within %d days)", len(items), name, daysBack)
	}
	return all
}

func (f *Fetcher) fetch(feedURL string, cutoff time.Time) ([]mail.RawItem, error) {
	parsed, err := f.parser.ParseURL(feedURL)
	if err != nil {
		return nil, err
	}

	var items []mail.RawItem
	for _, entry := range parsed.Items {
		if len(items) >= maxPerFeed {
			break
		}
		item := convertEntry(entry)
		if item == nil {
			continue
		}
		if item.ReceivedAt.Before(cutoff) {
			continue
		}
		items = append(items, *item)
	}
	return items, nil
}

func convertEntry(entry *gofeed.Item) *mail.RawItem {
	subject := strings.TrimSpace(entry.Title)
	if subject == "" {
		return nil
	}

	id := entry.GUID
	if id == "" {
		id = entry.Link
	}
	if id == "" {
		id = uuid.New().String()
	}
	id = safeID(id)

	received := time.Now()
	if entry.PublishedParsed != nil {
		received = *entry.PublishedParsed
	} else if entry.UpdatedParsed != nil {
		received = *entry.UpdatedParsed
	}

	body := entry.Content
	if body == "" {
		body = entry.Description
	}
	if entry.Link != "" {
		body += "\n\n" + entry.Link
	}

	return &mail.RawItem{
		ID:         id,
		Subject:    subject,
		Body:       body,
		ReceivedAt: received,
	}
}

// safeID turns a GUID or URL into an identifier usable as a mail store id.
// Deterministic, so re-fetching the same entry yields the same id.
func safeID(raw string) string {
	raw = strings.TrimPrefix(raw, "https://")
	raw = strings.TrimPrefix(raw, "http://")
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	id := strings.Trim(b.String(), "-")
	if len(id) > 120 {
		id = id[:120]
	}
	if id == "" {
		return uuid.New().String()
	}
	return id
}

func sourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}
	if host == "" {
		return feedURL
	}
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		host = parts[len(parts)-2]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
