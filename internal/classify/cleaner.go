package classify

import (
	"net/url"
	"regexp"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// boilerplate lines stripped from alert bodies before classification.
var boilerplatePatterns = []string{
	"External Email",
	"EXTERNAL:",
	"This message originated outside",
	"To unsubscribe",
	"Privacy Policy",
	"Terms of Service",
	"Click here to unsubscribe",
	"Manage your email preferences",
}

// encodingFixes repairs UTF-8 bytes that were decoded as Latin-1 upstream.
var encodingFixes = []struct{ bad, good string }{
	{"â", "'"},
	{"â", `"`},
	{"â", `"`},
	{"â", "—"},
	{"â", "–"},
	{"â¢", "•"},
	{"â¦", "..."},
	{"Â", ""},
	{"Ã©", "é"},
	{"Ã¨", "è"},
	{"Ã ", "à"},
}

var (
	headerLinePattern = regexp.MustCompile(`(?mi)^(From|To|Subject|Date|Sent):.*$`)
	blankRunPattern   = regexp.MustCompile(`\n{3,}`)
	spaceRunPattern   = regexp.MustCompile(`[ \t]+`)
)

// cleanBaseURL anchors readability's relative-link resolution; alert bodies
// never carry meaningful relative URLs.
var cleanBaseURL, _ = url.Parse("https://localhost/")

// CleanBody converts a raw alert body to plain text: HTML is stripped via
// readability, boilerplate lines and forwarding headers are removed, mangled
// encodings repaired, and whitespace normalized.
func CleanBody(raw string) string {
	text := raw
	if looksLikeHTML(raw) {
		if article, err := readability.FromReader(strings.NewReader(raw), cleanBaseURL); err == nil {
			if t := strings.TrimSpace(article.TextContent); t != "" {
				text = t
			}
		}
	}

	text = stripBoilerplate(text)
	for _, fix := range encodingFixes {
		text = strings.ReplaceAll(text, fix.bad, fix.good)
	}
	text = headerLinePattern.ReplaceAllString(text, "")
	text = normalizeWhitespace(text)
	return text
}

func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "<html") ||
		strings.Contains(lower, "<body") ||
		strings.Contains(lower, "<div") ||
		strings.Contains(lower, "<table")
}

func stripBoilerplate(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		drop := false
		for _, p := range boilerplatePatterns {
			if strings.Contains(line, p) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spaceRunPattern.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	text = strings.Join(lines, "\n")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
