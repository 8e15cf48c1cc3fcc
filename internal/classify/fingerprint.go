package classify

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	// DefaultFingerprintBucket tolerates a few minutes of clock skew between
	// the stub's and the complete article's delivery times.
	DefaultFingerprintBucket = 5 * time.Minute

	maxFingerprintSubject = 80
)

// Fingerprinter derives the fallback reconciliation key used when no story
// id is available: a normalized subject plus a coarse receipt-time bucket.
type Fingerprinter struct {
	bucket time.Duration
}

// NewFingerprinter creates a Fingerprinter with the given time bucket.
// A non-positive bucket falls back to the default.
func NewFingerprinter(bucket time.Duration) *Fingerprinter {
	if bucket <= 0 {
		bucket = DefaultFingerprintBucket
	}
	return &Fingerprinter{bucket: bucket}
}

// Fingerprint returns a stable key for the subject and receipt time.
// Identical subjects received within the same bucket produce identical keys
// across process restarts.
func (f *Fingerprinter) Fingerprint(subject string, receivedAt time.Time) string {
	norm := normalizeSubject(subject)
	bucket := receivedAt.UTC().Truncate(f.bucket).Unix()
	return fmt.Sprintf("%s_%d", norm, bucket)
}

// normalizeSubject lowercases, drops punctuation, and collapses whitespace
// runs to single underscores, truncating to a bounded length.
func normalizeSubject(subject string) string {
	var b strings.Builder
	lastUnderscore := true // suppress leading separator
	for _, r := range strings.ToLower(subject) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		case unicode.IsSpace(r) && !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
		if b.Len() >= maxFingerprintSubject {
			break
		}
	}
	return strings.TrimRight(b.String(), "_")
}
