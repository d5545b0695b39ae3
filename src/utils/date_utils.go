package utils

import (
	"fmt"
	"strings"
	"time"
)

// DefaultDateFormat is the canonical date representation used everywhere
// in the system: transaction rows, fingerprints, snapshots.
const DefaultDateFormat = "2006-01-02"

// acceptedDateFormats covers the spellings seen across manual paste, CSV
// exports and provider statements.
var acceptedDateFormats = []string{
	DefaultDateFormat,
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"01/02/06",
}

// ParseDate parses a date string in any accepted format.
func ParseDate(dateStr string) (time.Time, error) {
	s := strings.TrimSpace(dateStr)
	if len(s) >= 10 && s[4] == '-' && s[7] == '-' {
		// ISO timestamps reduce to their date part.
		s = s[:10]
	}
	for _, format := range acceptedDateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", dateStr)
}

// NormalizeDate reduces a date string to YYYY-MM-DD. The second return
// value reports whether the input parsed; callers that must stay total
// (fingerprinting) fall back to the trimmed input.
func NormalizeDate(dateStr string) (string, bool) {
	t, err := ParseDate(dateStr)
	if err != nil {
		return strings.TrimSpace(dateStr), false
	}
	return t.Format(DefaultDateFormat), true
}
