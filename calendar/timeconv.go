package calendar

import (
	"fmt"
	"strings"
	"time"
)

// ISOLayout renders instants at the HTTP boundary. Fractional seconds appear
// only when present.
const ISOLayout = "2006-01-02T15:04:05.999999Z07:00"

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp. Values without an offset are UTC.
// The result is always in UTC.
func ParseTime(s string) (time.Time, error) {
	s = restoreOffsetSign(strings.TrimSpace(s))
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", s)
}

// FormatTime renders t in UTC with a Z suffix.
func FormatTime(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// restoreOffsetSign undoes form decoding of "+hh:mm" or "+hhmm" into a
// leading space in unescaped query strings.
func restoreOffsetSign(s string) string {
	if i := len(s) - 6; i > 10 && s[i] == ' ' && s[i+3] == ':' && strings.Contains(s[:i], "T") {
		return s[:i] + "+" + s[i+1:]
	}
	if i := len(s) - 5; i > 10 && s[i] == ' ' && isDigits(s[i+1:]) && strings.Contains(s[:i], "T") {
		return s[:i] + "+" + s[i+1:]
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
