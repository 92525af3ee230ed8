package lead

import (
	"fmt"
	"strings"
	"time"
)

// Zone is the fixed UTC+4 offset operators read timestamps in.
var Zone = time.FixedZone("UTC+4", 4*60*60)

const displayLayout = "020106 15:04:05"

var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses a stored timestamp. Values without a zone are UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// FormatLastContacted renders raw as "DDMMYY HH:MM:SS (N units ago)" in
// UTC+4, or "Unknown" when raw cannot be parsed.
func FormatLastContacted(raw string, now time.Time) string {
	t, err := ParseTimestamp(raw)
	if err != nil {
		return "Unknown"
	}
	return FormatSince(t, now)
}

// FormatSince is FormatLastContacted for an already parsed time. The zero
// time renders as "Unknown".
func FormatSince(t, now time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return fmt.Sprintf("%s (%s)", t.In(Zone).Format(displayLayout), ago(now.Sub(t)))
}

// ago uses the coarsest non-zero unit. Future times clamp to zero seconds.
func ago(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	mins := secs / 60
	hours := mins / 60
	switch {
	case hours > 0:
		return plural(hours, "hour") + " ago"
	case mins > 0:
		return plural(mins, "minute") + " ago"
	default:
		return plural(secs, "second") + " ago"
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
