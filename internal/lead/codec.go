package lead

import (
	"fmt"
	"log/slog"
	"strings"
)

// Keys the engine owns. Models echo them back from the memory preamble, so
// they are recognized and dropped.
var ignoredKeys = map[string]bool{
	"last contacted":      true,
	"last_contacted":      true,
	"my previous response": true,
	"previous_reply":      true,
}

// ParseReply splits a raw model reply into the metadata declared by its
// leading run of "[key: value]" lines and the remaining user-visible text.
// Only the leading run counts; bracketed lines after the first free-text line
// belong to the reply. ParseReply never fails.
func ParseReply(raw string) (Metadata, string) {
	meta := DefaultMetadata()
	lines := strings.Split(strings.TrimSpace(raw), "\n")

	// A reply made only of metadata lines yields an empty reply so nothing
	// is sent; older deployments echoed the whole raw text back instead.
	start := len(lines)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !isBracketLine(trimmed) {
			start = i
			break
		}
		key, value, ok := strings.Cut(trimmed[1:len(trimmed)-1], ":")
		if !ok {
			slog.Warn("skipping metadata line without colon", "line", trimmed)
			continue
		}
		applyField(&meta, strings.ToLower(strings.TrimSpace(key)), strings.TrimSpace(value))
	}

	reply := strings.TrimSpace(strings.Join(lines[start:], "\n"))
	return meta, reply
}

func isBracketLine(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
}

func applyField(m *Metadata, key, value string) {
	switch key {
	case "handoff":
		m.Handoff = strings.EqualFold(value, "true")
	case "status":
		m.Status = value
	case "tags":
		m.Tags = splitTags(value)
	case "notes":
		m.Notes = value
	default:
		if !ignoredKeys[key] {
			slog.Debug("ignoring unknown metadata key", "key", key)
		}
	}
}

func splitTags(value string) []string {
	tags := []string{}
	for _, t := range strings.Split(value, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// FormatPreamble renders the memory block sent ahead of a contact's message.
// It uses the same bracket syntax ParseReply reads.
func FormatPreamble(r Record, lastContacted string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[status: %s]\n", r.Status)
	fmt.Fprintf(&b, "[tags: %s]\n", strings.Join(r.Tags, ", "))
	fmt.Fprintf(&b, "[notes: %s]\n", oneLine(r.Notes))
	fmt.Fprintf(&b, "[last contacted: %s]\n", lastContacted)
	fmt.Fprintf(&b, "[my previous response: %s]\n", oneLine(r.PreviousReply))
	return b.String()
}

// oneLine keeps multi-line values inside a single bracket line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
