package notify

import "strings"

// splitMessage breaks text into chunks of at most maxRunes, preferring to cut
// after a newline in the back half of a chunk.
func splitMessage(text string, maxRunes int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return []string{text}
	}

	var out []string
	for start := 0; start < len(runes); {
		end := start + maxRunes
		if end >= len(runes) {
			out = append(out, strings.TrimSpace(string(runes[start:])))
			break
		}
		split := end
		for i := end; i > start+maxRunes/2; i-- {
			if runes[i-1] == '\n' {
				split = i
				break
			}
		}
		if chunk := strings.TrimSpace(string(runes[start:split])); chunk != "" {
			out = append(out, chunk)
		}
		start = split
	}
	return out
}
