package lead

import "strings"

// scale is the escalation order. Later entries are warmer leads.
var scale = []Status{StatusCold, StatusNewLead, StatusQualified, StatusVeryQualified}

// ParseStatus matches s case-insensitively against the known statuses and
// returns the canonical spelling.
func ParseStatus(s string) (Status, bool) {
	s = strings.TrimSpace(s)
	for _, st := range scale {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return "", false
}

func rank(s Status) int {
	for i, st := range scale {
		if st == s {
			return i
		}
	}
	return -1
}

// Escalated reports whether moving from prev to next climbs the scale. An
// unknown status on either side never counts as an escalation.
func Escalated(prev, next Status) bool {
	p, n := rank(prev), rank(next)
	if p < 0 || n < 0 {
		return false
	}
	return n > p
}

// Statuses returns the scale from coldest to warmest.
func Statuses() []Status {
	return append([]Status(nil), scale...)
}
