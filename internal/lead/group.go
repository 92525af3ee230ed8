package lead

import "time"

// Entry pairs a contact id with its record for listing.
type Entry struct {
	ContactID string `json:"contact_id"`
	Record
}

// Overview buckets leads by status, split by how recently they were contacted.
type Overview struct {
	Recent map[Status][]Entry `json:"recent"`
	Older  map[Status][]Entry `json:"older"`
}

// Group splits entries into those contacted within window of now and the rest.
// Records with an unknown status are counted as Cold.
func Group(entries []Entry, now time.Time, window time.Duration) Overview {
	ov := Overview{Recent: map[Status][]Entry{}, Older: map[Status][]Entry{}}
	cutoff := now.Add(-window)
	for _, e := range entries {
		st, ok := ParseStatus(string(e.Status))
		if !ok {
			st = StatusCold
		}
		if !e.LastContacted.IsZero() && !e.LastContacted.Before(cutoff) {
			ov.Recent[st] = append(ov.Recent[st], e)
		} else {
			ov.Older[st] = append(ov.Older[st], e)
		}
	}
	return ov
}
