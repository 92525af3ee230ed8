// Package lead holds the qualification state of a single contact and the
// pure functions that parse, compare and render it.
package lead

import "time"

// Status is the qualification stage of a lead.
type Status string

const (
	StatusCold          Status = "Cold"
	StatusNewLead       Status = "New Lead"
	StatusQualified     Status = "Qualified"
	StatusVeryQualified Status = "Very Qualified"
)

// Record is the persisted state of one contact.
type Record struct {
	Handoff       bool      `json:"handoff"`
	Status        Status    `json:"status"`
	Tags          []string  `json:"tags"`
	Notes         string    `json:"notes"`
	LastContacted time.Time `json:"last_contacted"`
	PreviousReply string    `json:"previous_reply"`
}

// Default is the record reported for a contact the store has never seen.
func Default() Record {
	return Record{Status: StatusCold, Tags: []string{}}
}

// Metadata is what the model declared about the lead in one reply. Status is
// kept verbatim and validated only when merged into a Record.
type Metadata struct {
	Handoff bool
	Status  string
	Tags    []string
	Notes   string
}

// DefaultMetadata is returned for replies that declare nothing.
func DefaultMetadata() Metadata {
	return Metadata{Status: string(StatusNewLead), Tags: []string{}}
}

// Merge applies m on top of prior. Handoff, tags and notes are replaced
// wholesale. An unrecognized status keeps the prior status, or New Lead when
// the contact had no record.
func Merge(prior Record, existed bool, m Metadata) Record {
	out := prior
	out.Handoff = m.Handoff
	out.Notes = m.Notes
	out.Tags = append([]string{}, m.Tags...)

	if st, ok := ParseStatus(m.Status); ok {
		out.Status = st
	} else if !existed {
		out.Status = StatusNewLead
	}
	return out
}
