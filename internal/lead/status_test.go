package lead

import "testing"

func TestEscalated(t *testing.T) {
	tests := []struct {
		prev, next Status
		want       bool
	}{
		{"Cold", "New Lead", true},
		{"New Lead", "Qualified", true},
		{"New Lead", "Very Qualified", true},
		{"Qualified", "Cold", false},
		{"Qualified", "Qualified", false},
		{"Bogus", "Cold", false},
		{"Cold", "Unreachable", false},
		{"", "Qualified", false},
	}
	for _, tt := range tests {
		if got := Escalated(tt.prev, tt.next); got != tt.want {
			t.Errorf("Escalated(%q, %q) = %v, want %v", tt.prev, tt.next, got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in     string
		want   Status
		wantOK bool
	}{
		{"Qualified", StatusQualified, true},
		{"very qualified", StatusVeryQualified, true},
		{"  new lead ", StatusNewLead, true},
		{"COLD", StatusCold, true},
		{"Unreachable", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseStatus(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseStatus(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestMerge(t *testing.T) {
	prior := Record{Status: StatusQualified, Tags: []string{"old"}, Notes: "old", PreviousReply: "p"}

	got := Merge(prior, true, Metadata{Status: "Unreachable", Tags: []string{"new"}, Notes: "new"})
	if got.Status != StatusQualified {
		t.Errorf("invalid status on existing record: Status = %q, want Qualified", got.Status)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "new" || got.Notes != "new" {
		t.Errorf("tags/notes not replaced: %+v", got)
	}
	if got.PreviousReply != "p" {
		t.Errorf("PreviousReply = %q, want untouched", got.PreviousReply)
	}

	got = Merge(Default(), false, Metadata{Status: "garbage"})
	if got.Status != StatusNewLead {
		t.Errorf("invalid status on new record: Status = %q, want New Lead", got.Status)
	}

	got = Merge(prior, true, Metadata{Status: "very qualified", Handoff: true})
	if got.Status != StatusVeryQualified || !got.Handoff {
		t.Errorf("got %+v, want Very Qualified with handoff", got)
	}
}
