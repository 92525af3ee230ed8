package lead

import (
	"strings"
	"testing"
)

func TestParseReply_NoMetadata(t *testing.T) {
	raw := "  Hello! How can I help you today?\n"
	meta, reply := ParseReply(raw)

	if reply != strings.TrimSpace(raw) {
		t.Errorf("reply = %q, want %q", reply, strings.TrimSpace(raw))
	}
	if meta.Handoff {
		t.Error("Handoff = true, want false")
	}
	if meta.Status != "New Lead" {
		t.Errorf("Status = %q, want %q", meta.Status, "New Lead")
	}
	if meta.Tags == nil || len(meta.Tags) != 0 {
		t.Errorf("Tags = %#v, want empty", meta.Tags)
	}
	if meta.Notes != "" {
		t.Errorf("Notes = %q, want empty", meta.Notes)
	}
}

func TestParseReply_FullBlock(t *testing.T) {
	raw := "[handoff: false]\n[status: New Lead]\n[tags: rent, 2BR]\n[notes: budget 100k]\nHi! What area?"
	meta, reply := ParseReply(raw)

	if reply != "Hi! What area?" {
		t.Errorf("reply = %q, want %q", reply, "Hi! What area?")
	}
	if meta.Status != "New Lead" {
		t.Errorf("Status = %q", meta.Status)
	}
	if strings.Join(meta.Tags, "|") != "rent|2BR" {
		t.Errorf("Tags = %v, want [rent 2BR]", meta.Tags)
	}
	if meta.Notes != "budget 100k" {
		t.Errorf("Notes = %q, want %q", meta.Notes, "budget 100k")
	}
}

func TestParseReply_OnlyLeadingRunCounts(t *testing.T) {
	raw := "[status: Qualified]\nSure.\n[status: Cold]\nBye"
	meta, reply := ParseReply(raw)

	if meta.Status != "Qualified" {
		t.Errorf("Status = %q, want Qualified", meta.Status)
	}
	if reply != "Sure.\n[status: Cold]\nBye" {
		t.Errorf("reply = %q", reply)
	}
}

func TestParseReply_Handoff(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"True", true},
		{"false", false},
		{"yes", false},
		{"", false},
	}
	for _, tt := range tests {
		meta, _ := ParseReply("[handoff: " + tt.value + "]\nok")
		if meta.Handoff != tt.want {
			t.Errorf("handoff %q: got %v, want %v", tt.value, meta.Handoff, tt.want)
		}
	}
}

func TestParseReply_Tags(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"a, ,b,,", "a|b"},
		{"", ""},
		{"  Saadiyat ,villa, rent ", "Saadiyat|villa|rent"},
		{"x, x", "x|x"},
	}
	for _, tt := range tests {
		meta, _ := ParseReply("[tags: " + tt.value + "]\nok")
		if got := strings.Join(meta.Tags, "|"); got != tt.want {
			t.Errorf("tags %q: got %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestParseReply_SplitsOnFirstColon(t *testing.T) {
	meta, _ := ParseReply("[notes: viewing at 10:30, call back]\nok")
	if meta.Notes != "viewing at 10:30, call back" {
		t.Errorf("Notes = %q", meta.Notes)
	}
}

func TestParseReply_KeysCaseInsensitive(t *testing.T) {
	meta, _ := ParseReply("[ STATUS : Very Qualified]\n[Handoff: true]\nok")
	if meta.Status != "Very Qualified" {
		t.Errorf("Status = %q", meta.Status)
	}
	if !meta.Handoff {
		t.Error("Handoff = false, want true")
	}
}

func TestParseReply_MalformedLineSkipped(t *testing.T) {
	meta, reply := ParseReply("[status: Qualified]\n[no colon here]\n[notes: n]\nHello")
	if meta.Status != "Qualified" || meta.Notes != "n" {
		t.Errorf("meta = %+v, want status Qualified and notes n", meta)
	}
	if reply != "Hello" {
		t.Errorf("reply = %q, want Hello", reply)
	}
}

func TestParseReply_IgnoresEchoedAndUnknownKeys(t *testing.T) {
	raw := "[last contacted: 010625 10:00:00 (1 hour ago)]\n[my previous response: hi]\n[mood: happy]\n[status: Cold]\nok"
	meta, reply := ParseReply(raw)
	if meta.Status != "Cold" {
		t.Errorf("Status = %q, want Cold", meta.Status)
	}
	if reply != "ok" {
		t.Errorf("reply = %q, want ok", reply)
	}
}

func TestParseReply_AllMetadata(t *testing.T) {
	meta, reply := ParseReply("[handoff: true]\n[status: Qualified]")
	if reply != "" {
		t.Errorf("reply = %q, want empty", reply)
	}
	if !meta.Handoff || meta.Status != "Qualified" {
		t.Errorf("meta = %+v", meta)
	}
}

func TestParseReply_Empty(t *testing.T) {
	meta, reply := ParseReply("")
	if reply != "" {
		t.Errorf("reply = %q, want empty", reply)
	}
	if meta.Status != "New Lead" {
		t.Errorf("Status = %q, want New Lead", meta.Status)
	}
}

func TestFormatPreamble_RoundTrips(t *testing.T) {
	r := Record{
		Status:        StatusQualified,
		Tags:          []string{"rent", "2BR"},
		Notes:         "budget 100k\nprefers Reem",
		PreviousReply: "What area?",
	}
	pre := FormatPreamble(r, "010625 14:00:00 (2 hours ago)")

	meta, reply := ParseReply(pre + "\nAhmed: hi")
	if reply != "Ahmed: hi" {
		t.Errorf("reply = %q, want %q", reply, "Ahmed: hi")
	}
	if meta.Status != "Qualified" {
		t.Errorf("Status = %q", meta.Status)
	}
	if strings.Join(meta.Tags, "|") != "rent|2BR" {
		t.Errorf("Tags = %v", meta.Tags)
	}
	if meta.Notes != "budget 100k prefers Reem" {
		t.Errorf("Notes = %q", meta.Notes)
	}
	if !strings.Contains(pre, "[my previous response: What area?]") {
		t.Errorf("preamble missing previous response:\n%s", pre)
	}
}
