package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("applied %d migrations, want 3", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestTablesExist(t *testing.T) {
	s := openTestStore(t)

	for _, table := range []string{"leads", "jobs", "blocks", "contact_lists"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master: %v", err)
		}
		if count != 1 {
			t.Errorf("table %s not found", table)
		}
	}
}

// --- Leads ---

func TestSaveAndGetLead(t *testing.T) {
	s := openTestStore(t)

	at := time.Date(2025, 6, 1, 10, 0, 0, 123456789, time.UTC)
	in := Lead{
		ContactID:     "971500000001",
		Handoff:       true,
		Status:        "Qualified",
		Tags:          []string{"buyer", "villa"},
		Notes:         "budget 2M",
		LastContacted: at,
		PreviousReply: "Great, when can you visit?",
	}
	if err := s.SaveLead(in, nil); err != nil {
		t.Fatalf("SaveLead: %v", err)
	}

	got, err := s.GetLead(in.ContactID)
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	if !got.Handoff {
		t.Error("Handoff = false, want true")
	}
	if got.Status != "Qualified" {
		t.Errorf("Status = %q, want %q", got.Status, "Qualified")
	}
	if len(got.Tags) != 2 || got.Tags[0] != "buyer" || got.Tags[1] != "villa" {
		t.Errorf("Tags = %v, want [buyer villa]", got.Tags)
	}
	if got.Notes != "budget 2M" {
		t.Errorf("Notes = %q, want %q", got.Notes, "budget 2M")
	}
	if !got.LastContacted.Equal(at) {
		t.Errorf("LastContacted = %v, want %v", got.LastContacted, at)
	}
	if got.PreviousReply != in.PreviousReply {
		t.Errorf("PreviousReply = %q, want %q", got.PreviousReply, in.PreviousReply)
	}
}

func TestSaveLead_Upsert(t *testing.T) {
	s := openTestStore(t)

	base := Lead{ContactID: "a", Status: "New Lead", LastContacted: time.Now()}
	if err := s.SaveLead(base, nil); err != nil {
		t.Fatalf("SaveLead: %v", err)
	}
	base.Status = "Very Qualified"
	base.Tags = nil
	if err := s.SaveLead(base, nil); err != nil {
		t.Fatalf("SaveLead (update): %v", err)
	}

	got, err := s.GetLead("a")
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	if got.Status != "Very Qualified" {
		t.Errorf("Status = %q, want %q", got.Status, "Very Qualified")
	}
	if got.Tags == nil || len(got.Tags) != 0 {
		t.Errorf("Tags = %#v, want empty non-nil slice", got.Tags)
	}

	leads, err := s.ListLeads()
	if err != nil {
		t.Fatalf("ListLeads: %v", err)
	}
	if len(leads) != 1 {
		t.Errorf("len(leads) = %d, want 1", len(leads))
	}
}

func TestGetLeadNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetLead("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveLead_SnapshotSeesAllLeads(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		l := Lead{ContactID: fmt.Sprintf("c%d", i), Status: "Cold", LastContacted: time.Now()}
		var seen []Lead
		err := s.SaveLead(l, func(all []Lead) error {
			seen = all
			return nil
		})
		if err != nil {
			t.Fatalf("SaveLead: %v", err)
		}
		if len(seen) != i+1 {
			t.Errorf("snapshot after %d saves saw %d leads", i+1, len(seen))
		}
	}
}

func TestSaveLead_SnapshotErrorRollsBack(t *testing.T) {
	s := openTestStore(t)

	boom := errors.New("disk full")
	err := s.SaveLead(Lead{ContactID: "x", Status: "Cold", LastContacted: time.Now()}, func([]Lead) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if _, err := s.GetLead("x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("lead persisted despite snapshot failure: err = %v", err)
	}
}

func TestListLeads_OrderedByLastContacted(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	s.SaveLead(Lead{ContactID: "old", Status: "Cold", LastContacted: now.Add(-time.Hour)}, nil)
	s.SaveLead(Lead{ContactID: "new", Status: "Cold", LastContacted: now}, nil)

	leads, err := s.ListLeads()
	if err != nil {
		t.Fatalf("ListLeads: %v", err)
	}
	if len(leads) != 2 || leads[0].ContactID != "new" {
		t.Errorf("ListLeads order = %v, want new first", leads)
	}
}

// --- Blocks ---

func TestBlockRoundTrip(t *testing.T) {
	s := openTestStore(t)

	exp := time.Now().UTC().Add(2 * time.Minute)
	if err := s.PutBlock(Block{ContactID: "b1", ExpiresAt: exp}); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	got, err := s.GetBlock("b1")
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if got.Permanent {
		t.Error("Permanent = true, want false")
	}
	if !got.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, exp)
	}

	if err := s.PutBlock(Block{ContactID: "b1", Permanent: true}); err != nil {
		t.Fatalf("PutBlock permanent: %v", err)
	}
	got, _ = s.GetBlock("b1")
	if !got.Permanent || !got.ExpiresAt.IsZero() {
		t.Errorf("after permanent block got %+v", got)
	}

	blocks, err := s.ListBlocks()
	if err != nil {
		t.Fatalf("ListBlocks: %v", err)
	}
	if len(blocks) != 1 {
		t.Errorf("len(blocks) = %d, want 1", len(blocks))
	}

	if err := s.DeleteBlock("b1"); err != nil {
		t.Fatalf("DeleteBlock: %v", err)
	}
	if err := s.DeleteBlock("b1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteBlock err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetBlock("b1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBlock after delete err = %v, want ErrNotFound", err)
	}
}

// --- Lists ---

func TestContactLists(t *testing.T) {
	s := openTestStore(t)

	added, err := s.AddToList(ListFlagged, "971500000001")
	if err != nil || !added {
		t.Fatalf("AddToList = %v, %v; want true, nil", added, err)
	}
	added, err = s.AddToList(ListFlagged, "971500000001")
	if err != nil || added {
		t.Errorf("duplicate AddToList = %v, %v; want false, nil", added, err)
	}
	s.AddToList(ListContacts, "971500000002")

	ok, err := s.InList(ListFlagged, "971500000001")
	if err != nil || !ok {
		t.Errorf("InList = %v, %v; want true", ok, err)
	}
	ok, _ = s.InList(ListFlagged, "971500000002")
	if ok {
		t.Error("contact from another list reported as flagged")
	}

	if err := s.RemoveFromList(ListFlagged, "971500000001"); err != nil {
		t.Fatalf("RemoveFromList: %v", err)
	}
	if err := s.RemoveFromList(ListFlagged, "971500000001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveFromList missing err = %v, want ErrNotFound", err)
	}
}

func TestReplaceList_PreservesOrder(t *testing.T) {
	s := openTestStore(t)

	s.AddToList(ListBroadcast, "stale")
	want := []string{"+971500000003", "+971500000001", "+971500000002"}
	if err := s.ReplaceList(ListBroadcast, want); err != nil {
		t.Fatalf("ReplaceList: %v", err)
	}
	got, err := s.ListMembers(ListBroadcast)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("ListMembers = %v, want %v", got, want)
	}
}

// --- Jobs ---

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j1", Type: "broadcast_text", PayloadJSON: `{"text":"hi"}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	got, err := s.ClaimNextJob([]string{"broadcast_text"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.Status != "running" {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", got.MaxAttempts)
	}

	again, err := s.ClaimNextJob([]string{"broadcast_text"})
	if err != nil {
		t.Fatalf("second ClaimNextJob: %v", err)
	}
	if again != nil {
		t.Errorf("running job claimed twice: %+v", again)
	}

	if err := s.CompleteJob("j1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	stored, err := s.GetJob("j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Status != "completed" {
		t.Errorf("Status = %q, want completed", stored.Status)
	}
}

func TestClaimNextJob_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ClaimNextJob([]string{"broadcast_text"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestClaimNextJob_RespectRunAfter(t *testing.T) {
	s := openTestStore(t)

	job := Job{ID: "j-future", Type: "broadcast_text", PayloadJSON: `{}`, RunAfter: time.Now().UTC().Add(time.Hour)}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	got, err := s.ClaimNextJob([]string{"broadcast_text"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for future run_after, got %+v", got)
	}
}

func TestFailJob_BackoffThenFailed(t *testing.T) {
	s := openTestStore(t)

	s.EnqueueJob(Job{ID: "j", Type: "t", PayloadJSON: `{}`, MaxAttempts: 2})
	s.ClaimNextJob([]string{"t"})

	if err := s.FailJob("j", "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	j, _ := s.GetJob("j")
	if j.Status != "pending" || j.Attempts != 1 || j.LastError != "boom" {
		t.Errorf("after first failure got status=%q attempts=%d err=%q", j.Status, j.Attempts, j.LastError)
	}
	if !j.RunAfter.After(time.Now()) {
		t.Errorf("RunAfter = %v, want in the future", j.RunAfter)
	}

	if err := s.FailJob("j", "boom again"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	j, _ = s.GetJob("j")
	if j.Status != "failed" {
		t.Errorf("Status = %q, want failed", j.Status)
	}

	if err := s.FailJob("nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FailJob missing err = %v, want ErrNotFound", err)
	}
}

func TestListJobs(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		s.EnqueueJob(Job{ID: fmt.Sprintf("j%d", i), Type: "t", PayloadJSON: `{}`})
	}
	jobs, err := s.ListJobs(2)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("len(jobs) = %d, want 2", len(jobs))
	}
}

func TestSaveLead_CommitFailureRestoresSnapshot(t *testing.T) {
	s := openTestStore(t)

	var snapshots [][]Lead
	record := func(all []Lead) error {
		snapshots = append(snapshots, all)
		return nil
	}
	if err := s.SaveLead(Lead{ContactID: "a", Status: "Cold", LastContacted: time.Now()}, record); err != nil {
		t.Fatalf("SaveLead(a): %v", err)
	}

	boom := errors.New("disk I/O error")
	s.commit = func(*sql.Tx) error { return boom }
	err := s.SaveLead(Lead{ContactID: "b", Status: "Hot", LastContacted: time.Now()}, record)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	s.commit = nil

	if _, err := s.GetLead("b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetLead(b) err = %v, want ErrNotFound", err)
	}
	if len(snapshots) != 3 {
		t.Fatalf("snapshot written %d times, want 3", len(snapshots))
	}
	last := snapshots[2]
	if len(last) != 1 || last[0].ContactID != "a" {
		t.Errorf("restored snapshot = %+v, want only a", last)
	}
}
