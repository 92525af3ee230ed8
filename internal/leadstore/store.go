// Package leadstore persists lead records and per-contact conversation
// history. Records live in SQLite for keyed access and are mirrored to a JSON
// snapshot file that is rewritten in full on every write.
package leadstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/kalambet/leadbot/internal/lead"
	"github.com/kalambet/leadbot/internal/storage"
)

// SnapshotFile is the name of the JSON mirror inside the data directory.
const SnapshotFile = "user_metadata.json"

// ErrInvalidContactID is returned for ids that cannot safely name a file.
var ErrInvalidContactID = errors.New("invalid contact id")

var contactIDPattern = regexp.MustCompile(`^[A-Za-z0-9+_-][A-Za-z0-9+_.-]{0,63}$`)

// ValidateContactID rejects ids that are empty, too long or could escape the
// history directory.
func ValidateContactID(id string) error {
	if !contactIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidContactID, id)
	}
	return nil
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store is the durable home of lead records and history logs.
type Store struct {
	db    *storage.Store
	dir   string
	clock Clock

	// mu serializes Put so the snapshot always reflects the latest row set.
	mu sync.Mutex
	// historyMu guards appends to history files.
	historyMu sync.Mutex
}

// New creates a Store backed by db that keeps its files under dataDir.
func New(db *storage.Store, dataDir string) *Store {
	return NewWithClock(db, dataDir, realClock{})
}

// NewWithClock creates a Store with a custom clock (for testing).
func NewWithClock(db *storage.Store, dataDir string, clock Clock) *Store {
	return &Store{db: db, dir: dataDir, clock: clock}
}

// SnapshotPath returns the location of the JSON mirror.
func (s *Store) SnapshotPath() string {
	return filepath.Join(s.dir, SnapshotFile)
}

// Get returns the stored record for contactID, or the Cold default when there
// is none. Read errors are logged and also yield the default.
func (s *Store) Get(ctx context.Context, contactID string) lead.Record {
	r, _, err := s.Lookup(ctx, contactID)
	if err != nil {
		slog.Warn("reading lead record", "contact_id", contactID, "error", err)
		return lead.Default()
	}
	return r
}

// Lookup is Get with presence and read errors reported to the caller.
func (s *Store) Lookup(ctx context.Context, contactID string) (lead.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return lead.Default(), false, err
	}
	row, err := s.db.GetLead(contactID)
	if errors.Is(err, storage.ErrNotFound) {
		return lead.Default(), false, nil
	}
	if err != nil {
		return lead.Default(), false, fmt.Errorf("loading lead %s: %w", contactID, err)
	}
	return fromRow(row), true, nil
}

// Put stores r for contactID. LastContacted is stamped by the store and never
// moves backwards; PreviousReply is set from previousReply. Both the SQLite
// row and the JSON snapshot are durable when Put returns.
func (s *Store) Put(ctx context.Context, contactID string, r lead.Record, previousReply string) (lead.Record, error) {
	if err := ValidateContactID(contactID); err != nil {
		return lead.Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return lead.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	prior, err := s.db.GetLead(contactID)
	switch {
	case err == nil:
		if prior.LastContacted.After(now) {
			now = prior.LastContacted
		}
	case !errors.Is(err, storage.ErrNotFound):
		return lead.Record{}, fmt.Errorf("loading lead %s: %w", contactID, err)
	}

	r.LastContacted = now
	r.PreviousReply = previousReply
	if r.Tags == nil {
		r.Tags = []string{}
	}

	if err := s.db.SaveLead(toRow(contactID, r), s.writeSnapshot); err != nil {
		return lead.Record{}, fmt.Errorf("saving lead %s: %w", contactID, err)
	}
	return r, nil
}

// List returns every stored lead, most recently contacted first.
func (s *Store) List(ctx context.Context) ([]lead.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.db.ListLeads()
	if err != nil {
		return nil, fmt.Errorf("listing leads: %w", err)
	}
	entries := make([]lead.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, lead.Entry{ContactID: row.ContactID, Record: fromRow(row)})
	}
	return entries, nil
}

// Snapshot re-reads the JSON mirror in full. A missing file is an empty map.
func (s *Store) Snapshot(ctx context.Context) (map[string]lead.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.SnapshotPath())
	if errors.Is(err, os.ErrNotExist) {
		return map[string]lead.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	out := map[string]lead.Record{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return out, nil
}

// SnapshotRecord returns contactID's entry from the JSON mirror.
func (s *Store) SnapshotRecord(ctx context.Context, contactID string) (lead.Record, bool, error) {
	all, err := s.Snapshot(ctx)
	if err != nil {
		return lead.Record{}, false, err
	}
	r, ok := all[contactID]
	return r, ok, nil
}

func (s *Store) writeSnapshot(rows []storage.Lead) error {
	out := make(map[string]lead.Record, len(rows))
	for _, row := range rows {
		out[row.ContactID] = fromRow(row)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return writeAtomic(s.SnapshotPath(), append(data, '\n'))
}

func fromRow(row storage.Lead) lead.Record {
	tags := row.Tags
	if tags == nil {
		tags = []string{}
	}
	return lead.Record{
		Handoff:       row.Handoff,
		Status:        lead.Status(row.Status),
		Tags:          tags,
		Notes:         row.Notes,
		LastContacted: row.LastContacted,
		PreviousReply: row.PreviousReply,
	}
}

func toRow(contactID string, r lead.Record) storage.Lead {
	return storage.Lead{
		ContactID:     contactID,
		Handoff:       r.Handoff,
		Status:        string(r.Status),
		Tags:          r.Tags,
		Notes:         r.Notes,
		LastContacted: r.LastContacted,
		PreviousReply: r.PreviousReply,
	}
}
