// Package blocklist tracks contacts the bot must not answer, either
// permanently or until a temporary block expires.
package blocklist

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/leadbot/internal/storage"
)

// MinTempBlock is the shortest temporary block accepted.
const MinTempBlock = 90 * time.Second

var (
	// ErrTooShort is returned for temporary blocks under MinTempBlock.
	ErrTooShort = fmt.Errorf("temporary block must be at least %s", MinTempBlock)
	// ErrPermanent is returned when a temporary block is requested for a
	// permanently blocked contact.
	ErrPermanent = errors.New("contact is permanently blocked")
	// ErrNotBlocked is returned when no active block exists.
	ErrNotBlocked = errors.New("contact is not blocked")
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Status describes the active block on a contact.
type Status struct {
	ContactID string        `json:"contact_id"`
	Permanent bool          `json:"permanent"`
	ExpiresAt time.Time     `json:"expires_at,omitzero"`
	Remaining time.Duration `json:"remaining_ns,omitempty"`
}

// List manages block entries stored in SQLite.
type List struct {
	db    *storage.Store
	clock Clock
}

// New creates a List over db.
func New(db *storage.Store) *List {
	return NewWithClock(db, realClock{})
}

// NewWithClock creates a List with a custom clock (for testing).
func NewWithClock(db *storage.Store, clock Clock) *List {
	return &List{db: db, clock: clock}
}

// Block blocks contactID permanently, replacing any temporary block.
func (l *List) Block(contactID string) error {
	if err := l.db.PutBlock(storage.Block{ContactID: contactID, Permanent: true, CreatedAt: l.clock.Now()}); err != nil {
		return fmt.Errorf("blocking %s: %w", contactID, err)
	}
	return nil
}

// TempBlock blocks contactID for d. An active temporary block is extended
// by d rather than reset.
func (l *List) TempBlock(contactID string, d time.Duration) (Status, error) {
	if d < MinTempBlock {
		return Status{}, ErrTooShort
	}
	now := l.clock.Now()

	expires := now.Add(d)
	cur, active, err := l.active(contactID, now)
	if err != nil {
		return Status{}, err
	}
	if active {
		if cur.Permanent {
			return Status{}, ErrPermanent
		}
		expires = cur.ExpiresAt.Add(d)
	}

	if err := l.db.PutBlock(storage.Block{ContactID: contactID, ExpiresAt: expires, CreatedAt: now}); err != nil {
		return Status{}, fmt.Errorf("blocking %s: %w", contactID, err)
	}
	return Status{ContactID: contactID, ExpiresAt: expires, Remaining: expires.Sub(now)}, nil
}

// Unblock removes any block on contactID.
func (l *List) Unblock(contactID string) error {
	err := l.db.DeleteBlock(contactID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotBlocked
	}
	if err != nil {
		return fmt.Errorf("unblocking %s: %w", contactID, err)
	}
	return nil
}

// Status returns the active block on contactID or ErrNotBlocked.
func (l *List) Status(contactID string) (Status, error) {
	now := l.clock.Now()
	b, active, err := l.active(contactID, now)
	if err != nil {
		return Status{}, err
	}
	if !active {
		return Status{}, ErrNotBlocked
	}
	return toStatus(b, now), nil
}

// IsBlocked reports whether contactID currently has an active block.
func (l *List) IsBlocked(contactID string) (bool, error) {
	_, active, err := l.active(contactID, l.clock.Now())
	return active, err
}

// List returns every active block. Expired entries are pruned on the way.
func (l *List) List() ([]Status, error) {
	now := l.clock.Now()
	blocks, err := l.db.ListBlocks()
	if err != nil {
		return nil, fmt.Errorf("listing blocks: %w", err)
	}
	out := []Status{}
	for _, b := range blocks {
		if expired(b, now) {
			l.prune(b.ContactID)
			continue
		}
		out = append(out, toStatus(b, now))
	}
	return out, nil
}

// active loads the entry for contactID and deletes it if it has lapsed.
func (l *List) active(contactID string, now time.Time) (storage.Block, bool, error) {
	b, err := l.db.GetBlock(contactID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Block{}, false, nil
	}
	if err != nil {
		return storage.Block{}, false, fmt.Errorf("loading block for %s: %w", contactID, err)
	}
	if expired(b, now) {
		l.prune(contactID)
		return storage.Block{}, false, nil
	}
	return b, true, nil
}

func (l *List) prune(contactID string) {
	if err := l.db.DeleteBlock(contactID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.Warn("pruning expired block", "contact_id", contactID, "error", err)
	}
}

func expired(b storage.Block, now time.Time) bool {
	return !b.Permanent && !now.Before(b.ExpiresAt)
}

func toStatus(b storage.Block, now time.Time) Status {
	if b.Permanent {
		return Status{ContactID: b.ContactID, Permanent: true}
	}
	return Status{ContactID: b.ContactID, ExpiresAt: b.ExpiresAt, Remaining: b.ExpiresAt.Sub(now)}
}
