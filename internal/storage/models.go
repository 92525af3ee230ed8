package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Lead is the persisted row of a single contact's qualification state.
type Lead struct {
	ContactID     string
	Handoff       bool
	Status        string
	Tags          []string // stored as a JSON array
	Notes         string
	LastContacted time.Time
	PreviousReply string
}

type Job struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	PayloadJSON string    `json:"payload"`
	Status      string    `json:"status"` // "pending", "running", "completed", "failed"
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	RunAfter    time.Time `json:"run_after"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastError   string    `json:"last_error,omitempty"`
}

// Block is a contact the bot must not answer. A block is either permanent or
// lasts until ExpiresAt.
type Block struct {
	ContactID string
	Permanent bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Named operator lists stored in contact_lists.
const (
	ListContacts  = "contacts"
	ListBroadcast = "broadcast"
	ListFlagged   = "flagged"
)
