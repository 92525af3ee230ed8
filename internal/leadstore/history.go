package leadstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kalambet/leadbot/internal/lead"
)

const historyTimeLayout = "Monday, 2006-01-02 15:04:05"

// HistoryEntry is one message in a contact's log.
type HistoryEntry struct {
	// Author is the contact's display name for inbound messages, "bot" for
	// assistant replies, or the operator's name for manual sends.
	Author  string
	Inbound bool
	At      time.Time
	Text    string
}

// Inbound builds the entry for a message a contact sent.
func Inbound(name, text string, at time.Time) HistoryEntry {
	return HistoryEntry{Author: name, Inbound: true, At: at, Text: text}
}

// Outbound builds the entry for a message sent to a contact.
func Outbound(author, text string, at time.Time) HistoryEntry {
	return HistoryEntry{Author: author, At: at, Text: text}
}

func (e HistoryEntry) render(contactID string) string {
	ts := e.At.In(lead.Zone).Format(historyTimeLayout)
	if e.Inbound {
		return fmt.Sprintf("%s (%s) %s:%s\n\n", e.Author, contactID, ts, e.Text)
	}
	return fmt.Sprintf("%s (%s):\n%s\n\n", e.Author, ts, e.Text)
}

func (s *Store) historyPath(contactID string) string {
	return filepath.Join(s.dir, "history", contactID+".txt")
}

// AppendHistory appends entries to contactID's log in order. The log is
// created on first use and never truncated.
func (s *Store) AppendHistory(ctx context.Context, contactID string, entries ...HistoryEntry) error {
	if err := ValidateContactID(contactID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	var b strings.Builder
	for _, e := range entries {
		if e.At.IsZero() {
			e.At = s.clock.Now()
		}
		b.WriteString(e.render(contactID))
	}

	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	if err := appendSync(s.historyPath(contactID), []byte(b.String())); err != nil {
		return fmt.Errorf("appending history for %s: %w", contactID, err)
	}
	return nil
}

// History returns contactID's full log, or "" when there is none.
func (s *Store) History(ctx context.Context, contactID string) (string, error) {
	if err := ValidateContactID(contactID); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.historyPath(contactID))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading history for %s: %w", contactID, err)
	}
	return string(data), nil
}

// DeleteHistory removes contactID's log. Lead state is untouched. It reports
// whether a log existed.
func (s *Store) DeleteHistory(ctx context.Context, contactID string) (bool, error) {
	if err := ValidateContactID(contactID); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	err := os.Remove(s.historyPath(contactID))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting history for %s: %w", contactID, err)
	}
	return true, nil
}
