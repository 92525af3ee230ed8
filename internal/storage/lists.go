package storage

import (
	"fmt"
	"time"
)

// AddToList adds contactID to the named list. It reports false when the
// contact was already a member.
func (s *Store) AddToList(list, contactID string) (bool, error) {
	res, err := s.db.Exec(`INSERT OR IGNORE INTO contact_lists (list, contact_id, added_at) VALUES (?, ?, ?)`,
		list, contactID, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveFromList removes contactID from the named list, returning ErrNotFound
// if it was not a member.
func (s *Store) RemoveFromList(list, contactID string) error {
	res, err := s.db.Exec(`DELETE FROM contact_lists WHERE list = ? AND contact_id = ?`, list, contactID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InList reports whether contactID is a member of the named list.
func (s *Store) InList(list, contactID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM contact_lists WHERE list = ? AND contact_id = ?`, list, contactID).Scan(&n)
	return n > 0, err
}

// ListMembers returns the members of the named list in insertion order.
func (s *Store) ListMembers(list string) ([]string, error) {
	rows, err := s.db.Query(`SELECT contact_id FROM contact_lists WHERE list = ? ORDER BY added_at ASC, contact_id ASC`, list)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// ReplaceList atomically swaps the named list's members for contactIDs.
func (s *Store) ReplaceList(list string, contactIDs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning list transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM contact_lists WHERE list = ?`, list); err != nil {
		return fmt.Errorf("clearing list %s: %w", list, err)
	}
	now := time.Now().UTC()
	for i, id := range contactIDs {
		// Offset by index so insertion order survives identical clocks.
		added := now.Add(time.Duration(i) * time.Nanosecond).Format(timeLayout)
		if _, err := tx.Exec(`INSERT OR IGNORE INTO contact_lists (list, contact_id, added_at) VALUES (?, ?, ?)`, list, id, added); err != nil {
			return fmt.Errorf("adding %s to list %s: %w", id, list, err)
		}
	}
	return tx.Commit()
}
