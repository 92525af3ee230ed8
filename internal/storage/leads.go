package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const leadColumns = `contact_id, handoff, status, tags, notes, last_contacted, previous_reply`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(r rowScanner) (Lead, error) {
	var l Lead
	var handoff int
	var tags, lastContacted string
	if err := r.Scan(&l.ContactID, &handoff, &l.Status, &tags, &l.Notes, &lastContacted, &l.PreviousReply); err != nil {
		return Lead{}, err
	}
	l.Handoff = handoff != 0
	if err := json.Unmarshal([]byte(tags), &l.Tags); err != nil {
		return Lead{}, fmt.Errorf("decoding tags for %s: %w", l.ContactID, err)
	}
	if l.Tags == nil {
		l.Tags = []string{}
	}
	t, err := time.Parse(timeLayout, lastContacted)
	if err != nil {
		return Lead{}, fmt.Errorf("parsing last_contacted for %s: %w", l.ContactID, err)
	}
	l.LastContacted = t
	return l, nil
}

// GetLead returns the stored lead for contactID or ErrNotFound.
func (s *Store) GetLead(contactID string) (Lead, error) {
	l, err := scanLead(s.db.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE contact_id = ?`, contactID))
	if errors.Is(err, sql.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return l, err
}

// ListLeads returns every lead, most recently contacted first.
func (s *Store) ListLeads() ([]Lead, error) {
	return queryLeads(s.db, `SELECT `+leadColumns+` FROM leads ORDER BY last_contacted DESC, contact_id ASC`)
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func queryLeads(q querier, query string, args ...any) ([]Lead, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// SaveLead upserts l inside a transaction. When snapshot is non-nil it is
// called with the full lead table as seen by the transaction, and a non-nil
// error from it rolls the upsert back. If the commit itself fails, snapshot
// is called again with the committed rows.
func (s *Store) SaveLead(l Lead, snapshot func([]Lead) error) error {
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	handoff := 0
	if l.Handoff {
		handoff = 1
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning lead transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO leads (`+leadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contact_id) DO UPDATE SET
			handoff = excluded.handoff,
			status = excluded.status,
			tags = excluded.tags,
			notes = excluded.notes,
			last_contacted = excluded.last_contacted,
			previous_reply = excluded.previous_reply`,
		l.ContactID, handoff, l.Status, string(tagsJSON), l.Notes,
		l.LastContacted.UTC().Format(timeLayout), l.PreviousReply,
	)
	if err != nil {
		return fmt.Errorf("upserting lead %s: %w", l.ContactID, err)
	}

	if snapshot != nil {
		all, err := queryLeads(tx, `SELECT `+leadColumns+` FROM leads ORDER BY contact_id ASC`)
		if err != nil {
			return fmt.Errorf("reading leads for snapshot: %w", err)
		}
		if err := snapshot(all); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
	}

	if err := s.commitTx(tx); err != nil {
		err = fmt.Errorf("committing lead %s: %w", l.ContactID, err)
		if snapshot != nil {
			// The snapshot already shows the rolled-back row.
			tx.Rollback()
			if rerr := s.restoreSnapshot(snapshot); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}
		return err
	}
	return nil
}

func (s *Store) commitTx(tx *sql.Tx) error {
	if s.commit != nil {
		return s.commit(tx)
	}
	return tx.Commit()
}

// restoreSnapshot rewrites the snapshot from the committed rows.
func (s *Store) restoreSnapshot(snapshot func([]Lead) error) error {
	all, err := queryLeads(s.db, `SELECT `+leadColumns+` FROM leads ORDER BY contact_id ASC`)
	if err != nil {
		return fmt.Errorf("reading leads to restore snapshot: %w", err)
	}
	if err := snapshot(all); err != nil {
		return fmt.Errorf("restoring snapshot: %w", err)
	}
	return nil
}
