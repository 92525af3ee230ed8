package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetBlock returns the block entry for contactID or ErrNotFound. Expired
// temporary entries are returned as stored; callers decide on expiry.
func (s *Store) GetBlock(contactID string) (Block, error) {
	var b Block
	var permanent int
	var expiresAt sql.NullString
	var createdAt string
	err := s.db.QueryRow(`SELECT contact_id, permanent, expires_at, created_at FROM blocks WHERE contact_id = ?`, contactID).
		Scan(&b.ContactID, &permanent, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Block{}, ErrNotFound
	}
	if err != nil {
		return Block{}, err
	}
	return fillBlock(b, permanent, expiresAt, createdAt)
}

func fillBlock(b Block, permanent int, expiresAt sql.NullString, createdAt string) (Block, error) {
	b.Permanent = permanent != 0
	if expiresAt.Valid && expiresAt.String != "" {
		t, err := time.Parse(timeLayout, expiresAt.String)
		if err != nil {
			return Block{}, fmt.Errorf("parsing expires_at for %s: %w", b.ContactID, err)
		}
		b.ExpiresAt = t
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Block{}, fmt.Errorf("parsing created_at for %s: %w", b.ContactID, err)
	}
	b.CreatedAt = t
	return b, nil
}

// PutBlock inserts or replaces the block entry for b.ContactID.
func (s *Store) PutBlock(b Block) error {
	permanent := 0
	if b.Permanent {
		permanent = 1
	}
	var expiresAt any
	if !b.Permanent && !b.ExpiresAt.IsZero() {
		expiresAt = b.ExpiresAt.UTC().Format(timeLayout)
	}
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO blocks (contact_id, permanent, expires_at, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(contact_id) DO UPDATE SET permanent = excluded.permanent, expires_at = excluded.expires_at`,
		b.ContactID, permanent, expiresAt, createdAt.UTC().Format(timeLayout),
	)
	return err
}

// DeleteBlock removes the block entry, returning ErrNotFound if none existed.
func (s *Store) DeleteBlock(contactID string) error {
	res, err := s.db.Exec(`DELETE FROM blocks WHERE contact_id = ?`, contactID)
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

// ListBlocks returns every block entry ordered by contact id.
func (s *Store) ListBlocks() ([]Block, error) {
	rows, err := s.db.Query(`SELECT contact_id, permanent, expires_at, created_at FROM blocks ORDER BY contact_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []Block
	for rows.Next() {
		var b Block
		var permanent int
		var expiresAt sql.NullString
		var createdAt string
		if err := rows.Scan(&b.ContactID, &permanent, &expiresAt, &createdAt); err != nil {
			return nil, err
		}
		b, err := fillBlock(b, permanent, expiresAt, createdAt)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}
