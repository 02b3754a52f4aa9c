package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const upsertContactSQL = `
	INSERT INTO contacts (jid, name, push_name)
	VALUES (?, ?, ?)
	ON CONFLICT(jid) DO UPDATE SET
		name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
		push_name = CASE WHEN excluded.push_name != '' THEN excluded.push_name ELSE contacts.push_name END`

// UpsertContact inserts or updates a contact, keeping known names when the update is blank.
func (db *DB) UpsertContact(ctx context.Context, c *Contact) error {
	_, err := db.ExecContext(ctx, upsertContactSQL, c.JID, c.Name, c.PushName)
	return err
}

// BulkUpsertContacts upserts contacts in a single transaction.
func (db *DB) BulkUpsertContacts(ctx context.Context, contacts []Contact) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range contacts {
		if _, err := tx.ExecContext(ctx, upsertContactSQL, c.JID, c.Name, c.PushName); err != nil {
			return fmt.Errorf("upsert contact %q: %w", c.JID, err)
		}
	}
	return tx.Commit()
}

// GetContact returns a contact by JID, or nil if unknown.
func (db *DB) GetContact(ctx context.Context, jid string) (*Contact, error) {
	var c Contact
	err := db.QueryRowContext(ctx, `SELECT jid, name, push_name FROM contacts WHERE jid = ?`, jid).
		Scan(&c.JID, &c.Name, &c.PushName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
