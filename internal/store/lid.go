package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	lidServer = "@lid"
	pnServer  = "@s.whatsapp.net"
)

// LIDMapping pairs a hidden-user LID with the phone number it stands for.
// Both sides are bare user parts, without a server.
type LIDMapping struct {
	LID string
	PN  string
}

// SyncLIDMap replaces the known LID mappings.
func (db *DB) SyncLIDMap(ctx context.Context, mappings []LIDMapping) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lid_map`); err != nil {
		return fmt.Errorf("clear lid_map: %w", err)
	}
	for _, m := range mappings {
		if m.LID == "" || m.PN == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO lid_map (lid, pn) VALUES (?, ?)`, m.LID, m.PN); err != nil {
			return fmt.Errorf("insert lid_map %q: %w", m.LID, err)
		}
	}
	return tx.Commit()
}

// ResolveLID maps a LID chat JID to its phone number JID. Any other JID, or a
// LID without a known mapping, is returned unchanged.
func (db *DB) ResolveLID(ctx context.Context, jid string) (string, error) {
	user, ok := strings.CutSuffix(jid, lidServer)
	if !ok {
		return jid, nil
	}
	var pn string
	err := db.QueryRowContext(ctx, `SELECT pn FROM lid_map WHERE lid = ?`, user).Scan(&pn)
	if errors.Is(err, sql.ErrNoRows) {
		return jid, nil
	}
	if err != nil {
		return jid, err
	}
	return pn + pnServer, nil
}

// ReconcileLIDs folds every mapped LID chat into its phone number chat:
// messages and contacts move over, then the LID rows are removed. It returns
// the number of LID chats merged.
func (db *DB) ReconcileLIDs(ctx context.Context) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chats (jid, name, is_group, unread_count, last_message_at, updated_at)
		SELECT lm.pn || '`+pnServer+`', c.name, 0, c.unread_count, c.last_message_at, c.updated_at
		FROM chats c
		JOIN lid_map lm ON c.jid = lm.lid || '`+lidServer+`'
		WHERE true
		ON CONFLICT(jid) DO UPDATE SET
			name = CASE WHEN chats.name = '' THEN excluded.name ELSE chats.name END,
			unread_count = MAX(chats.unread_count, excluded.unread_count),
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			updated_at = MAX(chats.updated_at, excluded.updated_at)`); err != nil {
		return 0, fmt.Errorf("ensure phone number chats: %w", err)
	}

	// A message already mirrored under the phone number JID stays where it is.
	if _, err := tx.ExecContext(ctx, `
		UPDATE OR IGNORE messages SET
			chat_jid = (SELECT lm.pn || '`+pnServer+`' FROM lid_map lm WHERE messages.chat_jid = lm.lid || '`+lidServer+`')
		WHERE chat_jid IN (SELECT lid || '`+lidServer+`' FROM lid_map)`); err != nil {
		return 0, fmt.Errorf("reassign messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET
			sender_jid = (SELECT lm.pn || '`+pnServer+`' FROM lid_map lm WHERE messages.sender_jid = lm.lid || '`+lidServer+`')
		WHERE sender_jid IN (SELECT lid || '`+lidServer+`' FROM lid_map)`); err != nil {
		return 0, fmt.Errorf("reassign senders: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE chat_jid IN (SELECT lid || '`+lidServer+`' FROM lid_map)`); err != nil {
		return 0, fmt.Errorf("drop duplicate messages: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO contacts (jid, name, push_name)
		SELECT lm.pn || '`+pnServer+`', ct.name, ct.push_name
		FROM contacts ct
		JOIN lid_map lm ON ct.jid = lm.lid || '`+lidServer+`'
		WHERE true
		ON CONFLICT(jid) DO UPDATE SET
			name = CASE WHEN contacts.name = '' THEN excluded.name ELSE contacts.name END,
			push_name = CASE WHEN contacts.push_name = '' THEN excluded.push_name ELSE contacts.push_name END`); err != nil {
		return 0, fmt.Errorf("reassign contacts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM contacts WHERE jid IN (SELECT lid || '`+lidServer+`' FROM lid_map)`); err != nil {
		return 0, fmt.Errorf("delete LID contacts: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM chats WHERE jid IN (SELECT lid || '`+lidServer+`' FROM lid_map)`)
	if err != nil {
		return 0, fmt.Errorf("delete LID chats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return result.RowsAffected()
}
