package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// IsGroupJID reports whether jid addresses a group chat.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}

// UpsertChat inserts a chat or advances its last activity. Name and unread
// count are only overwritten when the incoming values are non-empty.
func (db *DB) UpsertChat(ctx context.Context, c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO chats (jid, name, is_group, unread_count, last_message_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(jid) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
			is_group = excluded.is_group,
			unread_count = CASE WHEN excluded.unread_count > 0 THEN excluded.unread_count ELSE chats.unread_count END,
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		c.JID, c.Name, c.IsGroup, c.UnreadCount, c.LastMessageAt, now)
	return err
}

// ListChats returns chats sorted by last activity descending, each with its
// newest message. Names fall back chat.name -> contact.push_name -> contact.name -> jid.
// A LID chat is listed until a mapping folds it into its phone number chat.
func (db *DB) ListChats(ctx context.Context, limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT c.jid,
			COALESCE(NULLIF(c.name,''), NULLIF(ct.push_name,''), NULLIF(ct.name,''), c.jid) AS display_name,
			c.is_group, c.unread_count, c.last_message_at,
			m.msg_id, m.body, m.message_type, m.has_media, m.from_me, m.timestamp
		FROM chats c
		LEFT JOIN contacts ct ON c.jid = ct.jid
		LEFT JOIN messages m ON m.id = (
			SELECT id FROM messages WHERE chat_jid = c.jid ORDER BY timestamp DESC, id DESC LIMIT 1
		)
		WHERE c.jid != 'status@broadcast'
			AND NOT EXISTS (SELECT 1 FROM lid_map lm WHERE c.jid = lm.lid || '@lid')
		ORDER BY c.last_message_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by JID, or nil if it is not mirrored.
func (db *DB) GetChat(ctx context.Context, jid string) (*Chat, error) {
	row := db.QueryRowContext(ctx, `
		SELECT c.jid,
			COALESCE(NULLIF(c.name,''), NULLIF(ct.push_name,''), NULLIF(ct.name,''), c.jid) AS display_name,
			c.is_group, c.unread_count, c.last_message_at,
			m.msg_id, m.body, m.message_type, m.has_media, m.from_me, m.timestamp
		FROM chats c
		LEFT JOIN contacts ct ON c.jid = ct.jid
		LEFT JOIN messages m ON m.id = (
			SELECT id FROM messages WHERE chat_jid = c.jid ORDER BY timestamp DESC, id DESC LIMIT 1
		)
		WHERE c.jid = ?`, jid)
	c, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ChatCount returns the number of mirrored chats.
func (db *DB) ChatCount(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(s scanner) (Chat, error) {
	var (
		c        Chat
		msgID    sql.NullString
		body     sql.NullString
		msgType  sql.NullString
		hasMedia sql.NullBool
		fromMe   sql.NullBool
		ts       sql.NullInt64
	)
	if err := s.Scan(&c.JID, &c.Name, &c.IsGroup, &c.UnreadCount, &c.LastMessageAt,
		&msgID, &body, &msgType, &hasMedia, &fromMe, &ts); err != nil {
		return Chat{}, err
	}
	if msgID.Valid {
		c.LastMessage = &Message{
			ChatJID:     c.JID,
			MsgID:       msgID.String,
			Body:        body.String,
			MessageType: msgType.String,
			HasMedia:    hasMedia.Bool,
			FromMe:      fromMe.Bool,
			Timestamp:   ts.Int64,
		}
	}
	return c, nil
}
