// Package sync feeds the mirror database from adapter events published on the bus.
package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/wppgw/internal/bus"
	"github.com/matheus3301/wppgw/internal/store"
	"go.uber.org/zap"
)

// Engine handles idempotent ingestion of messages into the store.
// It subscribes to "wa.*" events on the bus and processes them.
type Engine struct {
	db         *store.DB
	bus        *bus.Bus
	reconciler *Reconciler
	logger     *zap.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:         db,
		bus:        b,
		reconciler: NewReconciler(db, logger),
		logger:     logger,
	}
}

// Start subscribes to inbound WhatsApp events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe(bus.NamespaceWA, 256)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the consumer goroutine to exit.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

// Reconciler exposes the checkpoint store used by the engine.
func (e *Engine) Reconciler() *Reconciler {
	return e.reconciler
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindWAMessage:
		msg, ok := evt.Payload.(*store.Message)
		if !ok {
			return
		}
		if err := e.IngestMessage(ctx, msg); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", msg.MsgID))
		}
	case bus.KindWAHistoryBatch:
		batch, ok := evt.Payload.(*store.HistoryBatch)
		if !ok {
			return
		}
		if err := e.IngestHistoryBatch(ctx, batch); err != nil {
			e.logger.Error("failed to ingest history batch", zap.Error(err), zap.Int("count", len(batch.Messages)))
		}
	case bus.KindWAChatMeta:
		chat, ok := evt.Payload.(*store.Chat)
		if !ok {
			return
		}
		if err := e.db.UpsertChat(ctx, chat); err != nil {
			e.logger.Error("failed to upsert chat metadata", zap.Error(err), zap.String("chat_jid", chat.JID))
		}
	case bus.KindWAContact:
		contacts, ok := evt.Payload.([]store.Contact)
		if !ok {
			return
		}
		if err := e.db.BulkUpsertContacts(ctx, contacts); err != nil {
			e.logger.Error("failed to upsert contacts", zap.Error(err), zap.Int("count", len(contacts)))
		}
	}
}

// IngestMessage processes a single message into the store (idempotent).
// A LID chat with a known phone number lands in the phone number chat.
func (e *Engine) IngestMessage(ctx context.Context, msg *store.Message) error {
	chatJID, err := e.db.ResolveLID(ctx, msg.ChatJID)
	if err != nil {
		return fmt.Errorf("resolve chat: %w", err)
	}
	msg.ChatJID = chatJID

	if err := e.db.UpsertChat(ctx, &store.Chat{
		JID:           msg.ChatJID,
		IsGroup:       store.IsGroupJID(msg.ChatJID),
		LastMessageAt: msg.Timestamp,
	}); err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}

	if err := e.db.UpsertMessage(ctx, msg); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	if !msg.FromMe && msg.SenderName != "" && msg.SenderJID != "" {
		if err := e.db.UpsertContact(ctx, &store.Contact{JID: msg.SenderJID, PushName: msg.SenderName}); err != nil {
			e.logger.Warn("failed to record sender push name", zap.Error(err), zap.String("sender", msg.SenderJID))
		}
	}

	e.bus.Publish(bus.Event{
		Kind:      bus.KindMessageUpserted,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"chat_jid": msg.ChatJID,
			"msg_id":   msg.MsgID,
		},
	})

	return nil
}

// IngestHistoryBatch processes a history blob in a single transaction.
func (e *Engine) IngestHistoryBatch(ctx context.Context, batch *store.HistoryBatch) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range batch.Chats {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chats (jid, name, is_group, unread_count, last_message_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(jid) DO UPDATE SET
				name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
				unread_count = excluded.unread_count,
				last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
				updated_at = excluded.updated_at`,
			c.JID, c.Name, c.IsGroup, c.UnreadCount, c.LastMessageAt, now); err != nil {
			return fmt.Errorf("upsert chat in batch: %w", err)
		}
	}

	for _, sm := range batch.Messages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chats (jid, is_group, last_message_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(jid) DO UPDATE SET
				last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
				updated_at = excluded.updated_at`,
			sm.ChatJID, store.IsGroupJID(sm.ChatJID), sm.Timestamp, now); err != nil {
			return fmt.Errorf("touch chat in batch: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (chat_jid, msg_id, sender_jid, sender_name, body, message_type, has_media, from_me, status, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(chat_jid, msg_id) DO UPDATE SET
				sender_name = excluded.sender_name,
				body = excluded.body,
				status = excluded.status`,
			sm.ChatJID, sm.MsgID, sm.SenderJID, sm.SenderName, sm.Body, sm.MessageType, sm.HasMedia, sm.FromMe, sm.Status, sm.Timestamp, now); err != nil {
			return fmt.Errorf("upsert message in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	// History arrives keyed by LID for some conversations.
	if merged, err := e.db.ReconcileLIDs(ctx); err != nil {
		e.logger.Warn("LID reconciliation failed", zap.Error(err))
	} else if merged > 0 {
		e.logger.Debug("merged LID chats", zap.Int64("count", merged))
	}

	if batch.Progress > 0 {
		if err := e.reconciler.UpdateCheckpoint(ctx, CheckpointHistoryProgress, strconv.Itoa(batch.Progress)); err != nil {
			e.logger.Warn("failed to record history progress", zap.Error(err))
		}
	}

	e.bus.Publish(bus.Event{
		Kind:      bus.KindSyncHistoryBatch,
		Timestamp: time.Now(),
		Payload: map[string]int{
			"messages_count": len(batch.Messages),
			"chats_count":    len(batch.Chats),
			"progress":       batch.Progress,
		},
	})

	return nil
}
