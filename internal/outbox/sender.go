// Package outbox records every outbound text before it reaches WhatsApp and
// paces sends so bursts from API clients do not trip server-side limits.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wppgw/internal/bus"
	"github.com/matheus3301/wppgw/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TextSender delivers one text message and returns the server-assigned ID and timestamp.
type TextSender interface {
	SendText(ctx context.Context, jid string, text string) (serverMsgID string, ts time.Time, err error)
}

// Result is the outcome of a delivered send.
type Result struct {
	ClientMsgID string
	MessageID   string
	Timestamp   time.Time
}

// Sender journals sends in the outbox table and mirrors them as fromMe messages.
type Sender struct {
	db      *store.DB
	sender  TextSender
	bus     *bus.Bus
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewSender creates a new outbox sender. A nil limiter disables pacing.
func NewSender(db *store.DB, sender TextSender, b *bus.Bus, limiter *rate.Limiter, logger *zap.Logger) *Sender {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Sender{
		db:      db,
		sender:  sender,
		bus:     b,
		limiter: limiter,
		logger:  logger,
	}
}

// NewLimiter builds the send pacing limiter; interval <= 0 means unlimited.
func NewLimiter(interval time.Duration, burst int) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(interval), burst)
}

// Send journals text for jid, waits for a pacing slot, and delivers it.
// The outbox entry ends as sent or failed before Send returns.
func (s *Sender) Send(ctx context.Context, jid, text string) (*Result, error) {
	clientMsgID := uuid.NewString()
	if err := s.db.QueueOutbox(ctx, clientMsgID, jid, text); err != nil {
		return nil, fmt.Errorf("queue outbox: %w", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		// The limiter refuses up front when the slot lies past the deadline.
		if _, ok := ctx.Deadline(); ok && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		s.fail(clientMsgID, jid, err)
		return nil, err
	}

	if err := s.db.MarkOutboxSending(ctx, clientMsgID); err != nil {
		s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", clientMsgID))
	}

	serverMsgID, ts, err := s.sender.SendText(ctx, jid, text)
	if err != nil {
		s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", clientMsgID))
		s.fail(clientMsgID, jid, err)
		return nil, err
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	// Bookkeeping failures must not turn a delivered message into an error.
	bg := context.WithoutCancel(ctx)
	if err := s.db.MarkOutboxSent(bg, clientMsgID, serverMsgID); err != nil {
		s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", clientMsgID))
	}
	if err := s.db.UpsertChat(bg, &store.Chat{
		JID:           jid,
		IsGroup:       store.IsGroupJID(jid),
		LastMessageAt: ts.UnixMilli(),
	}); err != nil {
		s.logger.Warn("failed to touch chat", zap.Error(err), zap.String("chat_jid", jid))
	}
	if err := s.db.UpsertMessage(bg, &store.Message{
		ChatJID:     jid,
		MsgID:       serverMsgID,
		Body:        text,
		MessageType: "text",
		FromMe:      true,
		Status:      "sent",
		Timestamp:   ts.UnixMilli(),
	}); err != nil {
		s.logger.Warn("failed to mirror sent message", zap.Error(err), zap.String("msg_id", serverMsgID))
	}

	s.logger.Info("message sent", zap.String("client_msg_id", clientMsgID), zap.String("server_msg_id", serverMsgID))
	s.bus.Publish(bus.Event{
		Kind:      bus.KindMessageSendAck,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"client_msg_id": clientMsgID,
			"server_msg_id": serverMsgID,
			"chat_jid":      jid,
		},
	})

	return &Result{ClientMsgID: clientMsgID, MessageID: serverMsgID, Timestamp: ts}, nil
}

func (s *Sender) fail(clientMsgID, jid string, cause error) {
	if err := s.db.MarkOutboxFailed(context.Background(), clientMsgID, cause.Error()); err != nil {
		s.logger.Error("failed to mark failed", zap.Error(err), zap.String("client_msg_id", clientMsgID))
	}
	s.bus.Publish(bus.Event{
		Kind:      bus.KindMessageSendFailed,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"client_msg_id": clientMsgID,
			"chat_jid":      jid,
			"error":         cause.Error(),
		},
	})
}

// Recover marks entries left queued or sending by a previous run as failed.
// Sends are never retried automatically since the caller already got an answer.
func (s *Sender) Recover(ctx context.Context) (int, error) {
	stale, err := s.db.StaleOutbox(ctx)
	if err != nil {
		return 0, fmt.Errorf("read stale outbox: %w", err)
	}
	for _, e := range stale {
		if err := s.db.MarkOutboxFailed(ctx, e.ClientMsgID, "interrupted by restart"); err != nil {
			return 0, fmt.Errorf("mark %s failed: %w", e.ClientMsgID, err)
		}
	}
	if len(stale) > 0 {
		s.logger.Warn("recovered interrupted sends", zap.Int("count", len(stale)))
	}
	return len(stale), nil
}
