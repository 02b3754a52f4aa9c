package wa

import (
	"context"
	"time"

	"github.com/matheus3301/wppgw/internal/bus"
	"github.com/matheus3301/wppgw/internal/status"
	"github.com/matheus3301/wppgw/internal/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// IdentityFunc reports the linked account once the session is connected.
type IdentityFunc func() status.ClientInfo

// EventHandler translates whatsmeow events into lifecycle events for the
// status reactor and domain events on the bus. It never touches the tracker
// or the mirror database directly.
type EventHandler struct {
	ctx      context.Context
	bus      *bus.Bus
	events   chan<- status.Event
	identity IdentityFunc
	remote   bool
	logger   *zap.Logger
}

// NewEventHandler creates a new event handler. Lifecycle sends give up once ctx ends.
func NewEventHandler(ctx context.Context, b *bus.Bus, out chan<- status.Event, identity IdentityFunc, remote bool, logger *zap.Logger) *EventHandler {
	if identity == nil {
		identity = func() status.ClientInfo { return status.ClientInfo{} }
	}
	return &EventHandler{
		ctx:      ctx,
		bus:      b,
		events:   out,
		identity: identity,
		remote:   remote,
		logger:   logger,
	}
}

// Handle is the main whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		h.emit(status.Event{Kind: status.EventReady, Client: h.identity()})
	case *events.PairSuccess:
		h.logger.Info("device paired", zap.String("jid", evt.ID.String()), zap.String("platform", evt.Platform))
		h.emit(status.Event{Kind: status.EventAuthenticated})
		if h.remote {
			h.emit(status.Event{Kind: status.EventRemoteSessionSaved})
		}
	case *events.Message:
		h.handleMessage(evt)
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.PushName:
		h.bus.Publish(bus.Event{
			Kind:      bus.KindWAContact,
			Timestamp: time.Now(),
			Payload:   []store.Contact{{JID: evt.JID.ToNonAD().String(), PushName: evt.NewPushName}},
		})
	case *events.JoinedGroup:
		h.publishChatMeta(evt.GroupInfo.JID, evt.GroupInfo.GroupName.Name)
	case *events.GroupInfo:
		if evt.Name != nil {
			h.publishChatMeta(evt.JID, evt.Name.Name)
		}
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		h.emit(status.Event{Kind: status.EventDisconnected, Reason: "connection lost"})
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		h.emit(status.Event{Kind: status.EventDisconnected, Reason: "logged out: " + evt.Reason.String()})
	case *events.StreamReplaced:
		h.logger.Warn("stream replaced by another client")
		h.emit(status.Event{Kind: status.EventDisconnected, Reason: "stream replaced"})
	case *events.ConnectFailure:
		h.emit(status.Event{Kind: status.EventAuthFailure, Reason: evt.Reason.String()})
	case *events.ClientOutdated:
		h.emit(status.Event{Kind: status.EventAuthFailure, Reason: "client outdated"})
	case *events.TemporaryBan:
		h.emit(status.Event{Kind: status.EventAuthFailure, Reason: evt.String()})
	}
}

func (h *EventHandler) emit(evt status.Event) {
	select {
	case h.events <- evt:
	case <-h.ctx.Done():
		h.logger.Debug("dropping lifecycle event after shutdown", zap.String("kind", string(evt.Kind)))
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	parsed := ParseLiveMessage(evt)
	h.bus.Publish(bus.Event{
		Kind:      bus.KindWAMessage,
		Timestamp: time.Now(),
		Payload:   parsed.ToStoreMessage(),
	})
}

func (h *EventHandler) publishChatMeta(jid types.JID, name string) {
	h.bus.Publish(bus.Event{
		Kind:      bus.KindWAChatMeta,
		Timestamp: time.Now(),
		Payload: &store.Chat{
			JID:     jid.ToNonAD().String(),
			Name:    name,
			IsGroup: jid.Server == types.GroupServer,
		},
	})
}

func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	progress := int(data.GetProgress())
	h.emit(status.Event{Kind: status.EventLoadingScreen, Percent: progress, Text: "syncing history"})

	batch := &store.HistoryBatch{Progress: progress}
	for _, conv := range data.GetConversations() {
		chatJID := NormalizeJID(conv.GetID())
		if chatJID == "" {
			continue
		}
		batch.Chats = append(batch.Chats, store.Chat{
			JID:           chatJID,
			Name:          conv.GetName(),
			IsGroup:       store.IsGroupJID(chatJID),
			UnreadCount:   int(conv.GetUnreadCount()),
			LastMessageAt: int64(conv.GetConversationTimestamp()) * 1000,
		})
		for _, hm := range conv.GetMessages() {
			if parsed := ParseHistoryMessage(chatJID, hm.GetMessage()); parsed != nil {
				batch.Messages = append(batch.Messages, parsed.ToStoreMessage())
			}
		}
	}

	if len(batch.Chats) > 0 || len(batch.Messages) > 0 {
		h.bus.Publish(bus.Event{
			Kind:      bus.KindWAHistoryBatch,
			Timestamp: time.Now(),
			Payload:   batch,
		})
	}
}
