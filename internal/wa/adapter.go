// Package wa is the Session Client Adapter: it owns the whatsmeow client,
// translates its events, and serializes every call made on behalf of the API.
package wa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/wppgw/internal/bus"
	"github.com/matheus3301/wppgw/internal/logging"
	"github.com/matheus3301/wppgw/internal/outbox"
	"github.com/matheus3301/wppgw/internal/status"
	"github.com/matheus3301/wppgw/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// ErrChatNotFound is returned when a chat ID is not known to the mirror.
var ErrChatNotFound = errors.New("chat not found")

// Options tune the adapter.
type Options struct {
	CallTimeout   time.Duration
	SendInterval  time.Duration
	SendBurst     int
	RemoteBackend bool
}

// Adapter wraps the whatsmeow client and manages the WhatsApp connection.
type Adapter struct {
	client  *whatsmeow.Client
	db      *store.DB
	handler *EventHandler
	guard   *Guard
	outbox  *outbox.Sender
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewAdapter creates the adapter for the first device in container.
// Lifecycle events are delivered on out; ctx bounds the adapter's lifetime.
func NewAdapter(ctx context.Context, container *sqlstore.Container, opts Options, db *store.DB, out chan<- status.Event, b *bus.Bus, logger *zap.Logger) (*Adapter, error) {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("wppgw", [3]uint32{0, 1, 0})

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	a := &Adapter{
		client: whatsmeow.NewClient(deviceStore, logging.WhatsmeowLogger(logger)),
		db:     db,
		guard:  NewGuard(opts.CallTimeout),
		bus:    b,
		logger: logger,
	}
	a.handler = NewEventHandler(ctx, b, out, a.Identity, opts.RemoteBackend, logger)
	a.outbox = outbox.NewSender(db, clientSender{a.client}, b,
		outbox.NewLimiter(opts.SendInterval, opts.SendBurst), logger.Named("outbox"))
	return a, nil
}

// Start registers event handlers and connects. Without stored credentials it
// starts the QR pairing flow instead.
func (a *Adapter) Start(ctx context.Context) error {
	if n, err := a.outbox.Recover(ctx); err != nil {
		a.logger.Warn("outbox recovery failed", zap.Error(err))
	} else if n > 0 {
		a.logger.Info("marked interrupted sends as failed", zap.Int("count", n))
	}

	a.client.AddEventHandler(a.handler.Handle)
	a.client.AddEventHandler(a.onEvent)

	if a.client.Store.ID == nil {
		a.logger.Info("no stored credentials, starting QR pairing")
		return a.startPairing(ctx)
	}
	a.logger.Info("connecting to WhatsApp", zap.String("jid", a.client.Store.ID.String()))
	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (a *Adapter) onEvent(rawEvt any) {
	if _, ok := rawEvt.(*events.Connected); ok {
		go func() {
			ctx := context.Background()
			a.publishContacts(ctx)
			a.syncLIDs(ctx)
		}()
	}
}

// Disconnect terminates the WhatsApp connection.
func (a *Adapter) Disconnect() {
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
}

// Ready reports whether the session can serve sends and reads.
func (a *Adapter) Ready() bool {
	return a.client != nil && a.client.Store.ID != nil && a.client.IsConnected()
}

// Identity describes the linked account from the device store.
func (a *Adapter) Identity() status.ClientInfo {
	if a.client == nil || a.client.Store == nil {
		return status.ClientInfo{}
	}
	info := status.ClientInfo{
		Name:     a.client.Store.PushName,
		Platform: a.client.Store.Platform,
	}
	if a.client.Store.ID != nil {
		info.Phone = a.client.Store.ID.User
	}
	return info
}

// SendText delivers text to jid through the outbox pipeline.
func (a *Adapter) SendText(ctx context.Context, jid, text string) (*outbox.Result, error) {
	if _, err := types.ParseJID(jid); err != nil {
		return nil, fmt.Errorf("parse JID: %w", err)
	}
	if !a.Ready() {
		return nil, ErrNotReady
	}
	return Run(ctx, a.guard, func(ctx context.Context) (*outbox.Result, error) {
		return a.outbox.Send(ctx, jid, text)
	})
}

// ListChats returns the most recently active chats from the mirror.
func (a *Adapter) ListChats(ctx context.Context, limit int) ([]store.Chat, error) {
	return Run(ctx, a.guard, func(ctx context.Context) ([]store.Chat, error) {
		return a.db.ListChats(ctx, limit)
	})
}

// ListMessages returns the newest messages of a mirrored chat.
func (a *Adapter) ListMessages(ctx context.Context, chatID string, limit int) ([]store.Message, error) {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return nil, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	if jid.User == "" || jid.Server == "" {
		return nil, fmt.Errorf("invalid chat id %q", chatID)
	}
	chatJID := jid.ToNonAD().String()

	return Run(ctx, a.guard, func(ctx context.Context) ([]store.Message, error) {
		chat, err := a.db.GetChat(ctx, chatJID)
		if err != nil {
			return nil, fmt.Errorf("get chat: %w", err)
		}
		if chat == nil {
			return nil, fmt.Errorf("%w: %s", ErrChatNotFound, chatJID)
		}
		return a.db.ListMessages(ctx, chatJID, limit)
	})
}

// Logout invalidates the session on the phone and deletes stored credentials.
func (a *Adapter) Logout(ctx context.Context) error {
	return a.guard.Do(ctx, func(ctx context.Context) error {
		if a.client.Store.ID == nil {
			a.client.Disconnect()
			return nil
		}
		if err := a.client.Logout(ctx); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		return nil
	})
}

func (a *Adapter) publishContacts(ctx context.Context) {
	all, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		a.logger.Warn("failed to get contacts from device store", zap.Error(err))
		return
	}
	contacts := make([]store.Contact, 0, len(all))
	for jid, info := range all {
		contacts = append(contacts, store.Contact{
			JID:      jid.ToNonAD().String(),
			Name:     info.FullName,
			PushName: info.PushName,
		})
	}
	if len(contacts) == 0 {
		return
	}
	a.bus.Publish(bus.Event{Kind: bus.KindWAContact, Timestamp: time.Now(), Payload: contacts})
}

// lidMappings resolves the LID of every phone number contact in the device store.
func (a *Adapter) lidMappings(ctx context.Context) ([]store.LIDMapping, error) {
	if a.client.Store.LIDs == nil {
		return nil, nil
	}
	all, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	var mappings []store.LIDMapping
	for jid := range all {
		pn := jid.ToNonAD()
		if pn.Server != types.DefaultUserServer {
			continue
		}
		lid, err := a.client.Store.LIDs.GetLIDForPN(ctx, pn)
		if err != nil || lid.IsEmpty() {
			continue
		}
		mappings = append(mappings, store.LIDMapping{LID: lid.User, PN: pn.User})
	}
	return mappings, nil
}

// syncLIDs refreshes the mirror's LID mappings and folds LID chats into
// their phone number chats.
func (a *Adapter) syncLIDs(ctx context.Context) {
	mappings, err := a.lidMappings(ctx)
	if err != nil {
		a.logger.Warn("failed to read LID mappings", zap.Error(err))
		return
	}
	if err := a.db.SyncLIDMap(ctx, mappings); err != nil {
		a.logger.Warn("failed to store LID mappings", zap.Error(err))
		return
	}
	merged, err := a.db.ReconcileLIDs(ctx)
	if err != nil {
		a.logger.Warn("LID reconciliation failed", zap.Error(err))
		return
	}
	a.logger.Info("LID mappings synced", zap.Int("mappings", len(mappings)), zap.Int64("merged_chats", merged))
}

// clientSender is the outbox's path to the wire.
type clientSender struct {
	client *whatsmeow.Client
}

func (s clientSender) SendText(ctx context.Context, jid, text string) (string, time.Time, error) {
	to, err := types.ParseJID(jid)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parse JID: %w", err)
	}
	resp, err := s.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("send message: %w", err)
	}
	return resp.ID, resp.Timestamp, nil
}
