// Package api is the HTTP surface of the gateway.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wppgw/internal/outbox"
	"github.com/matheus3301/wppgw/internal/phone"
	"github.com/matheus3301/wppgw/internal/status"
	"github.com/matheus3301/wppgw/internal/store"
	"go.uber.org/zap"
)

// Limits on list endpoints.
const (
	MaxChats       = 30
	MaxMessages    = 50
	PreviewRunes   = 100
	healthResponse = "wppgw is running"
)

// StatusTracker is the state the handlers read, plus the reset done after logout.
type StatusTracker interface {
	Snapshot() status.Snapshot
	Reset()
}

// Session is the adapter surface the handlers call.
type Session interface {
	Ready() bool
	SendText(ctx context.Context, jid, text string) (*outbox.Result, error)
	ListChats(ctx context.Context, limit int) ([]store.Chat, error)
	ListMessages(ctx context.Context, chatID string, limit int) ([]store.Message, error)
	Logout(ctx context.Context) error
}

// Handlers serves the REST API. session is nil when the adapter failed to start.
type Handlers struct {
	tracker StatusTracker
	session Session
	phone   phone.Policy
	logger  *zap.Logger
	started time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(tracker StatusTracker, session Session, policy phone.Policy, logger *zap.Logger) *Handlers {
	return &Handlers{
		tracker: tracker,
		session: session,
		phone:   policy,
		logger:  logger,
		started: time.Now(),
	}
}

// Root is the plaintext liveness check.
func (h *Handlers) Root(c *gin.Context) {
	c.String(http.StatusOK, healthResponse)
}

// Health reports uptime and session status as JSON.
func (h *Handlers) Health(c *gin.Context) {
	snap := h.tracker.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime":         time.Since(h.started).Round(time.Second).String(),
		"session":        snap.Status,
		"adapterStarted": h.session != nil,
	})
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status status.ConnectionStatus `json:"status"`
	Client *status.ClientInfo      `json:"client"`
}

// Status returns the current connection snapshot.
func (h *Handlers) Status(c *gin.Context) {
	snap := h.tracker.Snapshot()
	c.JSON(http.StatusOK, StatusResponse{Status: snap.Status, Client: snap.Client})
}

// QRResponse is the body of GET /api/qr.
type QRResponse struct {
	Status status.ConnectionStatus `json:"status"`
	QR     *string                 `json:"qr"`
	Client *status.ClientInfo      `json:"client,omitempty"`
	Raw    string                  `json:"raw,omitempty"`
}

// QR returns the pending pairing image. It is always null once connected.
func (h *Handlers) QR(c *gin.Context) {
	snap := h.tracker.Snapshot()
	if snap.Status == status.Connected {
		c.JSON(http.StatusOK, QRResponse{Status: snap.Status, QR: nil, Client: snap.Client})
		return
	}
	resp := QRResponse{Status: snap.Status, QR: snap.QR}
	if c.Query("raw") == "1" && snap.QR != nil {
		resp.Raw = snap.RawQR
	}
	c.JSON(http.StatusOK, resp)
}

// SendRequest is the body of POST /api/send.
type SendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SendResponse is the success body of POST /api/send.
type SendResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
	To        string `json:"to"`
}

// Send delivers a text message. Validation runs before the connection check.
func (h *Handlers) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, KindInvalidRequest, "invalid JSON body")
		return
	}
	if req.Phone == "" || req.Message == "" {
		abort(c, KindInvalidRequest, "phone and message are required")
		return
	}
	if !h.connected() {
		abort(c, KindNotConnected, "WhatsApp client is not connected")
		return
	}

	normalized, jid, err := h.phone.JID(req.Phone)
	if err != nil {
		abort(c, KindInvalidRequest, err.Error())
		return
	}

	res, err := h.session.SendText(c.Request.Context(), jid, req.Message)
	if err != nil {
		abortAdapter(c, err)
		return
	}
	c.JSON(http.StatusOK, SendResponse{
		Success:   true,
		MessageID: res.MessageID,
		Timestamp: res.Timestamp.Unix(),
		To:        normalized,
	})
}

// LastMessage is the preview embedded in a chat summary.
type LastMessage struct {
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	FromMe    bool   `json:"fromMe"`
}

// ChatSummary is one entry of GET /api/chats.
type ChatSummary struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	IsGroup     bool         `json:"isGroup"`
	UnreadCount int          `json:"unreadCount"`
	LastMessage *LastMessage `json:"lastMessage"`
	Timestamp   int64        `json:"timestamp"`
}

// Chats lists the most recently active chats.
func (h *Handlers) Chats(c *gin.Context) {
	if !h.connected() {
		abort(c, KindNotConnected, "WhatsApp client is not connected")
		return
	}
	chats, err := h.session.ListChats(c.Request.Context(), MaxChats)
	if err != nil {
		abortAdapter(c, err)
		return
	}
	if len(chats) > MaxChats {
		chats = chats[:MaxChats]
	}

	out := make([]ChatSummary, 0, len(chats))
	for _, ch := range chats {
		out = append(out, toChatSummary(ch))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "chats": out})
}

func toChatSummary(ch store.Chat) ChatSummary {
	s := ChatSummary{
		ID:          ch.JID,
		Name:        ch.Name,
		IsGroup:     ch.IsGroup,
		UnreadCount: ch.UnreadCount,
		Timestamp:   ch.LastMessageAt / 1000,
	}
	if m := ch.LastMessage; m != nil {
		s.LastMessage = &LastMessage{
			Body:      truncate(m.Body, PreviewRunes),
			Timestamp: m.Timestamp / 1000,
			FromMe:    m.FromMe,
		}
	}
	return s
}

// MessageSummary is one entry of GET /api/messages/:chatId.
type MessageSummary struct {
	ID        string `json:"id"`
	Body      string `json:"body"`
	FromMe    bool   `json:"fromMe"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
	HasMedia  bool   `json:"hasMedia"`
}

// Messages lists the newest messages of one chat.
func (h *Handlers) Messages(c *gin.Context) {
	if !h.connected() {
		abort(c, KindNotConnected, "WhatsApp client is not connected")
		return
	}
	msgs, err := h.session.ListMessages(c.Request.Context(), c.Param("chatId"), MaxMessages)
	if err != nil {
		abortAdapter(c, err)
		return
	}
	if len(msgs) > MaxMessages {
		msgs = msgs[:MaxMessages]
	}

	out := make([]MessageSummary, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageSummary{
			ID:        m.MsgID,
			Body:      m.Body,
			FromMe:    m.FromMe,
			Timestamp: m.Timestamp / 1000,
			Type:      m.MessageType,
			HasMedia:  m.HasMedia,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": out})
}

// Disconnect logs out and resets the tracker once the logout succeeded.
func (h *Handlers) Disconnect(c *gin.Context) {
	if h.session == nil {
		abort(c, KindNotConnected, "WhatsApp client is not initialized")
		return
	}
	if err := h.session.Logout(c.Request.Context()); err != nil {
		abortAdapter(c, err)
		return
	}
	h.tracker.Reset()
	h.logger.Info("session logged out via API")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Disconnected"})
}

func (h *Handlers) connected() bool {
	if h.session == nil {
		return false
	}
	snap := h.tracker.Snapshot()
	return snap.Status == status.Connected && snap.Ready && h.session.Ready()
}

func truncate(s string, maxRunes int) string {
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}
