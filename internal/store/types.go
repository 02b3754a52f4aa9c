package store

// Chat is a mirrored conversation. LastMessage is the newest stored message,
// nil when only metadata has been synced.
type Chat struct {
	JID           string
	Name          string
	IsGroup       bool
	UnreadCount   int
	LastMessageAt int64 // unix ms
	LastMessage   *Message
}

// Contact is a mirrored address-book entry.
type Contact struct {
	JID      string
	Name     string
	PushName string
}

// Message is a mirrored message. Timestamp is unix ms.
type Message struct {
	ID          int64
	ChatJID     string
	MsgID       string
	SenderJID   string
	SenderName  string
	Body        string
	MessageType string
	HasMedia    bool
	FromMe      bool
	Status      string
	Timestamp   int64
}

// OutboxEntry is one send attempt.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	ChatJID      string
	Body         string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
}

// Outbox statuses.
const (
	OutboxQueued  = "queued"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// HistoryBatch is one history-sync blob: chat metadata plus the messages it
// carried. Progress is the sync completion percentage reported by the phone.
type HistoryBatch struct {
	Chats    []Chat
	Messages []*Message
	Progress int
}
