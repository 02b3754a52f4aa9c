package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Namespaces used as subscription prefixes.
const (
	NamespaceSession = "session."
	NamespaceWA      = "wa."
	NamespaceSync    = "sync."
	NamespaceMessage = "message."
)

// Event kinds.
const (
	KindStatusChanged = "session.status_changed"

	KindWAMessage      = "wa.message"
	KindWAHistoryBatch = "wa.history_batch"
	KindWAChatMeta     = "wa.chat_meta"
	KindWAContact      = "wa.contact"

	KindSyncHistoryBatch = "sync.history_batch"

	KindMessageUpserted   = "message.upserted"
	KindMessageSendAck    = "message.send_ack"
	KindMessageSendFailed = "message.send_failed"
)
