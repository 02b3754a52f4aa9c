package status

import (
	"sync"

	"github.com/matheus3301/wppgw/internal/bus"
)

// ConnectionStatus is the session's externally visible connection state.
type ConnectionStatus string

const (
	Disconnected ConnectionStatus = "disconnected"
	QRPending    ConnectionStatus = "qr_pending"
	Connected    ConnectionStatus = "connected"
)

// Unknown fills identity fields the adapter did not report.
const Unknown = "Unknown"

// ClientInfo identifies the paired account while connected.
type ClientInfo struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Platform string `json:"platform"`
}

func (c ClientInfo) withDefaults() ClientInfo {
	if c.Name == "" {
		c.Name = Unknown
	}
	if c.Phone == "" {
		c.Phone = Unknown
	}
	if c.Platform == "" {
		c.Platform = Unknown
	}
	return c
}

// Snapshot is a consistent copy of the tracker state.
type Snapshot struct {
	Status ConnectionStatus
	Client *ClientInfo
	QR     *string
	RawQR  string
	Ready  bool
}

// StatusChange is the payload for session.status_changed events.
type StatusChange struct {
	From ConnectionStatus
	To   ConnectionStatus
}

// Tracker owns the process-wide session state. Every mutator moves all fields
// together under one lock so readers never observe a QR code next to a client
// identity, or a connected status without one.
type Tracker struct {
	mu     sync.RWMutex
	status ConnectionStatus
	client *ClientInfo
	qr     *string
	rawQR  string
	ready  bool
	bus    *bus.Bus
}

// NewTracker creates a tracker in the disconnected state.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{
		status: Disconnected,
		bus:    b,
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Snapshot{Status: t.status, RawQR: t.rawQR, Ready: t.ready}
	if t.client != nil {
		c := *t.client
		s.Client = &c
	}
	if t.qr != nil {
		q := *t.qr
		s.QR = &q
	}
	return s
}

// Current returns the connection status.
func (t *Tracker) Current() ConnectionStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// SetQR records a new pairing code. An empty encoded image means the code
// arrived but rendering failed; the status still moves to qr_pending.
// Codes arriving while connected are stale and ignored; SetQR reports whether
// the code was accepted.
func (t *Tracker) SetQR(encoded, raw string) bool {
	t.mu.Lock()
	if t.status == Connected {
		t.mu.Unlock()
		return false
	}
	if encoded != "" {
		t.qr = &encoded
	} else {
		t.qr = nil
	}
	t.rawQR = raw
	t.client = nil
	t.ready = false
	change := t.setStatusLocked(QRPending)
	t.mu.Unlock()

	t.publish(change)
	return true
}

// MarkAuthenticated clears the pairing code. The status change to connected
// waits for MarkReady.
func (t *Tracker) MarkAuthenticated() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.qr = nil
	t.rawQR = ""
}

// MarkReady moves to connected with the reported identity; blank identity
// fields become "Unknown".
func (t *Tracker) MarkReady(info ClientInfo) {
	info = info.withDefaults()

	t.mu.Lock()
	t.client = &info
	t.qr = nil
	t.rawQR = ""
	t.ready = true
	change := t.setStatusLocked(Connected)
	t.mu.Unlock()

	t.publish(change)
}

// MarkAuthFailure drops back to disconnected after a failed pairing or login.
func (t *Tracker) MarkAuthFailure() {
	t.clear()
}

// MarkDisconnected drops back to disconnected after the session closed.
func (t *Tracker) MarkDisconnected() {
	t.clear()
}

// Reset is used after an explicit logout.
func (t *Tracker) Reset() {
	t.clear()
}

func (t *Tracker) clear() {
	t.mu.Lock()
	t.client = nil
	t.qr = nil
	t.rawQR = ""
	t.ready = false
	change := t.setStatusLocked(Disconnected)
	t.mu.Unlock()

	t.publish(change)
}

func (t *Tracker) setStatusLocked(to ConnectionStatus) *StatusChange {
	if t.status == to {
		return nil
	}
	change := &StatusChange{From: t.status, To: to}
	t.status = to
	return change
}

func (t *Tracker) publish(change *StatusChange) {
	if change == nil {
		return
	}
	t.bus.Emit(bus.KindStatusChanged, *change)
}
