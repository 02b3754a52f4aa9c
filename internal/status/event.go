package status

// EventKind names a session lifecycle event reported by the adapter.
type EventKind string

const (
	EventLoadingScreen      EventKind = "loading_screen"
	EventQR                 EventKind = "qr"
	EventAuthenticated      EventKind = "authenticated"
	EventReady              EventKind = "ready"
	EventAuthFailure        EventKind = "auth_failure"
	EventDisconnected       EventKind = "disconnected"
	EventRemoteSessionSaved EventKind = "remote_session_saved"
)

// Event is a lifecycle notification from the adapter to the reactor.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	Percent int        // loading_screen
	Text    string     // loading_screen
	Payload string     // qr: raw pairing code
	Reason  string     // auth_failure, disconnected
	Client  ClientInfo // ready
}
