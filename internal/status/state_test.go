package status

import (
	"testing"

	"github.com/matheus3301/wppgw/internal/bus"
)

// checkInvariants fails the test if the snapshot violates the pairing/identity rules.
func checkInvariants(t *testing.T, s Snapshot, step string) {
	t.Helper()
	if s.QR != nil && s.Client != nil {
		t.Fatalf("%s: QR and client both set: %+v", step, s)
	}
	switch s.Status {
	case Connected:
		if s.Client == nil || s.QR != nil {
			t.Fatalf("%s: connected requires client and no QR: %+v", step, s)
		}
		if !s.Ready {
			t.Fatalf("%s: connected but not ready", step)
		}
	case QRPending:
		if s.Client != nil {
			t.Fatalf("%s: qr_pending with client %+v", step, s.Client)
		}
		if s.Ready {
			t.Fatalf("%s: qr_pending but ready", step)
		}
	case Disconnected:
		if s.Client != nil || s.QR != nil || s.RawQR != "" {
			t.Fatalf("%s: disconnected must clear QR and client: %+v", step, s)
		}
		if s.Ready {
			t.Fatalf("%s: disconnected but ready", step)
		}
	default:
		t.Fatalf("%s: unknown status %q", step, s.Status)
	}
}

func TestInitialState(t *testing.T) {
	tr := NewTracker(nil)
	s := tr.Snapshot()
	if s.Status != Disconnected {
		t.Errorf("initial status = %s, want disconnected", s.Status)
	}
	checkInvariants(t, s, "initial")
}

func TestPairingLifecycle(t *testing.T) {
	tr := NewTracker(nil)

	if !tr.SetQR("data:image/png;base64,AAA", "2@abc") {
		t.Fatal("SetQR rejected while disconnected")
	}
	s := tr.Snapshot()
	if s.Status != QRPending || s.QR == nil || *s.QR != "data:image/png;base64,AAA" {
		t.Fatalf("after qr: %+v", s)
	}
	if s.RawQR != "2@abc" {
		t.Errorf("RawQR = %q, want 2@abc", s.RawQR)
	}

	tr.MarkAuthenticated()
	s = tr.Snapshot()
	if s.Status != QRPending {
		t.Errorf("after authenticated status = %s, want qr_pending", s.Status)
	}
	if s.QR != nil {
		t.Error("authenticated should clear QR")
	}

	tr.MarkReady(ClientInfo{Name: "Ana", Phone: "51987654321", Platform: "android"})
	s = tr.Snapshot()
	if s.Status != Connected || !s.Ready {
		t.Fatalf("after ready: %+v", s)
	}
	if s.Client.Name != "Ana" || s.Client.Phone != "51987654321" {
		t.Errorf("client = %+v", s.Client)
	}
	checkInvariants(t, s, "ready")
}

func TestReadyDefaultsUnknown(t *testing.T) {
	tr := NewTracker(nil)
	tr.MarkReady(ClientInfo{Phone: "123"})

	c := tr.Snapshot().Client
	if c.Name != Unknown || c.Platform != Unknown {
		t.Errorf("client = %+v, want Unknown name/platform", c)
	}
	if c.Phone != "123" {
		t.Errorf("phone = %q, want 123", c.Phone)
	}
}

func TestQRIgnoredWhileConnected(t *testing.T) {
	tr := NewTracker(nil)
	tr.MarkReady(ClientInfo{Name: "x"})

	if tr.SetQR("stale", "raw") {
		t.Error("SetQR accepted while connected")
	}
	s := tr.Snapshot()
	if s.Status != Connected || s.QR != nil {
		t.Errorf("state changed by stale QR: %+v", s)
	}
}

func TestQRPendingGeneration(t *testing.T) {
	tr := NewTracker(nil)
	tr.SetQR("", "raw")

	s := tr.Snapshot()
	if s.Status != QRPending {
		t.Errorf("status = %s, want qr_pending", s.Status)
	}
	if s.QR != nil {
		t.Errorf("QR = %v, want nil while encoding failed", *s.QR)
	}
}

func TestDisconnectClearsEverything(t *testing.T) {
	for name, drop := range map[string]func(*Tracker){
		"auth failure": (*Tracker).MarkAuthFailure,
		"disconnected": (*Tracker).MarkDisconnected,
		"reset":        (*Tracker).Reset,
	} {
		t.Run(name, func(t *testing.T) {
			tr := NewTracker(nil)
			tr.MarkReady(ClientInfo{Name: "x"})
			drop(tr)
			s := tr.Snapshot()
			if s.Status != Disconnected {
				t.Errorf("status = %s, want disconnected", s.Status)
			}
			checkInvariants(t, s, name)
		})
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(nil)
	tr.MarkReady(ClientInfo{Name: "orig"})

	s := tr.Snapshot()
	s.Client.Name = "mutated"

	if got := tr.Snapshot().Client.Name; got != "orig" {
		t.Errorf("tracker client mutated through snapshot: %q", got)
	}
}

func TestStatusChangeEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.NamespaceSession, 10)
	defer unsub()

	tr := NewTracker(b)
	tr.SetQR("img", "raw")

	evt := <-ch
	if evt.Kind != bus.KindStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Disconnected || change.To != QRPending {
		t.Errorf("change = %v -> %v, want disconnected -> qr_pending", change.From, change.To)
	}

	// A repeated QR keeps the status and publishes nothing.
	tr.SetQR("img2", "raw2")
	select {
	case evt := <-ch:
		t.Errorf("unexpected event for same-status update: %+v", evt)
	default:
	}
}
