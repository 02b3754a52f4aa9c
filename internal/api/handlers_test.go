package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wppgw/internal/bus"
	"github.com/matheus3301/wppgw/internal/outbox"
	"github.com/matheus3301/wppgw/internal/phone"
	"github.com/matheus3301/wppgw/internal/status"
	"github.com/matheus3301/wppgw/internal/store"
	"github.com/matheus3301/wppgw/internal/wa"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSession struct {
	ready     bool
	calls     int
	sentTo    string
	sendErr   error
	chats     []store.Chat
	messages  []store.Message
	listErr   error
	logoutErr error
}

func (f *fakeSession) Ready() bool { return f.ready }

func (f *fakeSession) SendText(_ context.Context, jid, _ string) (*outbox.Result, error) {
	f.calls++
	f.sentTo = jid
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &outbox.Result{MessageID: "3EB0ABC", Timestamp: time.Unix(1_700_000_000, 0)}, nil
}

func (f *fakeSession) ListChats(_ context.Context, limit int) ([]store.Chat, error) {
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.chats, nil
}

func (f *fakeSession) ListMessages(_ context.Context, _ string, _ int) ([]store.Message, error) {
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.messages, nil
}

func (f *fakeSession) Logout(context.Context) error {
	f.calls++
	return f.logoutErr
}

var testPolicy = phone.Policy{CountryCode: "51", LocalLength: 9, Domain: "s.whatsapp.net"}

func connectedTracker() *status.Tracker {
	tr := status.NewTracker(bus.New())
	tr.MarkReady(status.ClientInfo{Name: "Me", Phone: "51987654321", Platform: "android"})
	return tr
}

func newTestRouter(tr *status.Tracker, s Session) *gin.Engine {
	return NewRouter(NewHandlers(tr, s, testPolicy, zap.NewNop()), []string{"*"}, zap.NewNop())
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestRoot(t *testing.T) {
	r := newTestRouter(status.NewTracker(bus.New()), nil)
	w := do(t, r, http.MethodGet, "/", "")
	if w.Code != http.StatusOK || w.Body.String() != healthResponse {
		t.Errorf("GET / = %d %q", w.Code, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(status.NewTracker(bus.New()), nil)
	w := do(t, r, http.MethodGet, "/health", "")
	body := decode[map[string]any](t, w)
	if body["status"] != "ok" || body["session"] != "disconnected" || body["adapterStarted"] != false {
		t.Errorf("health = %v", body)
	}
}

func TestStatus(t *testing.T) {
	t.Run("disconnected", func(t *testing.T) {
		w := do(t, newTestRouter(status.NewTracker(bus.New()), nil), http.MethodGet, "/api/status", "")
		if w.Code != http.StatusOK {
			t.Fatalf("code = %d", w.Code)
		}
		if got := w.Body.String(); got != `{"status":"disconnected","client":null}` {
			t.Errorf("body = %s", got)
		}
	})
	t.Run("connected", func(t *testing.T) {
		w := do(t, newTestRouter(connectedTracker(), &fakeSession{ready: true}), http.MethodGet, "/api/status", "")
		body := decode[StatusResponse](t, w)
		if body.Status != status.Connected || body.Client == nil || body.Client.Phone != "51987654321" {
			t.Errorf("body = %+v", body)
		}
	})
}

func TestQRNullWhenConnected(t *testing.T) {
	tr := status.NewTracker(bus.New())
	tr.SetQR("data:image/png;base64,AAAA", "2@raw")
	tr.MarkReady(status.ClientInfo{})
	// A stale code arriving after readiness must not resurface.
	tr.SetQR("data:image/png;base64,BBBB", "2@stale")

	w := do(t, newTestRouter(tr, &fakeSession{ready: true}), http.MethodGet, "/api/qr?raw=1", "")
	body := decode[map[string]any](t, w)
	if qr, ok := body["qr"]; !ok || qr != nil {
		t.Errorf("qr = %v, want explicit null", body["qr"])
	}
	if _, ok := body["raw"]; ok {
		t.Error("raw must not be exposed while connected")
	}
	client, _ := body["client"].(map[string]any)
	if client["name"] != status.Unknown {
		t.Errorf("client = %v, want Unknown defaults", body["client"])
	}
}

func TestQRPending(t *testing.T) {
	tr := status.NewTracker(bus.New())
	tr.SetQR("data:image/png;base64,AAAA", "2@raw")
	r := newTestRouter(tr, &fakeSession{})

	body := decode[QRResponse](t, do(t, r, http.MethodGet, "/api/qr", ""))
	if body.Status != status.QRPending || body.QR == nil || *body.QR != "data:image/png;base64,AAAA" {
		t.Errorf("body = %+v", body)
	}
	if body.Raw != "" || body.Client != nil {
		t.Errorf("body = %+v, want no raw and no client", body)
	}

	body = decode[QRResponse](t, do(t, r, http.MethodGet, "/api/qr?raw=1", ""))
	if body.Raw != "2@raw" {
		t.Errorf("raw = %q, want 2@raw", body.Raw)
	}
}

func TestSendValidationBeforeStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing message", `{"phone":"987654321"}`},
		{"missing phone", `{"message":"hi"}`},
		{"empty body", ``},
		{"malformed", `{"phone":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSession{}
			w := do(t, newTestRouter(status.NewTracker(bus.New()), s), http.MethodPost, "/api/send", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("code = %d, want 400 even while disconnected", w.Code)
			}
			body := decode[ErrorResponse](t, w)
			if body.Success || body.Code != KindInvalidRequest || body.Error == "" {
				t.Errorf("body = %+v", body)
			}
			if s.calls != 0 {
				t.Errorf("adapter calls = %d, want 0", s.calls)
			}
		})
	}
}

func TestSendNotConnected(t *testing.T) {
	tests := []struct {
		name    string
		tracker *status.Tracker
		session Session
	}{
		{"disconnected", status.NewTracker(bus.New()), &fakeSession{ready: true}},
		{"adapter not ready", connectedTracker(), &fakeSession{ready: false}},
		{"adapter missing", connectedTracker(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestRouter(tt.tracker, tt.session), http.MethodPost, "/api/send", `{"phone":"987654321","message":"hi"}`)
			if w.Code != http.StatusServiceUnavailable {
				t.Fatalf("code = %d, want 503", w.Code)
			}
			if body := decode[ErrorResponse](t, w); body.Code != KindNotConnected {
				t.Errorf("code = %s, want not_connected", body.Code)
			}
			if fs, ok := tt.session.(*fakeSession); ok && fs.calls != 0 {
				t.Errorf("adapter calls = %d, want 0", fs.calls)
			}
		})
	}
}

func TestSendSuccessNormalizesPhone(t *testing.T) {
	s := &fakeSession{ready: true}
	w := do(t, newTestRouter(connectedTracker(), s), http.MethodPost, "/api/send", `{"phone":"987-654-321","message":"hola"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d body = %s", w.Code, w.Body.String())
	}
	body := decode[SendResponse](t, w)
	if !body.Success || body.MessageID != "3EB0ABC" || body.Timestamp != 1_700_000_000 || body.To != "51987654321" {
		t.Errorf("body = %+v", body)
	}
	if s.sentTo != "51987654321@s.whatsapp.net" {
		t.Errorf("sent to %q", s.sentTo)
	}
}

func TestSendNoDigits(t *testing.T) {
	s := &fakeSession{ready: true}
	w := do(t, newTestRouter(connectedTracker(), s), http.MethodPost, "/api/send", `{"phone":"abc","message":"hi"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", w.Code)
	}
	if s.calls != 0 {
		t.Errorf("adapter calls = %d, want 0", s.calls)
	}
}

func TestSendAdapterErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind ErrorKind
	}{
		{"adapter failure surfaces message", errors.New("send message: server returned error 479"), http.StatusInternalServerError, KindAdapterError},
		{"timeout", fmt.Errorf("%w after 30s", wa.ErrTimeout), http.StatusGatewayTimeout, KindTimeout},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, KindTimeout},
		{"not ready", wa.ErrNotReady, http.StatusServiceUnavailable, KindNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSession{ready: true, sendErr: tt.err}
			w := do(t, newTestRouter(connectedTracker(), s), http.MethodPost, "/api/send", `{"phone":"51987654321","message":"hi"}`)
			if w.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", w.Code, tt.wantCode)
			}
			body := decode[ErrorResponse](t, w)
			if body.Code != tt.wantKind || body.Error != tt.err.Error() {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

type wireStub struct{}

func (wireStub) SendText(context.Context, string, string) (string, time.Time, error) {
	return "3EB0PACED", time.Now(), nil
}

// pacedSession sends through a real guard and outbox, as the adapter does.
type pacedSession struct {
	fakeSession
	guard  *wa.Guard
	sender *outbox.Sender
}

func (p *pacedSession) SendText(ctx context.Context, jid, text string) (*outbox.Result, error) {
	return wa.Run(ctx, p.guard, func(ctx context.Context) (*outbox.Result, error) {
		return p.sender.Send(ctx, jid, text)
	})
}

func TestSendHeldByPacingTimesOut(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	s := &pacedSession{
		fakeSession: fakeSession{ready: true},
		guard:       wa.NewGuard(200 * time.Millisecond),
		sender:      outbox.NewSender(db, wireStub{}, bus.New(), outbox.NewLimiter(time.Hour, 1), zap.NewNop()),
	}
	r := newTestRouter(connectedTracker(), s)

	if w := do(t, r, http.MethodPost, "/api/send", `{"phone":"51987654321","message":"first"}`); w.Code != http.StatusOK {
		t.Fatalf("first send code = %d, want 200", w.Code)
	}
	w := do(t, r, http.MethodPost, "/api/send", `{"phone":"51987654321","message":"second"}`)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("second send code = %d, want 504", w.Code)
	}
	if body := decode[ErrorResponse](t, w); body.Code != KindTimeout {
		t.Errorf("kind = %q, want %q", body.Code, KindTimeout)
	}
}

func TestChatsCapAndTruncate(t *testing.T) {
	long := strings.Repeat("é", 150)
	var chats []store.Chat
	for i := range 40 {
		chats = append(chats, store.Chat{
			JID:           fmt.Sprintf("%d@s.whatsapp.net", i),
			Name:          fmt.Sprintf("chat %d", i),
			LastMessageAt: int64(1000-i) * 1000,
			LastMessage:   &store.Message{Body: long, Timestamp: int64(1000-i) * 1000, FromMe: i%2 == 0},
		})
	}
	chats = append(chats[:1], append([]store.Chat{{JID: "g@g.us", IsGroup: true, LastMessageAt: 5000}}, chats[1:]...)...)

	s := &fakeSession{ready: true, chats: chats}
	w := do(t, newTestRouter(connectedTracker(), s), http.MethodGet, "/api/chats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	body := decode[struct {
		Success bool          `json:"success"`
		Chats   []ChatSummary `json:"chats"`
	}](t, w)
	if !body.Success || len(body.Chats) != MaxChats {
		t.Fatalf("got %d chats, want %d", len(body.Chats), MaxChats)
	}
	first := body.Chats[0]
	if first.LastMessage == nil || len([]rune(first.LastMessage.Body)) != PreviewRunes {
		t.Errorf("preview = %+v, want %d runes", first.LastMessage, PreviewRunes)
	}
	if first.Timestamp != 1000 || first.LastMessage.Timestamp != 1000 || !first.LastMessage.FromMe {
		t.Errorf("first = %+v, want unix seconds", first)
	}
	group := body.Chats[1]
	if !group.IsGroup || group.LastMessage != nil {
		t.Errorf("group = %+v, want group without preview", group)
	}
}

func TestChatsErrors(t *testing.T) {
	w := do(t, newTestRouter(status.NewTracker(bus.New()), &fakeSession{ready: true}), http.MethodGet, "/api/chats", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("disconnected code = %d, want 503", w.Code)
	}
	s := &fakeSession{ready: true, listErr: errors.New("disk I/O error")}
	w = do(t, newTestRouter(connectedTracker(), s), http.MethodGet, "/api/chats", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("adapter error code = %d, want 500", w.Code)
	}
}

func TestMessages(t *testing.T) {
	var msgs []store.Message
	for i := range 60 {
		msgs = append(msgs, store.Message{MsgID: fmt.Sprintf("m%d", i), Body: "x", MessageType: "image", HasMedia: true, Timestamp: 2000})
	}
	s := &fakeSession{ready: true, messages: msgs}
	w := do(t, newTestRouter(connectedTracker(), s), http.MethodGet, "/api/messages/51987654321@s.whatsapp.net", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	body := decode[struct {
		Messages []MessageSummary `json:"messages"`
	}](t, w)
	if len(body.Messages) != MaxMessages {
		t.Fatalf("got %d messages, want %d", len(body.Messages), MaxMessages)
	}
	if m := body.Messages[0]; m.ID != "m0" || m.Type != "image" || !m.HasMedia || m.Timestamp != 2 {
		t.Errorf("first = %+v", m)
	}

	s = &fakeSession{ready: true, listErr: fmt.Errorf("%w: x@s.whatsapp.net", wa.ErrChatNotFound)}
	w = do(t, newTestRouter(connectedTracker(), s), http.MethodGet, "/api/messages/x@s.whatsapp.net", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("missing chat code = %d, want 500", w.Code)
	}
}

func TestDisconnectResetsStatus(t *testing.T) {
	tr := connectedTracker()
	r := newTestRouter(tr, &fakeSession{ready: true})

	w := do(t, r, http.MethodPost, "/api/disconnect", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if got := w.Body.String(); got != `{"message":"Disconnected","success":true}` {
		t.Errorf("body = %s", got)
	}

	w = do(t, r, http.MethodGet, "/api/status", "")
	if got := w.Body.String(); got != `{"status":"disconnected","client":null}` {
		t.Errorf("status after disconnect = %s", got)
	}
}

func TestDisconnectFailureKeepsStatus(t *testing.T) {
	tr := connectedTracker()
	r := newTestRouter(tr, &fakeSession{ready: true, logoutErr: errors.New("logout: websocket closed")})

	w := do(t, r, http.MethodPost, "/api/disconnect", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", w.Code)
	}
	if tr.Current() != status.Connected {
		t.Errorf("status = %s, want still connected after failed logout", tr.Current())
	}
}

func TestDisconnectWithoutAdapter(t *testing.T) {
	w := do(t, newTestRouter(status.NewTracker(bus.New()), nil), http.MethodPost, "/api/disconnect", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", w.Code)
	}
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	r := newTestRouter(status.NewTracker(bus.New()), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "https://example.org")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 100); got != "hello" {
		t.Errorf("short = %q", got)
	}
	if got := truncate(strings.Repeat("a", 120), 100); len(got) != 100 {
		t.Errorf("len = %d, want 100", len(got))
	}
}
