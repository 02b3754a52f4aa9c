package model

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/wppgw/internal/api"
	"github.com/matheus3301/wppgw/internal/status"
)

// API is the subset of the daemon client the dashboard reads from.
type API interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
	QR(ctx context.Context, raw bool) (*api.QRResponse, error)
	Send(ctx context.Context, phone, message string) (*api.SendResponse, error)
	Chats(ctx context.Context) ([]api.ChatSummary, error)
	Messages(ctx context.Context, chatID string) ([]api.MessageSummary, error)
}

// ViewModel caches daemon state between refreshes and signals UI redraws.
type ViewModel struct {
	mu sync.RWMutex

	client       API
	Status       *api.StatusResponse
	QR           *api.QRResponse
	Chats        []api.ChatSummary
	Messages     []api.MessageSummary
	ActiveChatID string
	Flash        Flash

	refreshCh chan struct{}
}

// NewViewModel creates a view model backed by c.
func NewViewModel(c API) *ViewModel {
	return &ViewModel{
		client:    c,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the connection status. While not connected it also
// fetches the pending pairing code.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.client.Status(ctx)
	if err != nil {
		return err
	}
	var qr *api.QRResponse
	if st.Status != status.Connected {
		if qr, err = vm.client.QR(ctx, true); err != nil {
			return err
		}
	}
	vm.mu.Lock()
	vm.Status = st
	vm.QR = qr
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadChats fetches the chat list. Any error clears the cached list so a
// disconnected session shows no stale chats.
func (vm *ViewModel) LoadChats(ctx context.Context) error {
	chats, err := vm.client.Chats(ctx)
	if err != nil {
		vm.mu.Lock()
		vm.Chats = nil
		vm.mu.Unlock()
		return err
	}
	vm.mu.Lock()
	vm.Chats = chats
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadMessages fetches messages for chatID and makes it the active chat.
func (vm *ViewModel) LoadMessages(ctx context.Context, chatID string) error {
	msgs, err := vm.client.Messages(ctx, chatID)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.ActiveChatID = chatID
	vm.Messages = msgs
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// SendText sends text to phone, which may be a bare number or a chat JID.
func (vm *ViewModel) SendText(ctx context.Context, phone, text string) error {
	resp, err := vm.client.Send(ctx, phone, text)
	if err != nil {
		return err
	}
	vm.Flash.Set("Message sent to "+resp.To, 3*time.Second)
	vm.signalRefresh()
	return nil
}

// GetChats returns a snapshot of the current chat list.
func (vm *ViewModel) GetChats() []api.ChatSummary {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Chats
}

// GetMessages returns a snapshot of the current messages.
func (vm *ViewModel) GetMessages() []api.MessageSummary {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Messages
}

// GetStatus returns the last status and pairing code.
func (vm *ViewModel) GetStatus() (*api.StatusResponse, *api.QRResponse) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Status, vm.QR
}

// ActiveChat returns the chat opened by the last LoadMessages.
func (vm *ViewModel) ActiveChat() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.ActiveChatID
}

// ChatName resolves chatID against the cached chat list.
func (vm *ViewModel) ChatName(chatID string) string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.Chats {
		if c.ID == chatID && c.Name != "" {
			return c.Name
		}
	}
	return chatID
}
