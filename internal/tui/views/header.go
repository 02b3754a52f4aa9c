package views

import (
	"fmt"

	"github.com/matheus3301/wppgw/internal/api"
	"github.com/matheus3301/wppgw/internal/status"
	"github.com/rivo/tview"
)

// Header shows the session name, connection status and paired account.
type Header struct {
	*tview.TextView
	session string
}

// NewHeader creates the header for session.
func NewHeader(session string) *Header {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorderPadding(0, 0, 1, 1)

	h := &Header{TextView: tv, session: session}
	h.Update(nil, 0)
	return h
}

// Update renders st; a nil status means the daemon did not answer.
func (h *Header) Update(st *api.StatusResponse, chats int) {
	h.Clear()

	state, color := "unreachable", "red"
	if st != nil {
		state = string(st.Status)
		color = statusColor(st.Status)
	}

	name, phone, platform := "-", "-", "-"
	if st != nil && st.Client != nil {
		name, phone, platform = st.Client.Name, st.Client.Phone, st.Client.Platform
	}

	_, _ = fmt.Fprintf(h,
		"[::b]Session:[-:-:-] %s   [::b]Status:[-:-:-] [%s]%s[-]   [::b]Chats:[-:-:-] %d\n"+
			"[::b]Account:[-:-:-] %s   [::b]Phone:[-:-:-] %s   [::b]Platform:[-:-:-] %s",
		tview.Escape(h.session), color, state, chats,
		tview.Escape(name), tview.Escape(phone), tview.Escape(platform),
	)
}

func statusColor(s status.ConnectionStatus) string {
	switch s {
	case status.Connected:
		return "green"
	case status.QRPending:
		return "yellow"
	default:
		return "orange"
	}
}
