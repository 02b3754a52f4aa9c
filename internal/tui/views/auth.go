package views

import (
	"bytes"
	"fmt"

	"github.com/matheus3301/wppgw/internal/qr"
	"github.com/rivo/tview"
)

// AuthView shows the pairing code while the session is not connected.
type AuthView struct {
	*tview.TextView
	shown string
}

// NewAuthView creates the pairing pane.
func NewAuthView() *AuthView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true).SetTitle(" Pair Device ")

	return &AuthView{TextView: tv}
}

// ShowQR draws the raw pairing payload. Redrawing the same payload is a no-op.
func (av *AuthView) ShowQR(payload string) {
	if payload == av.shown {
		return
	}
	av.shown = payload
	av.Clear()

	var buf bytes.Buffer
	qr.PrintTerminal(&buf, payload)
	_, _ = fmt.Fprintf(av, "\nScan with WhatsApp > Linked devices:\n\n%s\n[::d]Waiting for pairing...", tview.Escape(buf.String()))
}

// ShowMessage replaces the pane with msg.
func (av *AuthView) ShowMessage(msg string) {
	av.shown = ""
	av.Clear()
	_, _ = fmt.Fprintf(av, "\n\n%s", tview.Escape(msg))
}
