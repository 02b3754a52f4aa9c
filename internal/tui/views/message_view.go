package views

import (
	"fmt"

	"github.com/matheus3301/wppgw/internal/api"
	"github.com/rivo/tview"
)

// MessageView shows the messages of the open chat.
type MessageView struct {
	*tview.TextView
}

// NewMessageView creates an empty message pane.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// SetChatName puts name in the border title.
func (mv *MessageView) SetChatName(name string) {
	mv.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeLine(name))))
}

// Update renders msgs, which arrive newest first, oldest at the top.
func (mv *MessageView) Update(msgs []api.MessageSummary) {
	mv.Clear()

	for i := len(msgs) - 1; i >= 0; i-- {
		_, _ = fmt.Fprint(mv, formatMessage(msgs[i]))
	}

	mv.ScrollToEnd()
}

func formatMessage(m api.MessageSummary) string {
	sender := "[aqua::b]Them[-:-:-]"
	if m.FromMe {
		sender = "[green::b]You[-:-:-]"
	}
	body := tview.Escape(sanitizeForTerminal(m.Body))
	if body == "" {
		body = "[::d](" + m.Type + ")[-:-:-]"
	} else if m.HasMedia {
		body = "[::d]" + tview.Escape("["+m.Type+"]") + "[-:-:-] " + body
	}
	return fmt.Sprintf("%s [::d]%s[-:-:-]\n%s\n\n", sender, formatTimestamp(m.Timestamp), body)
}
