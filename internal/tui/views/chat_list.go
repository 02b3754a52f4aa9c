package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/wppgw/internal/api"
	"github.com/rivo/tview"
)

// ChatList is the table of recent chats.
type ChatList struct {
	*tview.Table
	chats []api.ChatSummary
}

// NewChatList creates an empty chat table.
func NewChatList() *ChatList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Chats ")

	return &ChatList{Table: table}
}

// Update replaces the rows, keeping the selection on the same chat when it
// is still listed.
func (cl *ChatList) Update(chats []api.ChatSummary) {
	selected := cl.SelectedChat().ID
	cl.chats = chats
	cl.Clear()

	header := []string{" Name", " Last Message", " Time"}
	for i, h := range header {
		cl.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	}

	for i, chat := range chats {
		row := i + 1
		name := sanitizeLine(chat.Name)
		if name == "" {
			name = chat.ID
		}
		if chat.IsGroup {
			name = "# " + name
		}
		if chat.UnreadCount > 0 {
			name = fmt.Sprintf("* %s (%d)", name, chat.UnreadCount)
		}

		preview := ""
		if lm := chat.LastMessage; lm != nil {
			preview = sanitizeLine(lm.Body)
			if lm.FromMe {
				preview = "You: " + preview
			}
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(name)).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(preview)).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(chat.Timestamp)).SetMaxWidth(12))

		if chat.ID == selected {
			cl.Select(row, 0)
		}
	}
	cl.SetTitle(fmt.Sprintf(" Chats (%d) ", len(chats)))
}

// SelectedChat returns the highlighted chat, or a zero value.
func (cl *ChatList) SelectedChat() api.ChatSummary {
	row, _ := cl.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(cl.chats) {
		return cl.chats[idx]
	}
	return api.ChatSummary{}
}

// formatTimestamp renders unix seconds as a clock time today, or a date.
func formatTimestamp(sec int64) string {
	if sec == 0 {
		return ""
	}
	t := time.Unix(sec, 0)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
