package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/wppgw/internal/tui/model"
	"github.com/rivo/tview"
)

// StatusBar is the bottom line: key hints, clock and the flash message.
type StatusBar struct {
	*tview.TextView
	hints []string
	flash string
	level model.FlashLevel
}

// NewStatusBar creates an empty status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetHints replaces the key hints.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

// SetFlash shows msg until the next call; "" clears it.
func (sb *StatusBar) SetFlash(msg string, level model.FlashLevel) {
	sb.flash = msg
	sb.level = level
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	line := fmt.Sprintf(" %s | %s", strings.Join(sb.hints, "  "), time.Now().Format("15:04"))
	if sb.flash != "" {
		color := "yellow"
		if sb.level == model.FlashError {
			color = "red"
		}
		line += fmt.Sprintf(" | [%s]%s[-]", color, tview.Escape(sb.flash))
	}

	_, _ = fmt.Fprint(sb, line)
}
