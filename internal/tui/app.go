// Package tui is the terminal dashboard for a running gateway: connection
// status, pairing code, recent chats and a composer.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/wppgw/internal/status"
	"github.com/matheus3301/wppgw/internal/tui/keys"
	"github.com/matheus3301/wppgw/internal/tui/model"
	"github.com/matheus3301/wppgw/internal/tui/views"
	"github.com/rivo/tview"
)

// RefreshInterval is how often the dashboard polls the daemon.
const RefreshInterval = 2 * time.Second

const (
	pageAuth  = "auth"
	pageChats = "chats"
	pageChat  = "chat"
	pageSend  = "send"
)

// App is the dashboard shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	registry  *keys.Registry
	header    *views.Header
	statusBar *views.StatusBar
	chatList  *views.ChatList
	msgView   *views.MessageView
	composer  *views.Composer
	authView  *views.AuthView
	sendForm  *tview.Form
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp builds the dashboard for sessionName on top of c.
func NewApp(c model.API, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(c),
		registry:  keys.NewRegistry(),
		header:    views.NewHeader(sessionName),
		statusBar: views.NewStatusBar(),
		chatList:  views.NewChatList(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		authView:  views.NewAuthView(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q',
		Description: "q:quit", Visible: true,
		Handler: a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'r',
		Description: "r:refresh", Visible: true,
		Handler: func() { go a.refresh() },
	})
	a.registry.AddPage(pageChats, &keys.Action{
		Key: tcell.KeyRune, Rune: 'n',
		Description: "n:new message", Visible: true,
		Handler: a.showSendForm,
	})
	a.registry.AddPage(pageChats, &keys.Action{
		Key:         tcell.KeyEnter,
		Description: "enter:open", Visible: true,
		Handler: func() {
			if chat := a.chatList.SelectedChat(); chat.ID != "" {
				a.openChat(chat.ID)
			}
		},
	})
	a.registry.AddPage(pageChat, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i',
		Description: "i:compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.composer) },
	})
	a.registry.AddPage(pageChat, &keys.Action{
		Key:         tcell.KeyEscape,
		Description: "esc:back", Visible: true,
		Handler:     a.showChats,
	})
}

func (a *App) setupCallbacks() {
	a.composer.SetOnSend(func(text string) {
		chatID := a.vm.ActiveChat()
		phone, ok := phoneFromChatID(chatID)
		if !ok {
			a.vm.Flash.Error("Sending to groups is not supported", 5*time.Second)
			a.drawFlash()
			return
		}
		go a.send(phone, text, chatID)
	})

	a.sendForm = tview.NewForm().
		AddInputField("Phone", "", 24, nil, nil).
		AddInputField("Message", "", 0, nil, nil)
	a.sendForm.AddButton("Send", func() {
		phone := a.sendForm.GetFormItemByLabel("Phone").(*tview.InputField).GetText()
		text := a.sendForm.GetFormItemByLabel("Message").(*tview.InputField).GetText()
		if strings.TrimSpace(phone) == "" || strings.TrimSpace(text) == "" {
			a.vm.Flash.Error("Phone and message are required", 5*time.Second)
			a.drawFlash()
			return
		}
		go a.send(phone, text, "")
		a.showChats()
	})
	a.sendForm.AddButton("Cancel", a.showChats)
	a.sendForm.SetCancelFunc(a.showChats)
	a.sendForm.SetBorder(true).SetTitle(" New Message ")
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage(pageChats, a.chatList, true, true)
	a.pages.AddPage(pageChat, chatFlex, true, false)
	a.pages.AddPage(pageAuth, a.authView, true, false)
	a.pages.AddPage(pageSend, a.sendForm, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.header, 2, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.statusBar.SetHints(a.registry.Hints(pageChats))

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		current, _ := a.pages.GetFrontPage()

		// Text inputs keep every key except Escape, which leaves the composer.
		switch a.app.GetFocus().(type) {
		case *tview.InputField, *tview.Button:
			if current == pageChat && event.Key() == tcell.KeyEscape {
				a.app.SetFocus(a.msgView)
				return nil
			}
			return event
		}

		if a.registry.HandleEvent(current, event) {
			return nil
		}
		return event
	})
}

func (a *App) switchTo(page string, focus tview.Primitive) {
	a.pages.SwitchToPage(page)
	a.app.SetFocus(focus)
	a.statusBar.SetHints(a.registry.Hints(page))
}

func (a *App) showChats() {
	a.switchTo(pageChats, a.chatList)
}

func (a *App) showSendForm() {
	a.sendForm.GetFormItemByLabel("Phone").(*tview.InputField).SetText("")
	a.sendForm.GetFormItemByLabel("Message").(*tview.InputField).SetText("")
	a.sendForm.SetFocus(0)
	a.switchTo(pageSend, a.sendForm)
}

func (a *App) openChat(chatID string) {
	go func() {
		if err := a.vm.LoadMessages(a.ctx, chatID); err != nil {
			a.vm.Flash.Error("Load failed: "+err.Error(), 5*time.Second)
			a.app.QueueUpdateDraw(a.drawFlash)
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.msgView.SetChatName(a.vm.ChatName(chatID))
			a.msgView.Update(a.vm.GetMessages())
			a.switchTo(pageChat, a.msgView)
		})
	}()
}

func (a *App) send(phone, text, chatID string) {
	if err := a.vm.SendText(a.ctx, phone, text); err != nil {
		a.vm.Flash.Error("Send failed: "+err.Error(), 5*time.Second)
	} else if chatID != "" {
		_ = a.vm.LoadMessages(a.ctx, chatID)
	}
	a.app.QueueUpdateDraw(func() {
		if chatID != "" {
			a.msgView.Update(a.vm.GetMessages())
		}
		a.drawFlash()
	})
}

// refresh polls the daemon and redraws. While not connected the pairing
// pane replaces the chat list.
func (a *App) refresh() {
	statusErr := a.vm.LoadStatus(a.ctx)
	st, qr := a.vm.GetStatus()
	connected := statusErr == nil && st != nil && st.Status == status.Connected
	if connected {
		if err := a.vm.LoadChats(a.ctx); err != nil {
			a.vm.Flash.Error("Chats: "+err.Error(), 3*time.Second)
		}
	}
	active := a.vm.ActiveChat()

	a.app.QueueUpdateDraw(func() {
		current, _ := a.pages.GetFrontPage()
		if statusErr != nil {
			a.header.Update(nil, 0)
			a.vm.Flash.Error("Daemon unreachable: "+statusErr.Error(), 3*time.Second)
			a.drawFlash()
			return
		}
		a.header.Update(st, len(a.vm.GetChats()))

		switch {
		case !connected:
			if qr != nil && qr.Raw != "" {
				a.authView.ShowQR(qr.Raw)
			} else {
				a.authView.ShowMessage("Waiting for the daemon to produce a pairing code...")
			}
			if current != pageAuth {
				a.switchTo(pageAuth, a.authView)
			}
		case current == pageAuth:
			a.chatList.Update(a.vm.GetChats())
			a.showChats()
		case current == pageChats:
			a.chatList.Update(a.vm.GetChats())
		case current == pageChat && active != "":
			go func() {
				if a.vm.LoadMessages(a.ctx, active) == nil {
					a.app.QueueUpdateDraw(func() { a.msgView.Update(a.vm.GetMessages()) })
				}
			}()
		}
		a.drawFlash()
	})
}

func (a *App) drawFlash() {
	msg, level := a.vm.Flash.Current()
	a.statusBar.SetFlash(msg, level)
}

// Run starts polling and blocks until the dashboard exits.
func (a *App) Run() error {
	go func() {
		a.refresh()
		ticker := time.NewTicker(RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.refresh()
			case <-a.ctx.Done():
				return
			}
		}
	}()

	return a.app.Run()
}

// Stop cancels polling and shuts the dashboard down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// phoneFromChatID returns the number behind a direct chat JID. Group chats
// have no phone number.
func phoneFromChatID(chatID string) (string, bool) {
	user, server, ok := strings.Cut(chatID, "@")
	if !ok || user == "" || server != "s.whatsapp.net" {
		return "", false
	}
	user, _, _ = strings.Cut(user, ":")
	return user, true
}
