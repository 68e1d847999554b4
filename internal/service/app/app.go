package app

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"bone_chat/internal/model"
	"bone_chat/internal/session"
)

const (
	pageRoles   = "roles"
	pageWaiting = "waiting"
	pageChat    = "chat"
)

type (
	// App is the terminal UI: role selection, waiting room and the chat view.
	// All session events arrive via controller callbacks and are handed to
	// tview through QueueUpdateDraw.
	App struct {
		app   *tview.Application
		pages *tview.Pages

		status  *tview.TextView
		waiting *tview.TextView
		chatbox *tview.TextView
		timer   *tview.TextView
		input   *tview.InputField

		ctrl *session.Controller
	}
)

func NewApp(host, token string) *App {
	a := &App{
		app:   tview.NewApplication(),
		pages: tview.NewPages(),
	}

	a.ctrl = session.NewController(session.Config{
		Host:  host,
		Token: token,
		Callbacks: session.Callbacks{
			OnState:   a.onState,
			OnMessage: a.onMessage,
			OnTimer:   a.onTimer,
			OnEnd:     a.onEnd,
		},
	})
	return a
}

// Run builds the UI and blocks until the user quits.
func (a *App) Run() error {
	a.pages.AddPage(pageRoles, a.buildRolePage(), true, true)
	a.pages.AddPage(pageWaiting, a.buildWaitingPage(), true, false)
	a.pages.AddPage(pageChat, a.buildChatPage(), true, false)

	return a.app.SetRoot(a.pages, true).Run()
}

func (a *App) buildRolePage() tview.Primitive {
	a.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	list := tview.NewList().
		AddItem("Caretaker", "Offer anonymous support to someone who needs it", 'c', func() {
			a.startSession(model.RoleCaretaker)
		}).
		AddItem("Help seeker", "Talk to someone, anonymously and encrypted", 'h', func() {
			a.startSession(model.RoleHelpSeeker)
		}).
		AddItem("Quit", "Leave the app", 'q', func() {
			a.app.Stop()
		})
	list.SetBorder(true).SetTitle(" Bone Chat ")

	return tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(list, 0, 1, true).
		AddItem(a.status, 1, 0, false)
}

func (a *App) buildWaitingPage() tview.Primitive {
	a.waiting = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("\n\nWaiting for a chat partner...\n\n[gray]Press Esc to go back[-]")
	a.waiting.SetBorder(true).SetTitle(" Waiting ")
	a.waiting.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape {
			go a.ctrl.Cancel()
			return nil
		}
		return event
	})
	return a.waiting
}

func (a *App) buildChatPage() tview.Primitive {
	a.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.chatbox.SetBorder(true).SetTitle(" Chat ")

	a.timer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignRight)

	a.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	a.input.SetBorder(true).SetTitle(" New Message ")

	a.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape {
			go a.ctrl.Cancel()
			return
		}
		if key != tcell.KeyEnter {
			return
		}
		text := a.input.GetText()
		if text == "" {
			return
		}
		a.input.SetText("")

		go func(msg string) {
			if err := a.ctrl.SendMessage(msg); err != nil {
				a.app.QueueUpdateDraw(func() {
					fmt.Fprintf(a.chatbox, "[red]could not send: %v[-]\n", err)
				})
			}
		}(text)
	})

	return tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.timer, 1, 0, false).
		AddItem(a.chatbox, 0, 1, false).
		AddItem(a.input, 3, 0, true)
}

func (a *App) startSession(role model.Role) {
	go func() {
		if err := a.ctrl.Start(role); err != nil {
			a.app.QueueUpdateDraw(func() {
				a.status.SetText(fmt.Sprintf("[red]could not start session: %v[-]", err))
			})
		}
	}()
}

func (a *App) onState(s session.State) {
	a.app.QueueUpdateDraw(func() {
		switch s {
		case session.StateWaiting:
			a.pages.SwitchToPage(pageWaiting)
		case session.StateKeyExchange:
			a.waiting.SetText("\n\nPartner found. Exchanging encryption keys...")
		case session.StateLive:
			a.chatbox.SetText("")
			a.timer.SetText("")
			a.pages.SwitchToPage(pageChat)
			a.app.SetFocus(a.input)
		}
	})
}

func (a *App) onMessage(m model.Message) {
	a.app.QueueUpdateDraw(func() {
		switch {
		case m.System:
			fmt.Fprintf(a.chatbox, "[gray]%s[-]\n", m.Text)
		case m.Mine:
			fmt.Fprintf(a.chatbox, "[yellow]You:[-] %s\n", m.Text)
		default:
			fmt.Fprintf(a.chatbox, "[green]Partner:[-] %s\n", m.Text)
		}
		a.chatbox.ScrollToEnd()
	})
}

func (a *App) onTimer(remaining int) {
	a.app.QueueUpdateDraw(func() {
		a.timer.SetText(fmt.Sprintf("Time remaining: %02d:%02d ", remaining/60, remaining%60))
	})
}

func (a *App) onEnd(reason session.EndReason) {
	a.app.QueueUpdateDraw(func() {
		a.status.SetText(endNotice(reason))
		a.pages.SwitchToPage(pageRoles)
	})
}

func endNotice(reason session.EndReason) string {
	switch reason {
	case session.EndTimeout:
		return "[yellow]Your session ended: the time limit was reached.[-]"
	case session.EndDisconnect:
		return "[yellow]Your chat partner disconnected.[-]"
	case session.EndCancelled:
		return "Session cancelled."
	default:
		return "[red]The session ended because of a connection problem.[-]"
	}
}
