package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Lanchu14/project-realtime/internal/call"
	"github.com/Lanchu14/project-realtime/internal/history"
	"github.com/Lanchu14/project-realtime/internal/session"
)

// Events delivered to the chat view from session callbacks.
type (
	// MessageEvent carries a newly displayed chat message.
	MessageEvent struct{ Msg history.Message }

	// RejectedEvent carries a message the server refused to persist.
	RejectedEvent struct{ Msg history.Message }

	// IncomingCallEvent announces a ringing call.
	IncomingCallEvent struct{ From string }

	// CallAcceptedEvent fires when the other participant answered.
	CallAcceptedEvent struct{}

	// CallEndedEvent fires when the call is over.
	CallEndedEvent struct{}

	// ErrorEvent carries a server-side error reason.
	ErrorEvent struct{ Reason string }
)

type callDone struct{ err error }

const callTimeout = 30 * time.Second

// ChatModel is the interactive chat view for one booking room.
type ChatModel struct {
	session *session.Session
	user    string
	room    string
	events  <-chan tea.Msg

	viewport viewport.Model
	input    textinput.Model
	lines    []string
	status   string
	ready    bool
}

// NewChat builds the chat view. The events channel is fed by the session
// callbacks wired up by the caller.
func NewChat(s *session.Session, user, room string, events <-chan tea.Msg) ChatModel {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Prompt = InputPromptStyle.Render("> ")
	input.CharLimit = 500
	input.Focus()

	return ChatModel{
		session: s,
		user:    user,
		room:    room,
		events:  events,
		input:   input,
		status:  "connected",
	}
}

func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitEvent())
}

// waitEvent re-arms the session event pump. Exactly one of these is in
// flight at any time.
func (m ChatModel) waitEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 1
		footerHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.input.Width = msg.Width - 4
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text == "" {
				return m, nil
			}
			return m, m.sendCmd(text)
		}

		switch msg.String() {
		case "ctrl+t":
			if m.session.CallState() != call.StateIdle {
				return m, nil
			}
			m.status = IconCall + " calling..."
			return m, m.initiateCmd()

		case "ctrl+a":
			if m.session.CallState() != call.StateIncoming {
				return m, nil
			}
			m.status = IconCall + " answering..."
			return m, m.acceptCmd()

		case "ctrl+x":
			switch m.session.CallState() {
			case call.StateIncoming:
				m.session.DeclineCall()
				m.status = "call declined"
			case call.StateIdle:
			default:
				m.session.HangUp()
				m.status = IconEnded + " call ended"
			}
			return m, nil
		}

	case MessageEvent:
		m.lines = append(m.lines, m.formatLine(msg.Msg))
		m.refresh()
		return m, m.waitEvent()

	case RejectedEvent:
		m.lines = append(m.lines, RejectedStyle.Render(
			fmt.Sprintf("%s: %s (not delivered)", msg.Msg.User, msg.Msg.Text)))
		m.status = ErrorStyle.Render("message not saved")
		m.refresh()
		return m, m.waitEvent()

	case IncomingCallEvent:
		m.status = fmt.Sprintf("%s %s is calling — ctrl+a answer, ctrl+x decline", IconCall, msg.From)
		return m, m.waitEvent()

	case CallAcceptedEvent:
		m.status = SuccessStyle.Render(IconCall + " call connected")
		return m, m.waitEvent()

	case CallEndedEvent:
		m.status = IconEnded + " call ended"
		return m, m.waitEvent()

	case ErrorEvent:
		m.status = ErrorStyle.Render(msg.Reason)
		return m, m.waitEvent()

	case callDone:
		if msg.err != nil {
			m.status = ErrorStyle.Render(msg.err.Error())
		}
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m ChatModel) View() string {
	if !m.ready {
		return "loading..."
	}

	header := ChatHeaderStyle.Render(fmt.Sprintf("%s booking %s", IconChat, m.room))
	footer := ChatFooterStyle.Render("enter send · ctrl+t call · ctrl+a answer · ctrl+x hang up · esc quit")

	return fmt.Sprintf("%s\n%s\n%s\n%s %s",
		header, m.viewport.View(), m.input.View(), m.status, footer)
}

func (m *ChatModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m ChatModel) formatLine(msg history.Message) string {
	name := PeerNameStyle.Render(msg.User)
	if msg.User == m.user {
		name = SelfNameStyle.Render(msg.User)
	}
	return fmt.Sprintf("%s %s: %s",
		TimestampStyle.Render(formatClock(msg.Time)), name, msg.Text)
}

func (m ChatModel) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.session.Send(text); err != nil {
			return ErrorEvent{Reason: err.Error()}
		}
		return nil
	}
}

func (m ChatModel) initiateCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		return callDone{err: m.session.InitiateCall(ctx)}
	}
}

func (m ChatModel) acceptCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		return callDone{err: m.session.AcceptCall(ctx)}
	}
}

// formatClock shows just the wall-clock part of a stored timestamp.
func formatClock(stamp string) string {
	ts, err := time.Parse(isoMillis, stamp)
	if err != nil {
		return stamp
	}
	return ts.Local().Format("15:04")
}

// RunChat runs the chat view until the user quits.
func RunChat(model ChatModel) error {
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
