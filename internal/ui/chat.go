package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// maxLines bounds the chat history kept in memory.
const maxLines = 500

// Actions are the intents the chat screen can trigger.
type Actions interface {
	Send(text string) error
	Next() error
	Stop() error
	Find() error
	Quit()
}

// Status is the pairing state shown in the header.
type Status int

const (
	StatusConnecting Status = iota
	StatusIdle
	StatusSearching
	StatusPaired
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusIdle:
		return "idle"
	case StatusSearching:
		return "searching"
	case StatusPaired:
		return "chatting"
	case StatusOffline:
		return "offline"
	}
	return "unknown"
}

// Messages fed to the chat program by the session.
type (
	ConnectedMsg    struct{ ID string }
	SearchingMsg    struct{ Text string }
	PartnerFoundMsg struct{ ID string }
	PartnerLeftMsg  struct{}
	IdleMsg         struct{}
	ChatMsg         struct {
		Text   string
		At     time.Time
		Direct bool
	}
	OnlineMsg       struct{ Count int }
	DirectMsg       struct{ Open bool }
	ErrorMsg        struct{ Err error }
	DisconnectedMsg struct{}
)

type lineKind int

const (
	lineSystem lineKind = iota
	lineSelf
	linePartner
	lineError
)

type line struct {
	kind   lineKind
	text   string
	at     time.Time
	direct bool
}

// ChatModel is the interactive chat screen.
type ChatModel struct {
	actions Actions
	input   textinput.Model
	spinner spinner.Model

	lines   []line
	status  Status
	selfID  string
	partner string
	online  int
	direct  bool

	width    int
	height   int
	quitting bool
	now      func() time.Time
}

// NewChatModel creates the chat screen driving actions.
func NewChatModel(actions Actions) *ChatModel {
	in := textinput.New()
	in.Placeholder = "Say hi, or /next /stop /find /quit"
	in.Prompt = "> "
	in.CharLimit = 2000
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &ChatModel{
		actions: actions,
		input:   in,
		spinner: s,
		status:  StatusConnecting,
		now:     time.Now,
	}
}

// Status returns the pairing state.
func (m *ChatModel) Status() Status { return m.status }

func (m *ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m.quit()
		case tea.KeyEnter:
			return m, m.submit()
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(10, msg.Width-4)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ConnectedMsg:
		m.selfID = msg.ID
		m.status = StatusIdle
		m.system(fmt.Sprintf("%s Connected as %s", IconConnect, shortID(msg.ID)))

	case SearchingMsg:
		m.status = StatusSearching
		m.partner = ""
		m.direct = false
		text := msg.Text
		if text == "" {
			text = "Looking for a partner..."
		}
		m.system(IconSearch + " " + text)

	case PartnerFoundMsg:
		m.status = StatusPaired
		m.partner = msg.ID
		m.direct = false
		m.system(fmt.Sprintf("%s You're now chatting with a stranger (%s). Say hi!", IconPeer, shortID(msg.ID)))

	case PartnerLeftMsg:
		if m.status == StatusPaired {
			m.system("Stranger has disconnected. Type /find to meet someone new.")
		}
		m.status = StatusIdle
		m.partner = ""
		m.direct = false

	case IdleMsg:
		m.status = StatusIdle
		m.partner = ""
		m.direct = false
		m.system("Stopped. Type /find when you're ready.")

	case ChatMsg:
		at := msg.At
		if at.IsZero() {
			at = m.now()
		}
		m.push(line{kind: linePartner, text: msg.Text, at: at, direct: msg.Direct})

	case OnlineMsg:
		m.online = msg.Count

	case DirectMsg:
		if msg.Open && !m.direct && m.status == StatusPaired {
			m.system(IconDirect + " Direct peer-to-peer channel open")
		}
		m.direct = msg.Open && m.status == StatusPaired

	case ErrorMsg:
		if msg.Err != nil {
			m.push(line{kind: lineError, text: msg.Err.Error(), at: m.now()})
		}

	case DisconnectedMsg:
		m.status = StatusOffline
		m.partner = ""
		m.direct = false
		m.push(line{kind: lineError, text: "Lost connection to the server.", at: m.now()})
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *ChatModel) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.actions.Quit()
	return m, tea.Quit
}

// submit handles the input line. Commands start with a slash.
func (m *ChatModel) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if text == "" {
		return nil
	}

	switch strings.ToLower(text) {
	case "/quit", "/exit":
		_, cmd := m.quit()
		return cmd
	case "/next":
		if m.status != StatusPaired {
			return m.run(m.actions.Find)
		}
		return m.run(m.actions.Next)
	case "/stop":
		return m.run(m.actions.Stop)
	case "/find":
		return m.run(m.actions.Find)
	}

	if strings.HasPrefix(text, "/") {
		m.system("Unknown command " + text)
		return nil
	}

	if m.status != StatusPaired {
		m.system("You're not chatting with anyone. Type /find to look for a partner.")
		return nil
	}

	m.push(line{kind: lineSelf, text: text, at: m.now()})
	send := m.actions.Send
	return func() tea.Msg {
		if err := send(text); err != nil {
			return ErrorMsg{Err: fmt.Errorf("message not delivered: %w", err)}
		}
		return nil
	}
}

func (m *ChatModel) run(action func() error) tea.Cmd {
	return func() tea.Msg {
		if err := action(); err != nil {
			return ErrorMsg{Err: err}
		}
		return nil
	}
}

func (m *ChatModel) system(text string) {
	m.push(line{kind: lineSystem, text: text, at: m.now()})
}

func (m *ChatModel) push(l line) {
	m.lines = append(m.lines, l)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}

func (m *ChatModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")

	lines := m.lines
	if m.height > 0 {
		if room := m.height - 6; room > 0 && len(lines) > room {
			lines = lines[len(lines)-room:]
		}
	}
	for _, l := range lines {
		b.WriteString(renderLine(l))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("enter send • /next new stranger • /stop • /find • esc quit"))
	return b.String()
}

func (m *ChatModel) header() string {
	state := m.status.String()
	switch m.status {
	case StatusConnecting, StatusSearching:
		state = m.spinner.View() + " " + state
	case StatusPaired:
		if m.direct {
			state += " " + IconDirect
		}
	}
	return fmt.Sprintf("%s %s  %s",
		HeaderStyle.Render(IconChat+" Rendezvous"),
		StatusStyle.Render(state),
		MutedStyle.Render(fmt.Sprintf("%s %d online", IconOnline, m.online)),
	)
}

func renderLine(l line) string {
	ts := MutedStyle.Render(l.at.Format("15:04"))
	switch l.kind {
	case lineSelf:
		return fmt.Sprintf("%s %s %s", ts, SelfStyle.Render("You:"), l.text)
	case linePartner:
		who := "Stranger:"
		if l.direct {
			who = IconDirect + who
		}
		return fmt.Sprintf("%s %s %s", ts, PartnerStyle.Render(who), l.text)
	case lineError:
		return fmt.Sprintf("%s %s %s", ts, ErrorStyle.Render(IconError), ErrorStyle.Render(l.text))
	default:
		return fmt.Sprintf("%s %s", ts, SystemStyle.Render(l.text))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
