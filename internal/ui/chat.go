package ui

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BioHazard786/Roomdrop/internal/events"
	"github.com/BioHazard786/Roomdrop/internal/files"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/shlex"
)

const maxLogLines = 200

// Actions are what the chat view can ask of the session.
type Actions struct {
	SendText  func(text string) error
	SendFiles func(paths ...string) error
	Leave     func()
}

type logLine struct {
	text  string
	style lipgloss.Style
}

// ChatModel is the interactive room view: message log, transfer progress,
// status and an input line accepting chat text or /commands.
type ChatModel struct {
	roomID  string
	actions Actions
	summary *Summary

	input textinput.Model
	bar   progress.Model

	log      []logLine
	status   string
	transfer progressMsg

	width    int
	height   int
	quitting bool
}

// NewChatModel builds the view for roomID.
func NewChatModel(roomID string, actions Actions, summary *Summary) *ChatModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message, /send <files>, or /leave"
	ti.Prompt = IconChat + " "
	ti.CharLimit = 4096
	ti.Focus()

	if summary == nil {
		summary = NewSummary()
	}

	return &ChatModel{
		roomID:  roomID,
		actions: actions,
		summary: summary,
		input:   ti,
		bar: progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
		status: "Waiting for peer...",
		width:  80,
		height: 24,
	}
}

func (m *ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, m.leave()
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			return m, m.submit(line)
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.bar.Width = max(10, min(40, msg.Width-50))
		m.input.Width = max(10, msg.Width-4)
		return m, nil

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case notifyMsg:
		m.append(msg.text, noteStyle(msg.kind))
		return m, nil

	case chatMsg:
		if msg.dir == events.Sent {
			m.append("You: "+msg.text, SentStyle)
		} else {
			m.append("Peer: "+msg.text, ReceivedStyle)
		}
		return m, nil

	case progressMsg:
		m.transfer = msg
		return m, nil

	case savedMsg:
		switch {
		case msg.err != nil:
			m.append(fmt.Sprintf("Could not save %s: %v", msg.name, msg.err), ErrorStyle)
		case msg.path != "":
			m.append(fmt.Sprintf("%s Saved %s", IconReceive, msg.path), SuccessStyle)
		}
		return m, nil

	case ClosedMsg:
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *ChatModel) submit(line string) tea.Cmd {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	command, args, _ := strings.Cut(line, " ")
	switch command {
	case "/leave", "/quit":
		return m.leave()

	case "/send":
		// Paths with spaces are quoted or escaped as in a shell.
		paths, err := shlex.Split(args)
		if err != nil {
			m.append("Cannot parse paths: "+err.Error(), ErrorStyle)
			return nil
		}
		if len(paths) == 0 {
			m.append("Usage: /send <file> [file...]", WarningStyle)
			return nil
		}
		infos, err := files.Validate(paths)
		if err != nil {
			m.append(err.Error(), ErrorStyle)
			return nil
		}
		// Session failures arrive as notifications.
		if err := m.actions.SendFiles(paths...); err != nil {
			return nil
		}
		m.summary.AddSent(len(infos), files.TotalSize(infos))
		m.append(FileTableView(FileItems(infos)), MutedStyle)
		return nil

	case "/help":
		m.append("Commands: /send <files>, /leave", MutedStyle)
		return nil
	}

	// Failures are also raised as notifications by the session.
	if err := m.actions.SendText(line); err != nil {
		slog.Warn("chat message not sent", "error", err)
	}
	return nil
}

func (m *ChatModel) leave() tea.Cmd {
	if m.quitting {
		return tea.Quit
	}
	m.quitting = true
	if m.actions.Leave != nil {
		m.actions.Leave()
	}
	return tea.Quit
}

func (m *ChatModel) append(text string, style lipgloss.Style) {
	m.log = append(m.log, logLine{text: text, style: style})
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func (m *ChatModel) View() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s Room %s", IconRoom, m.roomID)))
	b.WriteString("  ")
	b.WriteString(StatusStyle.Render(m.status))
	b.WriteString("\n\n")

	visible := max(3, m.height-8)
	start := max(0, len(m.log)-visible)
	for _, l := range m.log[start:] {
		b.WriteString(l.style.Render(l.text))
		b.WriteString("\n")
	}

	if m.transfer.name != "" {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s %s %5.1f%%  %s  %s\n",
			truncate(m.transfer.name, 24),
			m.bar.ViewAs(m.transfer.percent/100),
			m.transfer.percent,
			files.FormatSize(m.transfer.size),
			files.FormatSpeed(m.transfer.speed),
		))
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("enter: send • /send <files> • /leave • ctrl+c: quit"))
	return b.String()
}

// Log returns the plain text of the message log.
func (m *ChatModel) Log() []string {
	out := make([]string, len(m.log))
	for i, l := range m.log {
		out[i] = l.text
	}
	return out
}

// Status returns the current status line.
func (m *ChatModel) Status() string {
	return m.status
}

func noteStyle(kind events.Kind) lipgloss.Style {
	switch kind {
	case events.KindError:
		return ErrorStyle
	case events.KindSuccess:
		return SuccessStyle
	default:
		return MutedStyle
	}
}

// RunChat runs the chat view until the user leaves or the session closes.
func RunChat(model *ChatModel, bridge *Bridge) error {
	p := tea.NewProgram(model)
	bridge.Attach(p)
	defer bridge.Close()

	_, err := p.Run()
	return err
}
