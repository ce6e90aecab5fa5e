package chatcmder

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/degreepathco/advisor/cmd/advisor/cliconfig"
	"github.com/degreepathco/advisor/pkg/session"
	"github.com/degreepathco/advisor/pkg/tutor"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	studentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	tutorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	helpStyle    = lipgloss.NewStyle().Faint(true)
)

// turnEvent crosses from the session goroutine into the tea loop. Partials
// carry the full buffered text so far, so dropping one under backpressure
// loses nothing: the next partial or the final message supersedes it.
type turnEvent struct {
	partial string
	final   *tutor.Message
	err     error
}

type clearDoneMsg struct{ err error }

type chatModel struct {
	ctx      context.Context
	sess     *session.Session
	events   chan turnEvent
	buffered bool

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model
	renderer *glamour.TermRenderer

	studentName string
	sending     bool
	partial     string
	notice      string
	ready       bool
	width       int
}

func newChatModel(ctx context.Context, sess *session.Session, events chan turnEvent, studentName string, buffered bool) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask the tutor..."
	ti.Prompt = "> "
	ti.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(tutorStyle))

	return chatModel{
		ctx:         ctx,
		sess:        sess,
		events:      events,
		buffered:    buffered,
		input:       ti,
		spin:        sp,
		studentName: studentName,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent())
}

func (m chatModel) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return <-events
	}
}

func (m chatModel) sendTurn(text string) tea.Cmd {
	ctx, sess, events, buffered := m.ctx, m.sess, m.events, m.buffered
	return func() tea.Msg {
		var (
			msg *tutor.Message
			err error
		)
		if buffered {
			msg, err = sess.SendTurnBuffered(ctx, text)
		} else {
			msg, err = sess.SendTurn(ctx, text)
		}
		if err != nil {
			events <- turnEvent{err: err}
		} else {
			events <- turnEvent{final: msg}
		}
		return nil
	}
}

func (m chatModel) clearHistory() tea.Cmd {
	ctx, sess := m.ctx, m.sess
	return func() tea.Msg {
		return clearDoneMsg{err: sess.ClearHistory(ctx)}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		chromeHeight := 4 // title + input + status
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chromeHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chromeHeight
		}
		if r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(msg.Width-4),
		); err == nil {
			m.renderer = r
		}
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlL:
			if !m.sending {
				return m, m.clearHistory()
			}
			return m, nil
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.sending {
				return m, nil
			}
			m.input.SetValue("")
			m.sending = true
			m.notice = ""
			m.partial = ""
			return m, tea.Batch(m.sendTurn(text), m.spin.Tick)
		}

	case spinner.TickMsg:
		if !m.sending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		m.refreshTranscript()
		return m, cmd

	case turnEvent:
		switch {
		case msg.err != nil:
			m.sending = false
			m.partial = ""
			m.notice = "turn failed, message not kept: " + msg.err.Error()
		case msg.final != nil:
			m.sending = false
			m.partial = ""
		default:
			m.partial = msg.partial
		}
		m.refreshTranscript()
		return m, m.waitForEvent()

	case clearDoneMsg:
		if msg.err != nil {
			m.notice = "could not clear history: " + msg.err.Error()
		} else {
			m.notice = "history cleared"
		}
		m.refreshTranscript()
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

func (m *chatModel) refreshTranscript() {
	if !m.ready {
		return
	}
	var b strings.Builder
	for _, msg := range m.sess.Transcript() {
		if msg.Role == tutor.RoleStudent {
			b.WriteString(studentStyle.Render("you") + "  " + msg.Content + "\n\n")
		} else {
			b.WriteString(tutorStyle.Render("tutor") + "\n" + m.renderMarkdown(msg.Content) + "\n")
		}
	}
	if m.partial != "" {
		b.WriteString(tutorStyle.Render("tutor") + "  " + m.partial + "▌\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *chatModel) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content + "\n"
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content + "\n"
	}
	return rendered
}

func (m chatModel) View() string {
	if !m.ready {
		return "starting up..."
	}

	title := titleStyle.Render("DegreePath Tutor") + helpStyle.Render("  chatting as "+m.studentName)

	status := helpStyle.Render("enter send · ctrl+l clear history · esc quit")
	if m.sending {
		status = m.spin.View() + helpStyle.Render("tutor is thinking...")
	}
	if m.notice != "" {
		status = noticeStyle.Render(m.notice)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.viewport.View(),
		m.input.View(),
		status,
	)
}

func (c *chatCommander) runTUI(ctx context.Context, cfg cliconfig.Config, client *tutor.Client, log *zap.Logger, profile *tutor.StudentProfile) error {
	events := make(chan turnEvent, 64)
	sess := session.New(client, c.studentID,
		session.WithLogger(log),
		session.WithStallTimeout(cfg.Stall()),
		session.WithPartialHandler(func(full string) {
			// Non-blocking: every partial carries the whole buffer, so a
			// dropped one is replaced by the next.
			select {
			case events <- turnEvent{partial: full}:
			default:
			}
		}),
	)

	if err := sess.LoadHistory(ctx); err != nil {
		return err
	}

	p := tea.NewProgram(
		newChatModel(ctx, sess, events, profile.Name, c.buffered),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	return err
}
