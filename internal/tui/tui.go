// Package tui provides the Bubble Tea chat surface for playing a mission:
// committed history in a scrollable viewport, the streaming pending turn, and
// a draft text box for the next submission.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stdkoehler/gamemaister-cli/internal/engine"
	"github.com/stdkoehler/gamemaister-cli/internal/session"
)

// ── Styles ────────────

var (
	// Title bar at the very top
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	playerLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("33"))

	gmLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	pendingMarkStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("178"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
)

// ── Messages ─────────────────

// sessionMsg carries a fresh session copy published by the state store.
type sessionMsg struct {
	s session.Session
}

// turnDoneMsg reports the outcome of a Submit or Regenerate.
type turnDoneMsg struct {
	err error
}

// ── Model ────────────────────

// Model is the root Bubble Tea model for the play screen.
type Model struct {
	eng      *engine.Engine
	sess     session.Session
	viewport viewport.Model
	input    textarea.Model
	spin     spinner.Model
	width    int
	height   int
	ready    bool
	sending  bool
	lastErr  string
}

// New creates the play model over the given engine and initial session state.
func New(eng *engine.Engine, sess session.Session) Model {
	ta := textarea.New()
	ta.Placeholder = "What do you do?"
	ta.SetHeight(3)
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetValue(sess.DraftInput)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{eng: eng, sess: sess, input: ta, spin: sp}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return textarea.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.eng.Stop()
			m.persistDraft()
			return m, tea.Quit
		case "esc":
			if m.sending {
				m.eng.Stop()
				return m, nil
			}
			m.persistDraft()
			return m, tea.Quit
		case "enter":
			if m.sending {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.sending = true
			m.lastErr = ""
			m.input.Reset()
			return m, tea.Batch(m.spin.Tick, submitCmd(m.eng, text))
		case "ctrl+r":
			if m.sending || m.sess.PendingPlayerInput == "" {
				return m, nil
			}
			m.sending = true
			m.lastErr = ""
			return m, tea.Batch(m.spin.Tick, regenerateCmd(m.eng))
		}
		// The draft box is frozen while a turn streams.
		if m.sending {
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case sessionMsg:
		m.sess = msg.s
		m.refreshViewport()
		return m, nil

	case turnDoneMsg:
		m.sending = false
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.sending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(msg.Width - 2)
		vh := msg.Height - 7 // title + status + input box
		if vh < 3 {
			vh = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vh)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vh
		}
		m.refreshViewport()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  gamemaister  " + m.sess.MissionTitle)

	status := "enter send  ctrl+r regenerate  esc quit"
	if m.sending {
		status = m.spin.View() + " the gamemaster is thinking…  esc stop"
	}
	if m.lastErr != "" {
		status = errStyle.Render("✗ " + m.lastErr)
	}
	bar := statusBarStyle.Width(m.width).Render(status)

	return title + "\n" + m.viewport.View() + "\n" + bar + "\n" + m.input.View()
}

// refreshViewport re-renders history plus the pending turn and scrolls to the
// bottom so streamed text stays visible.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	var b strings.Builder
	for _, it := range m.sess.History {
		writeTurn(&b, it.PlayerInput, it.ModelOutput)
	}
	if m.sess.PendingPlayerInput != "" || m.sess.PendingModelOutput != "" {
		b.WriteString(pendingMarkStyle.Render("── pending ──"))
		b.WriteString("\n")
		writeTurn(&b, m.sess.PendingPlayerInput, m.sess.PendingModelOutput)
	}
	if b.Len() == 0 {
		b.WriteString(dimStyle.Render("The mission awaits. Type your first move below."))
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func writeTurn(b *strings.Builder, playerInput, modelOutput string) {
	if playerInput != "" {
		fmt.Fprintf(b, "%s %s\n", playerLabelStyle.Render("You ▸"), playerInput)
	}
	if modelOutput != "" {
		fmt.Fprintf(b, "%s %s\n", gmLabelStyle.Render("GM ▸"), modelOutput)
	}
	b.WriteString("\n")
}

// persistDraft saves the half-typed draft so it survives a restart.
// Best-effort: ignored while a turn streams.
func (m *Model) persistDraft() {
	_ = m.eng.EditDraft(m.input.Value())
}

func submitCmd(eng *engine.Engine, text string) tea.Cmd {
	return func() tea.Msg {
		return turnDoneMsg{err: eng.Submit(context.Background(), text)}
	}
}

func regenerateCmd(eng *engine.Engine) tea.Cmd {
	return func() tea.Msg {
		return turnDoneMsg{err: eng.Regenerate(context.Background())}
	}
}

// Run starts the play screen and blocks until the player quits. Session
// mutations published by the store are forwarded into the program so streamed
// fragments render as they arrive.
func Run(store *session.Store, eng *engine.Engine) error {
	p := tea.NewProgram(New(eng, store.Snapshot()), tea.WithAltScreen())
	store.Subscribe(func(s session.Session) {
		p.Send(sessionMsg{s: s})
	})
	_, err := p.Run()
	return err
}
