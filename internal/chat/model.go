// Package chat is the interactive question-and-answer TUI behind
// "ragctl chat".
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/ragd/internal/retrieval"
)

const (
	defaultWidth   = 80
	defaultHeight  = 24
	previewRunes   = 100
	chromeHeight   = 5
	maxQueryLength = 2000
)

// Querier answers questions. *client.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, query string, opts retrieval.Options) (retrieval.Result, error)
}

// exchange is one question with its outcome.
type exchange struct {
	question string
	result   retrieval.Result
	err      error
	elapsed  time.Duration
}

// Model is the bubbletea chat model.
type Model struct {
	querier Querier
	opts    retrieval.Options
	server  string
	timeout time.Duration

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	history  []exchange
	pending  string
	width    int
	quitting bool
}

// Message types
type answerMsg exchange

// NewModel creates a chat model that sends every question with opts.
func NewModel(q Querier, server string, opts retrieval.Options, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask a question about your documents"
	ti.CharLimit = maxQueryLength
	ti.Prompt = "› "
	ti.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = questionStyle

	vp := viewport.New(defaultWidth, defaultHeight-chromeHeight)

	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return Model{
		querier:  q,
		opts:     opts,
		server:   server,
		timeout:  timeout,
		input:    ti,
		viewport: vp,
		spinner:  sp,
		width:    defaultWidth,
	}
}

// Init starts the cursor blinking.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// ask runs a query off the UI goroutine.
func ask(q Querier, question string, opts retrieval.Options, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := time.Now()
		res, err := q.Query(ctx, question, opts)
		return answerMsg{question: question, result: res, err: err, elapsed: time.Since(start)}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			question := strings.TrimSpace(m.input.Value())
			if question == "" || m.pending != "" {
				return m, nil
			}
			if question == "/quit" || question == "/exit" {
				m.quitting = true
				return m, tea.Quit
			}
			m.pending = question
			m.input.Reset()
			m.refresh()
			return m, tea.Batch(ask(m.querier, question, m.opts, m.timeout), m.spinner.Tick)
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()
		return m, nil

	case answerMsg:
		m.history = append(m.history, exchange(msg))
		m.pending = ""
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.pending == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// refresh re-renders the transcript and keeps the newest entry in view.
func (m *Model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m Model) transcript() string {
	var b strings.Builder
	wrap := lipgloss.NewStyle().Width(max(m.width-2, 20))

	for _, ex := range m.history {
		b.WriteString(questionStyle.Render("Q: "+ex.question) + "\n")
		switch {
		case ex.err != nil:
			b.WriteString(errorStyle.Render("✗ "+ex.err.Error()) + "\n")
		default:
			style := answerStyle
			if !ex.result.Success {
				style = warningStyle
			}
			b.WriteString(wrap.Render(style.Render(ex.result.Message)) + "\n")
			for i, src := range ex.result.Sources {
				b.WriteString(fmt.Sprintf("  %s %s %s\n",
					dimStyle.Render(fmt.Sprintf("[%d]", i+1)),
					sourceStyle.Render(src.Source),
					scoreBadge(src.Score)))
				if p := oneLine(src.Preview, previewRunes); p != "" {
					b.WriteString("      " + dimStyle.Render(p) + "\n")
				}
			}
		}
		b.WriteString(dimStyle.Render(FormatLatency(ex.elapsed)) + "\n\n")
	}
	if m.pending != "" {
		b.WriteString(questionStyle.Render("Q: "+m.pending) + "\n")
		b.WriteString(m.spinner.View() + dimStyle.Render(" thinking…") + "\n")
	}
	if len(m.history) == 0 && m.pending == "" {
		b.WriteString(dimStyle.Render("No questions yet.") + "\n")
	}
	return b.String()
}

// View renders the chat.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	header := headerStyle.Render("ragd chat") + " " + dimStyle.Render(m.server)
	footer := footerStyle.Render("[enter] ask  [↑/↓ pgup/pgdn] scroll  [esc] quit")
	return header + "\n" + m.viewport.View() + "\n" + m.input.View() + "\n" + footer
}

// Run starts the TUI and blocks until the user quits.
func Run(q Querier, server string, opts retrieval.Options, timeout time.Duration) error {
	_, err := tea.NewProgram(NewModel(q, server, opts, timeout), tea.WithAltScreen()).Run()
	return err
}
