package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docchat/internal/domain"
)

// Querier is the TUI-facing subset of the query orchestrator.
type Querier interface {
	Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error)
}

type turn struct {
	question string
	answer   string
	sources  []string
	warnings []string
	err      error
}

type answerMsg struct {
	resp *domain.QueryResponse
	err  error
}

// Model is the Bubble Tea model of one conversation.
type Model struct {
	ctx            context.Context
	querier        Querier
	conversationID string

	input    textinput.Model
	viewport viewport.Model
	turns    []turn
	pending  bool
	status   string
	ready    bool
}

// New creates a chat model bound to conversationID.
func New(ctx context.Context, querier Querier, conversationID string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:            ctx,
		querier:        querier,
		conversationID: conversationID,
		input:          ti,
		viewport:       vp,
		status:         "Ready.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 2 + 1 + ih + 1 // header, status, input, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case answerMsg:
		m.pending = false
		last := &m.turns[len(m.turns)-1]
		if msg.err != nil {
			last.err = msg.err
			m.status = "Error: " + msg.err.Error()
		} else {
			last.answer = msg.resp.Answer
			last.sources = msg.resp.Sources
			last.warnings = msg.resp.Warnings
			m.status = "Ready."
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.input.SetValue("")
			m.turns = append(m.turns, turn{question: q})
			m.pending = true
			m.status = "Thinking..."
			m.refresh()
			return m, m.ask(q)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.querier.Query(m.ctx, domain.QueryRequest{
			Question:       question,
			ConversationID: m.conversationID,
		})
		return answerMsg{resp: resp, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("docchat")
	conv := mutedStyle.Render("conversation " + m.conversationID)
	transcript := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + conv + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return mutedStyle.Render("No questions yet.")
	}

	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("you: " + t.question))
		b.WriteString("\n")
		switch {
		case t.err != nil:
			b.WriteString(errorStyle.Render("error: " + t.err.Error()))
		case t.answer == "" && m.pending && i == len(m.turns)-1:
			b.WriteString(mutedStyle.Render("..."))
		default:
			b.WriteString(t.answer)
			if len(t.sources) > 0 {
				b.WriteString("\n")
				b.WriteString(mutedStyle.Render(fmt.Sprintf("sources: %s", strings.Join(t.sources, ", "))))
			}
			for _, w := range t.warnings {
				b.WriteString("\n")
				b.WriteString(errorStyle.Render("warning: " + w))
			}
		}
	}
	return b.String()
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
