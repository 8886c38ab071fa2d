package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"docchat/internal/domain"
)

type fakeQuerier struct {
	reqs []domain.QueryRequest
	resp *domain.QueryResponse
	err  error
}

func (f *fakeQuerier) Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func submit(t *testing.T, m Model, question string) Model {
	t.Helper()
	m.input.SetValue(question)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if cmd == nil {
		t.Fatal("expected a query command")
	}
	if !m.pending {
		t.Error("model should be waiting for the answer")
	}

	next, _ = m.Update(cmd())
	return next.(Model)
}

func TestChatAsksWithConversationID(t *testing.T) {
	q := &fakeQuerier{resp: &domain.QueryResponse{Answer: "blue", Sources: []string{"sky.txt"}}}
	m := New(context.Background(), q, "c1")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = next.(Model)

	m = submit(t, m, "What color is the sky?")

	if len(q.reqs) != 1 || q.reqs[0].ConversationID != "c1" || q.reqs[0].Question != "What color is the sky?" {
		t.Fatalf("unexpected requests %+v", q.reqs)
	}
	if m.pending {
		t.Error("answer should have cleared the pending flag")
	}
	transcript := m.renderTranscript()
	if !strings.Contains(transcript, "blue") || !strings.Contains(transcript, "sky.txt") {
		t.Errorf("transcript lacks the answer:\n%s", transcript)
	}
	if m.input.Value() != "" {
		t.Error("input should be cleared after submitting")
	}
}

func TestChatShowsErrors(t *testing.T) {
	q := &fakeQuerier{err: errors.New("upstream returned 500")}
	m := New(context.Background(), q, "c1")

	m = submit(t, m, "q")

	if !strings.Contains(m.status, "upstream returned 500") {
		t.Errorf("status should carry the error, got %q", m.status)
	}
	if !strings.Contains(m.renderTranscript(), "error: upstream returned 500") {
		t.Errorf("transcript lacks the error:\n%s", m.renderTranscript())
	}
}

func TestChatIgnoresBlankInput(t *testing.T) {
	q := &fakeQuerier{}
	m := New(context.Background(), q, "c1")
	m.input.SetValue("   ")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("blank input must not trigger a query")
	}
}

func TestChatQuits(t *testing.T) {
	m := New(context.Background(), &fakeQuerier{}, "c1")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c should quit")
	}
}
