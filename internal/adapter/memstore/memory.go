package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"docchat/internal/domain"
)

// Memory keeps conversation memory in process.
type Memory struct {
	mu      sync.RWMutex
	clock   domain.Clock
	entries map[string][]domain.MemoryEntry // oldest first
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string][]domain.MemoryEntry),
	}
}

func (m *Memory) Append(ctx context.Context, conversationID, text string, embedding []float32) (domain.MemoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := domain.MemoryEntry{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Text:           text,
		Embedding:      slices.Clone(embedding),
		CreatedAt:      m.clock.Next(),
	}
	m.entries[conversationID] = append(m.entries[conversationID], entry)
	return entry, nil
}

// Entries returns up to topK entries, newest first.
func (m *Memory) Entries(ctx context.Context, conversationID string, topK int) ([]domain.MemoryEntry, error) {
	if topK <= 0 {
		topK = domain.DefaultTopK
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.entries[conversationID]
	n := min(topK, len(all))
	out := make([]domain.MemoryEntry, 0, n)
	for i := len(all) - 1; i >= len(all)-n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *Memory) Recent(ctx context.Context, conversationID string, topK int) (string, error) {
	entries, err := m.Entries(ctx, conversationID, topK)
	if err != nil {
		return "", err
	}
	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Text
	}
	return strings.Join(texts, "\n\n"), nil
}

func (m *Memory) Close() error {
	return nil
}
