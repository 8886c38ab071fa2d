package port

import (
	"context"

	"docchat/internal/domain"
)

// MemoryStore is the append-only per-conversation log of assistant answers.
type MemoryStore interface {
	// Append stores a new entry stamped with the current time. The entry is
	// durable once Append returns.
	Append(ctx context.Context, conversationID, text string, embedding []float32) (domain.MemoryEntry, error)

	// Recent returns the texts of up to topK newest entries, newest first,
	// separated by a blank line. It returns "" when there are none.
	Recent(ctx context.Context, conversationID string, topK int) (string, error)

	// Entries returns up to topK newest entries, newest first.
	Entries(ctx context.Context, conversationID string, topK int) ([]domain.MemoryEntry, error)

	Close() error
}
