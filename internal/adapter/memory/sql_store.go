package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docchat/internal/domain"
)

// SQLStore keeps conversation memory in the conversation_memory table.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	clock   domain.Clock
}

// Open connects to the memory database for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := openDB(ctx, d, dsn)
	if err != nil {
		return nil, domain.StorageError("open memory store", err)
	}

	s := &SQLStore{db: db, dialect: d}
	if err := s.observeLatest(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// observeLatest seeds the clock so timestamps keep increasing across restarts.
func (s *SQLStore) observeLatest(ctx context.Context) error {
	var latest sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(created_at) FROM conversation_memory").Scan(&latest)
	if err != nil {
		return domain.StorageError("read latest memory", err)
	}
	if latest.Valid {
		s.clock.Observe(time.Unix(0, latest.Int64))
	}
	return nil
}

// Append inserts one entry. The insert is committed when Append returns.
func (s *SQLStore) Append(ctx context.Context, conversationID, text string, embedding []float32) (domain.MemoryEntry, error) {
	entry := domain.MemoryEntry{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Text:           text,
		Embedding:      embedding,
		CreatedAt:      s.clock.Next(),
	}

	query := s.dialect.Rebind(`
		INSERT INTO conversation_memory (id, conversation_id, text, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.ConversationID, entry.Text,
		encodeEmbedding(embedding), entry.CreatedAt.UnixNano())
	if err != nil {
		return domain.MemoryEntry{}, domain.StorageError("append memory", err)
	}

	return entry, nil
}

// Entries returns up to topK entries of the conversation, newest first.
func (s *SQLStore) Entries(ctx context.Context, conversationID string, topK int) ([]domain.MemoryEntry, error) {
	if topK <= 0 {
		topK = domain.DefaultTopK
	}

	query := s.dialect.Rebind(`
		SELECT id, conversation_id, text, embedding, created_at
		FROM conversation_memory
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`)
	rows, err := s.db.QueryContext(ctx, query, conversationID, topK)
	if err != nil {
		return nil, domain.StorageError("query memory", err)
	}
	defer rows.Close()

	var entries []domain.MemoryEntry
	for rows.Next() {
		var (
			e       domain.MemoryEntry
			blob    []byte
			created int64
		)
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Text, &blob, &created); err != nil {
			return nil, domain.StorageError("scan memory", err)
		}
		if e.Embedding, err = decodeEmbedding(blob); err != nil {
			return nil, fmt.Errorf("memory %s: %w", e.ID, err)
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate memory", err)
	}

	return entries, nil
}

// Recent joins the texts of up to topK newest entries with blank lines.
func (s *SQLStore) Recent(ctx context.Context, conversationID string, topK int) (string, error) {
	entries, err := s.Entries(ctx, conversationID, topK)
	if err != nil {
		return "", err
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Text
	}
	return strings.Join(texts, "\n\n"), nil
}

// Conversations lists conversation ids with their entry counts.
func (s *SQLStore) Conversations(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, COUNT(*)
		FROM conversation_memory
		GROUP BY conversation_id
	`)
	if err != nil {
		return nil, domain.StorageError("list conversations", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, domain.StorageError("scan conversations", err)
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate conversations", err)
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
