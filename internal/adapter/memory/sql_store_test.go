package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"docchat/internal/domain"
)

func openSQLite(t *testing.T, path string) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSQLStoreRecentNewestFirst(t *testing.T) {
	s := openSQLite(t, filepath.Join(t.TempDir(), "memory.db"))
	defer s.Close()

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		if _, err := s.Append(ctx, "c1", fmt.Sprintf("answer %d", i), []float32{float32(i), 0.5}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, "c1", 3)
	if err != nil {
		t.Fatal(err)
	}
	want := "answer 5\n\nanswer 4\n\nanswer 3"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSQLStoreUnknownConversation(t *testing.T) {
	s := openSQLite(t, filepath.Join(t.TempDir(), "memory.db"))
	defer s.Close()

	got, err := s.Recent(context.Background(), "missing", 3)
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("expected empty memory, got %q", got)
	}
}

func TestSQLStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	s := openSQLite(t, path)
	first, err := s.Append(ctx, "c1", "The sky is blue.", []float32{0.25, -1, 3})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s = openSQLite(t, path)
	defer s.Close()

	second, err := s.Append(ctx, "c1", "It is blue.", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !second.CreatedAt.After(first.CreatedAt) {
		t.Error("timestamps must keep increasing after reopening")
	}

	entries, err := s.Entries(ctx, "c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Text != "It is blue." || entries[1].Text != "The sky is blue." {
		t.Errorf("unexpected order: %q, %q", entries[0].Text, entries[1].Text)
	}
	emb := entries[1].Embedding
	if len(emb) != 3 || emb[0] != 0.25 || emb[1] != -1 || emb[2] != 3 {
		t.Errorf("embedding not preserved: %v", emb)
	}
	if entries[1].ID != first.ID {
		t.Errorf("expected id %s, got %s", first.ID, entries[1].ID)
	}
}

func TestSQLStoreConcurrentAppends(t *testing.T) {
	s := openSQLite(t, filepath.Join(t.TempDir(), "memory.db"))
	defer s.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Append(ctx, "c1", fmt.Sprintf("answer %d", i), nil); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := s.Entries(ctx, "c1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 20 {
		t.Fatalf("expected 20 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if !entries[i-1].CreatedAt.After(entries[i].CreatedAt) {
			t.Fatalf("entries %d and %d are not strictly ordered", i-1, i)
		}
	}

	convs, err := s.Conversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if convs["c1"] != 20 {
		t.Errorf("expected 20 entries for c1, got %d", convs["c1"])
	}
}

func TestSQLStoreClosedIsStorageError(t *testing.T) {
	s := openSQLite(t, filepath.Join(t.TempDir(), "memory.db"))
	s.Close()

	_, err := s.Recent(context.Background(), "c1", 3)
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Errorf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	q := "INSERT INTO t (a, b) VALUES (?, ?)"
	if got := SQLite.Rebind(q); got != q {
		t.Errorf("sqlite should keep ? placeholders, got %s", got)
	}
	if got, want := Postgres.Rebind(q), "INSERT INTO t (a, b) VALUES ($1, $2)"; got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestEmbeddingEncoding(t *testing.T) {
	vec := []float32{1.5, -2, 0, 3.25}
	got, err := decodeEmbedding(encodeEmbedding(vec))
	if err != nil {
		t.Fatal(err)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Fatalf("value %d: expected %f, got %f", i, vec[i], got[i])
		}
	}
	if _, err := decodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

// Runs against a real server when DOCCHAT_TEST_POSTGRES_DSN is set.
func TestSQLStorePostgres(t *testing.T) {
	dsn := os.Getenv("DOCCHAT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DOCCHAT_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, "postgres", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	conv := "test-" + t.Name()
	for i := 1; i <= 4; i++ {
		if _, err := s.Append(ctx, conv, fmt.Sprintf("answer %d", i), []float32{1}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, conv, 2)
	if err != nil {
		t.Fatal(err)
	}
	if want := "answer 4\n\nanswer 3"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
