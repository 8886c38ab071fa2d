package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"docchat/config"
	"docchat/internal/domain"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	first, err := e.Embed(ctx, []string{"The sky is blue."})
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Embed(ctx, []string{"the SKY is blue"})
	if err != nil {
		t.Fatal(err)
	}

	if len(first[0]) != 64 {
		t.Fatalf("expected dimension 64, got %d", len(first[0]))
	}
	for i := range first[0] {
		if first[0][i] != second[0][i] {
			t.Fatal("case and punctuation should not change the embedding")
		}
	}
}

func TestHashEmbedderNormalized(t *testing.T) {
	e := NewHashEmbedder(128)
	vecs, err := e.Embed(context.Background(), []string{"vectors are normalised to unit length"})
	if err != nil {
		t.Fatal(err)
	}

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("expected unit norm, got %f", norm)
	}
}

func TestHashEmbedderSimilarity(t *testing.T) {
	e := NewHashEmbedder(384)
	vecs, err := e.Embed(context.Background(), []string{
		"what colour is the sky",
		"the sky is blue",
		"invoices are due within thirty days",
	})
	if err != nil {
		t.Fatal(err)
	}

	related := cosine(vecs[0], vecs[1])
	unrelated := cosine(vecs[0], vecs[2])
	if related <= unrelated {
		t.Errorf("expected shared vocabulary to score higher: related=%f unrelated=%f", related, unrelated)
	}
}

func TestHashEmbedderDefaults(t *testing.T) {
	e := NewHashEmbedder(0)
	if e.Dimension() != 384 {
		t.Errorf("expected default dimension 384, got %d", e.Dimension())
	}
	if e.ModelName() != "hash-384" {
		t.Errorf("expected model hash-384, got %s", e.ModelName())
	}
	if err := e.Warm(context.Background()); err != nil {
		t.Errorf("warm should never fail: %v", err)
	}
}

func newEmbeddingServer(t *testing.T, calls *atomic.Int32, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"boom"}}`))
			return
		}

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}

		// answer in reverse order to exercise index handling
		resp := embeddingResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{
				Embedding: []float32{float32(len(req.Input[i])), 1, 0},
				Index:     i,
			})
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIEmbedderBatchesAndOrders(t *testing.T) {
	t.Setenv("DOCCHAT_TEST_KEY", "test-key")

	var calls atomic.Int32
	srv := newEmbeddingServer(t, &calls, http.StatusOK)
	defer srv.Close()

	e, err := NewOpenAICompatibleEmbedder("DOCCHAT_TEST_KEY", "test-model", srv.URL, 3)
	if err != nil {
		t.Fatal(err)
	}
	e.WithBatchSize(2)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := e.Embed(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}

	if calls.Load() != 3 {
		t.Errorf("expected 3 batched requests, got %d", calls.Load())
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	for i, text := range texts {
		if int(vecs[i][0]) != len(text) {
			t.Errorf("vector %d belongs to the wrong input", i)
		}
	}
}

func TestOpenAIEmbedderWarmFailureIsRemembered(t *testing.T) {
	t.Setenv("DOCCHAT_TEST_KEY", "test-key")

	var calls atomic.Int32
	srv := newEmbeddingServer(t, &calls, http.StatusInternalServerError)
	defer srv.Close()

	e, err := NewOpenAICompatibleEmbedder("DOCCHAT_TEST_KEY", "test-model", srv.URL, 0)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		err := e.Warm(context.Background())
		if !errors.Is(err, domain.ErrModelUnavailable) {
			t.Fatalf("expected ErrModelUnavailable, got %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single warmup request, got %d", calls.Load())
	}
}

func TestOpenAIEmbedderWarmCancelledIsNotRemembered(t *testing.T) {
	t.Setenv("DOCCHAT_TEST_KEY", "test-key")

	var calls atomic.Int32
	srv := newEmbeddingServer(t, &calls, http.StatusOK)
	defer srv.Close()

	e, err := NewOpenAICompatibleEmbedder("DOCCHAT_TEST_KEY", "custom-model", srv.URL, 0)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = e.Warm(ctx)
	if err == nil {
		t.Fatal("expected an error from a cancelled warmup")
	}
	if errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("cancellation must not be reported as ErrModelUnavailable: %v", err)
	}

	if err := e.Warm(context.Background()); err != nil {
		t.Fatalf("warmup after cancellation should retry and succeed: %v", err)
	}
	if e.Dimension() != 3 {
		t.Errorf("expected dimension 3, got %d", e.Dimension())
	}
}

func TestOpenAIEmbedderDimensionDuringWarm(t *testing.T) {
	t.Setenv("DOCCHAT_TEST_KEY", "test-key")

	var calls atomic.Int32
	srv := newEmbeddingServer(t, &calls, http.StatusOK)
	defer srv.Close()

	e, err := NewOpenAICompatibleEmbedder("DOCCHAT_TEST_KEY", "custom-model", srv.URL, 0)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = e.Dimension()
		}
	}()
	if err := e.Warm(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-done

	if calls.Load() != 1 {
		t.Errorf("expected a single warmup request, got %d", calls.Load())
	}
}

func TestOpenAIEmbedderWarmLearnsDimension(t *testing.T) {
	t.Setenv("DOCCHAT_TEST_KEY", "test-key")

	var calls atomic.Int32
	srv := newEmbeddingServer(t, &calls, http.StatusOK)
	defer srv.Close()

	e, err := NewOpenAICompatibleEmbedder("DOCCHAT_TEST_KEY", "custom-model", srv.URL, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Warm(context.Background()); err != nil {
		t.Fatal(err)
	}
	if e.Dimension() != 3 {
		t.Errorf("expected dimension 3 from warmup, got %d", e.Dimension())
	}
}

func TestOpenAIEmbedderStatusError(t *testing.T) {
	t.Setenv("DOCCHAT_TEST_KEY", "test-key")

	var calls atomic.Int32
	srv := newEmbeddingServer(t, &calls, http.StatusBadGateway)
	defer srv.Close()

	e, err := NewOpenAICompatibleEmbedder("DOCCHAT_TEST_KEY", "test-model", srv.URL, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
		t.Error("expected error for non-200 status")
	}
}

func TestNewFactory(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "local", Dimension: 32})
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimension() != 32 {
		t.Errorf("expected dimension 32, got %d", e.Dimension())
	}

	if _, err := New(config.EmbeddingConfig{Provider: "word2vec"}); err == nil {
		t.Error("expected error for unknown provider")
	}

	t.Setenv("DOCCHAT_MISSING_KEY", "")
	_, err = New(config.EmbeddingConfig{Provider: "openai", APIKeyEnv: "DOCCHAT_MISSING_KEY"})
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable for missing key, got %v", err)
	}

	o, err := New(config.EmbeddingConfig{Provider: "ollama"})
	if err != nil {
		t.Fatal(err)
	}
	if o.ModelName() != "nomic-embed-text" || o.Dimension() != 768 {
		t.Errorf("unexpected ollama defaults: %s/%d", o.ModelName(), o.Dimension())
	}
}
