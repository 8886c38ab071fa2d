package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docchat/internal/adapter/embedding"
	"docchat/internal/adapter/memstore"
	"docchat/internal/domain"
)

type fakeQuerier struct {
	got  domain.QueryRequest
	resp *domain.QueryResponse
	err  error
}

func (f *fakeQuerier) Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error) {
	f.got = req
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return f.resp, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func post(t *testing.T, h http.Handler, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %q", rec.Body.String())
	}
	return rec, out
}

func TestQuerySuccess(t *testing.T) {
	q := &fakeQuerier{resp: &domain.QueryResponse{Answer: "blue", Sources: []string{"sky.txt"}}}
	h := NewServer(q, nil, ":0", quietLogger()).Handler()

	rec, out := post(t, h, "/query/", `{"question":"What color is the sky?","conversation_id":"c1","max_tokens":50}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, out)
	}
	if out["answer"] != "blue" {
		t.Errorf("unexpected answer %v", out["answer"])
	}
	sources, _ := out["sources"].([]any)
	if len(sources) != 1 || sources[0] != "sky.txt" {
		t.Errorf("unexpected sources %v", out["sources"])
	}
	if q.got.MaxTokens == nil || *q.got.MaxTokens != 50 || q.got.Temperature != nil {
		t.Errorf("generation params not decoded: %+v", q.got)
	}
}

func TestQueryWithoutTrailingSlash(t *testing.T) {
	q := &fakeQuerier{resp: &domain.QueryResponse{Answer: "ok", Sources: []string{}}}
	h := NewServer(q, nil, ":0", quietLogger()).Handler()

	rec, _ := post(t, h, "/query", `{"question":"q","conversation_id":"c1"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestQueryErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{
			name:   "malformed json",
			body:   `{"question":`,
			status: http.StatusBadRequest,
			code:   "invalid_request",
		},
		{
			name:   "missing question",
			body:   `{"conversation_id":"c1"}`,
			status: http.StatusBadRequest,
			code:   "invalid_request",
		},
		{
			name:   "upstream status",
			body:   `{"question":"q","conversation_id":"c1"}`,
			err:    &domain.UpstreamError{StatusCode: 500, Body: "overloaded"},
			status: http.StatusBadGateway,
			code:   "upstream_error",
		},
		{
			name:   "upstream protocol",
			body:   `{"question":"q","conversation_id":"c1"}`,
			err:    &domain.UpstreamProtocolError{Body: "{}", Reason: "no choices"},
			status: http.StatusBadGateway,
			code:   "upstream_protocol_error",
		},
		{
			name:   "storage",
			body:   `{"question":"q","conversation_id":"c1"}`,
			err:    fmt.Errorf("failed to retrieve context: %w", domain.StorageError("search", errors.New("locked"))),
			status: http.StatusServiceUnavailable,
			code:   "unavailable",
		},
		{
			name:   "embedding model",
			body:   `{"question":"q","conversation_id":"c1"}`,
			err:    fmt.Errorf("failed to retrieve context: %w", fmt.Errorf("%w: failed to embed query: %w", domain.ErrModelUnavailable, errors.New("status 503"))),
			status: http.StatusServiceUnavailable,
			code:   "unavailable",
		},
		{
			name:   "other",
			body:   `{"question":"q","conversation_id":"c1"}`,
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewServer(&fakeQuerier{err: tt.err}, nil, ":0", quietLogger()).Handler()
			rec, out := post(t, h, "/query/", tt.body)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			if out["error"] != tt.code {
				t.Errorf("expected error code %s, got %v", tt.code, out["error"])
			}
		})
	}
}

func TestUpstreamDetailInBody(t *testing.T) {
	h := NewServer(&fakeQuerier{err: &domain.UpstreamError{StatusCode: 429, Body: "rate limited"}}, nil, ":0", quietLogger()).Handler()

	_, out := post(t, h, "/query/", `{"question":"q","conversation_id":"c1"}`)
	if out["upstream_status"] != float64(429) || out["upstream_body"] != "rate limited" {
		t.Errorf("upstream detail missing: %v", out)
	}
}

func TestHealth(t *testing.T) {
	emb := embedding.NewHashEmbedder(8)
	idx := memstore.NewIndex("c", emb)
	h := NewServer(&fakeQuerier{}, idx, ":0", quietLogger()).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var out map[string]any
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["status"] != "ok" || out["chunks"] != float64(0) {
		t.Errorf("unexpected health body %v", out)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewServer(&fakeQuerier{}, nil, ":0", quietLogger()).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/query/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestWriteTimeoutOutlastsModelBudget(t *testing.T) {
	s := NewServer(&fakeQuerier{}, nil, ":0", quietLogger())
	if got := s.httpServer().WriteTimeout; got != defaultWriteTimeout {
		t.Errorf("expected default write timeout, got %v", got)
	}

	budget := 4 * 60 * time.Second
	if got := s.WithModelBudget(budget).httpServer().WriteTimeout; got <= budget {
		t.Errorf("write timeout %v does not outlast model budget %v", got, budget)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(&fakeQuerier{}, nil, addr, quietLogger())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
