// Package server exposes the query orchestrator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"docchat/internal/domain"
	"docchat/internal/port"
)

// Querier answers one question.
type Querier interface {
	Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error)
}

const (
	defaultWriteTimeout = 120 * time.Second
	// time a query spends outside the model call: retrieval, recall, remember
	writeSlack = 15 * time.Second
)

// Server serves POST /query/ and GET /health.
type Server struct {
	query        Querier
	index        port.VectorIndex
	logger       *slog.Logger
	addr         string
	writeTimeout time.Duration
}

// NewServer creates a server. index is only used by the health check and may
// be nil.
func NewServer(query Querier, index port.VectorIndex, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		query:        query,
		index:        index,
		logger:       logger,
		addr:         addr,
		writeTimeout: defaultWriteTimeout,
	}
}

// WithModelBudget sizes the write timeout so a reply is not cut off while
// the model call, retries included, may still be running.
func (s *Server) WithModelBudget(d time.Duration) *Server {
	if d > 0 {
		s.writeTimeout = d + writeSlack
	}
	return s
}

func (s *Server) httpServer() *http.Server {
	return &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.writeTimeout,
	}
}

// Handler returns the routed handler with logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query/", s.handleQuery)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("GET /health", s.handleHealth)
	return loggingMiddleware(s.logger, mux)
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := s.httpServer()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

type errorResponse struct {
	Error          string `json:"error"`
	Detail         string `json:"detail"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	UpstreamBody   string `json:"upstream_body,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Detail: "malformed JSON body: " + err.Error()})
		return
	}

	resp, err := s.query.Query(r.Context(), req)
	if err != nil {
		status, body := classify(err)
		if status >= 500 {
			s.logger.Error("query failed", "conversation_id", req.ConversationID, "status", status, "error", err)
		}
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// classify maps the domain error taxonomy onto HTTP statuses.
func classify(err error) (int, errorResponse) {
	body := errorResponse{Detail: err.Error()}

	var upstream *domain.UpstreamError
	var protocol *domain.UpstreamProtocolError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		body.Error = "invalid_request"
		return http.StatusBadRequest, body
	case errors.As(err, &upstream):
		body.Error = "upstream_error"
		body.UpstreamStatus = upstream.StatusCode
		body.UpstreamBody = upstream.Body
		return http.StatusBadGateway, body
	case errors.As(err, &protocol):
		body.Error = "upstream_protocol_error"
		body.UpstreamBody = protocol.Body
		return http.StatusBadGateway, body
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, domain.ErrModelUnavailable):
		body.Error = "unavailable"
		return http.StatusServiceUnavailable, body
	default:
		body.Error = "internal_error"
		return http.StatusInternalServerError, body
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	if s.index != nil {
		n, err := s.index.Count(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
			return
		}
		health["chunks"] = n
	}
	writeJSON(w, http.StatusOK, health)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
