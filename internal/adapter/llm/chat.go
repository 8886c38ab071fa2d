package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"docchat/config"
	"docchat/internal/domain"
	"docchat/internal/port"
)

const maxBodyPreview = 2048

// ChatClient calls an OpenAI-compatible /chat/completions endpoint, Mistral
// by default.
type ChatClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatResponse mirrors the parts of the reply we read. Content is a pointer
// so a missing field can be told apart from an empty answer.
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

var _ port.LLM = (*ChatClient)(nil)

// NewChatClient reads the API key from cfg.APIKeyEnv. Without a key requests
// are sent unauthenticated, which local OpenAI-compatible servers accept.
func NewChatClient(cfg config.LLMConfig, logger *slog.Logger) *ChatClient {
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.mistral.ai/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "mistral-small"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			logger.Warn("llm API key not set", "env", cfg.APIKeyEnv)
		}
	}

	return &ChatClient{
		baseURL:      baseURL,
		apiKey:       apiKey,
		model:        model,
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: 500 * time.Millisecond,
	}
}

// WithRetryBackoff sets the base delay between retries.
func (c *ChatClient) WithRetryBackoff(d time.Duration) *ChatClient {
	c.retryBackoff = d
	return c
}

func (c *ChatClient) ModelName() string {
	return c.model
}

// Complete sends one single-turn chat request. Transport failures and 5xx
// replies are retried up to maxRetries times; nothing else is.
func (c *ChatClient) Complete(ctx context.Context, req port.CompletionRequest) domain.Completion {
	body, err := json.Marshal(ChatRequest{
		Model:       c.model,
		Messages:    []ChatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return domain.UpstreamFailure{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	var result domain.Completion
	for attempt := 0; ; attempt++ {
		result = c.send(ctx, body)
		if attempt >= c.maxRetries || !retryable(result) {
			return result
		}

		delay := c.backoff(attempt)
		c.logger.Warn("llm request failed, retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"delay", delay,
			"error", describe(result))

		select {
		case <-ctx.Done():
			return result
		case <-time.After(delay):
		}
	}
}

func (c *ChatClient) send(ctx context.Context, body []byte) domain.Completion {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.UpstreamFailure{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return domain.UpstreamFailure{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.UpstreamFailure{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.Debug("llm response",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"duration", time.Since(start))

	return parseResponse(resp.StatusCode, raw)
}

func parseResponse(status int, raw []byte) domain.Completion {
	if status < 200 || status > 299 {
		return domain.UpstreamFailure{StatusCode: status, RawBody: preview(raw)}
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(raw, &chatResp); err != nil {
		return domain.ProtocolError{RawBody: preview(raw), Reason: fmt.Sprintf("failed to parse response: %v", err)}
	}
	if chatResp.Error != nil {
		return domain.ProtocolError{RawBody: preview(raw), Reason: "API error: " + chatResp.Error.Message}
	}
	if len(chatResp.Choices) == 0 {
		return domain.ProtocolError{RawBody: preview(raw), Reason: "response has no choices"}
	}
	content := chatResp.Choices[0].Message.Content
	if content == nil {
		return domain.ProtocolError{RawBody: preview(raw), Reason: "choices[0].message.content is missing"}
	}

	return domain.Success{Content: *content}
}

func retryable(c domain.Completion) bool {
	f, ok := c.(domain.UpstreamFailure)
	if !ok {
		return false
	}
	if f.StatusCode == 0 {
		return !errors.Is(f.Err, context.Canceled)
	}
	return f.StatusCode >= 500
}

// Budget is the longest Complete can take: every attempt running to the
// client timeout plus the largest jittered delay between attempts.
func (c *ChatClient) Budget() time.Duration {
	total := c.client.Timeout * time.Duration(c.maxRetries+1)
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		d := c.retryBackoff << attempt
		total += d + d/2
	}
	return total
}

// backoff doubles the base delay per attempt and adds up to 50% jitter.
func (c *ChatClient) backoff(attempt int) time.Duration {
	d := c.retryBackoff << attempt
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int64N(int64(d)/2+1))
}

func describe(c domain.Completion) string {
	_, err := domain.AnswerOf(c)
	if err == nil {
		return ""
	}
	return err.Error()
}

func preview(raw []byte) string {
	if len(raw) > maxBodyPreview {
		return string(raw[:maxBodyPreview])
	}
	return string(raw)
}
