package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable means the embedding backend could not be loaded.
	// Embeddings are needed on every path, so this is fatal at startup.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrStorageUnavailable wraps failures of the vector index or memory store.
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrUpstream         = errors.New("upstream model error")
	ErrUpstreamProtocol = errors.New("upstream protocol error")
	ErrInvalidRequest   = errors.New("invalid request")
)

// StorageError tags err as a storage failure of the named operation.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// UpstreamError is returned when the language model service answers with a
// non-success status, or cannot be reached at all (StatusCode 0).
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

func (e *UpstreamError) Unwrap() error { return e.Err }

// UpstreamProtocolError is returned when the model call succeeded but the
// payload has no usable answer.
type UpstreamProtocolError struct {
	Body   string
	Reason string
}

func (e *UpstreamProtocolError) Error() string {
	return fmt.Sprintf("invalid upstream response: %s", e.Reason)
}

func (e *UpstreamProtocolError) Is(target error) bool { return target == ErrUpstreamProtocol }
