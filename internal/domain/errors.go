package domain

import (
	"errors"
	"fmt"
)

// Domain errors. Callers match them with errors.Is.
var (
	// ErrInvalidInput indicates a malformed request (empty table id, empty embedding, ...).
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionMismatch indicates embeddings of differing lengths within one batch.
	// Mismatches against stored data are handled by a reset, not by this error.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrNotFound indicates a missing artifact in a blob backend.
	ErrNotFound = errors.New("not found")

	// ErrCorruptArtifact indicates an artifact that cannot be decoded.
	ErrCorruptArtifact = errors.New("corrupt artifact")

	// ErrProviderUnavailable indicates the embedding provider could not be reached
	// or answered with a non-2xx status.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrProviderResponseInvalid indicates a response without a usable embedding.
	ErrProviderResponseInvalid = errors.New("embedding provider response invalid")
)

// ProviderError describes a failed embedding call.
type ProviderError struct {
	Provider   string
	StatusCode int
	Kind       error
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the kind sentinel.
func (e *ProviderError) Is(target error) bool {
	return target == e.Kind
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError of the given kind.
func NewProviderError(provider string, kind error, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: status, Kind: kind, Err: err}
}
