package port

import "context"

// Blob is a named artifact.
type Blob struct {
	Key  string
	Data []byte
}

// BlobStore persists artifacts by key.
//
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Get returns the artifact stored under key, or an error wrapping
	// domain.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// PutAll stores all blobs. Backends with transactions write them
	// atomically; file backends replace each artifact atomically.
	PutAll(ctx context.Context, blobs []Blob) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Close releases resources.
	Close() error
}
