package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vecsearch/internal/adapter/blob"
	"vecsearch/internal/adapter/cache"
	"vecsearch/internal/domain"
	"vecsearch/internal/port"
)

// failingBlobs wraps a blob store and fails PutAll while failPut is set.
type failingBlobs struct {
	port.BlobStore
	mu      sync.Mutex
	failPut bool
	puts    int
}

func (f *failingBlobs) PutAll(ctx context.Context, blobs []port.Blob) error {
	f.mu.Lock()
	fail := f.failPut
	f.puts++
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.BlobStore.PutAll(ctx, blobs)
}

func (f *failingBlobs) setFail(v bool) {
	f.mu.Lock()
	f.failPut = v
	f.mu.Unlock()
}

func (f *failingBlobs) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

// recordingObserver collects store events.
type recordingObserver struct {
	mu     sync.Mutex
	ops    []string
	resets []domain.ResetEvent
	hits   int
	misses int
}

func (o *recordingObserver) OnOperation(op string, _ time.Duration, _ error) {
	o.mu.Lock()
	o.ops = append(o.ops, op)
	o.mu.Unlock()
}

func (o *recordingObserver) OnReset(ev domain.ResetEvent) {
	o.mu.Lock()
	o.resets = append(o.resets, ev)
	o.mu.Unlock()
}

func (o *recordingObserver) OnCacheLookup(hit bool) {
	o.mu.Lock()
	if hit {
		o.hits++
	} else {
		o.misses++
	}
	o.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	store    *VectorStore
	persist  *Persistence
	blobs    *failingBlobs
	mem      *blob.Memory
	cache    *cache.TableCache
	observer *recordingObserver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, blob.NewMemory())
}

func newTestEnvWith(t *testing.T, backend port.BlobStore) *testEnv {
	t.Helper()
	mem, _ := backend.(*blob.Memory)
	blobs := &failingBlobs{BlobStore: backend}
	tc := cache.NewTableCache(0)
	obs := &recordingObserver{}
	p, err := NewPersistence(blobs, PersistenceOptions{
		Cache:    tc,
		Logger:   discardLogger(),
		Observer: obs,
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	s := NewVectorStore(p, Options{Observer: obs, Logger: discardLogger()})
	return &testEnv{store: s, persist: p, blobs: blobs, mem: mem, cache: tc, observer: obs}
}

// reopen returns a store over the same blobs with an empty cache, as after a
// process restart.
func (e *testEnv) reopen(t *testing.T) *VectorStore {
	t.Helper()
	p, err := NewPersistence(e.blobs, PersistenceOptions{Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return NewVectorStore(p, Options{Logger: discardLogger()})
}

func row(id string, emb ...float32) domain.Row {
	return domain.Row{ID: id, Embedding: emb, Metadata: map[string]any{"id": id}}
}

func rowIDs(results []domain.SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.RowID
	}
	return ids
}
