package port

import (
	"context"
	"time"

	"vecsearch/internal/domain"
)

// TableStore is the per-table vector index store.
type TableStore interface {
	// Upsert inserts rows whose ids are not yet present. Existing ids are
	// skipped (first write wins). A dimension change resets the table.
	Upsert(ctx context.Context, tableID string, rows []domain.Row) (domain.UpsertReport, error)

	// Search returns up to topK rows ordered from most to least similar.
	// Absent tables yield no results, never an error.
	Search(ctx context.Context, tableID string, query []float32, topK int) ([]domain.SearchResult, error)

	// Delete removes rows by id. The index is rebuilt from the remaining
	// rows, which costs O(remaining rows). Removing the last row drops the table.
	Delete(ctx context.Context, tableID string, rowIDs []string) (domain.DeleteReport, error)

	// Rebuild replaces the whole table with rows. Empty input is a no-op.
	Rebuild(ctx context.Context, tableID string, rows []domain.Row) error

	// Stats reports the persisted state of a table.
	Stats(ctx context.Context, tableID string) (domain.TableStats, error)
}

// StoreObserver receives store events, typically for metrics.
type StoreObserver interface {
	OnOperation(op string, d time.Duration, err error)
	OnReset(ev domain.ResetEvent)
	OnCacheLookup(hit bool)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) OnOperation(string, time.Duration, error) {}
func (NopObserver) OnReset(domain.ResetEvent)               {}
func (NopObserver) OnCacheLookup(bool)                      {}
