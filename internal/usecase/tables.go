package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"vecsearch/internal/domain"
	"vecsearch/internal/port"
)

// TableUseCase turns text requests into embeddings and drives the store.
// The store itself only ever sees vectors.
type TableUseCase struct {
	store    port.TableStore
	embedder port.Embedder
	log      *slog.Logger
}

// NewTableUseCase creates a new table use case.
func NewTableUseCase(store port.TableStore, embedder port.Embedder, logger *slog.Logger) *TableUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &TableUseCase{
		store:    store,
		embedder: embedder,
		log:      logger,
	}
}

// Upsert embeds rows and inserts those whose ids are new to the table.
func (u *TableUseCase) Upsert(ctx context.Context, tableID string, rows []domain.TextRow) (domain.UpsertReport, error) {
	embedded, err := u.embedRows(ctx, rows)
	if err != nil {
		return domain.UpsertReport{}, err
	}
	report, err := u.store.Upsert(ctx, tableID, embedded)
	if err != nil {
		return report, err
	}
	if report.Reset != nil {
		u.log.Warn("table reset by upsert",
			"table", tableID, "old_dim", report.Reset.OldDimension, "new_dim", report.Reset.NewDimension,
			"dropped_rows", report.Reset.DroppedRows, "model", u.embedder.ModelName())
	}
	return report, nil
}

// Search embeds the query text and returns the nearest rows.
func (u *TableUseCase) Search(ctx context.Context, tableID, query string, topK int) ([]domain.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	vec, err := u.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return u.store.Search(ctx, tableID, vec, topK)
}

// Delete removes rows by id. No embedding is involved.
func (u *TableUseCase) Delete(ctx context.Context, tableID string, rowIDs []string) (domain.DeleteReport, error) {
	return u.store.Delete(ctx, tableID, rowIDs)
}

// Rebuild embeds rows and replaces the whole table with them.
func (u *TableUseCase) Rebuild(ctx context.Context, tableID string, rows []domain.TextRow) error {
	embedded, err := u.embedRows(ctx, rows)
	if err != nil {
		return err
	}
	return u.store.Rebuild(ctx, tableID, embedded)
}

// Stats reports the persisted state of a table.
func (u *TableUseCase) Stats(ctx context.Context, tableID string) (domain.TableStats, error) {
	return u.store.Stats(ctx, tableID)
}

func (u *TableUseCase) embedRows(ctx context.Context, rows []domain.TextRow) ([]domain.Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	texts := make([]string, len(rows))
	for i, r := range rows {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: row %d has no row_id", domain.ErrInvalidInput, i)
		}
		texts[i] = r.Text
	}

	vecs, err := u.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(rows) {
		return nil, domain.NewProviderError(u.embedder.ModelName(), domain.ErrProviderResponseInvalid, 0,
			fmt.Errorf("got %d embeddings for %d texts", len(vecs), len(rows)))
	}

	out := make([]domain.Row, len(rows))
	for i, r := range rows {
		out[i] = domain.Row{ID: r.ID, Embedding: vecs[i], Metadata: r.Metadata}
	}
	return out, nil
}
