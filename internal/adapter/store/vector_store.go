package store

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"vecsearch/internal/adapter/cache"
	"vecsearch/internal/domain"
	"vecsearch/internal/port"
)

// DefaultTopK applies when a search does not ask for a positive topK.
const DefaultTopK = 3

// Options configures a VectorStore.
type Options struct {
	// DefaultTopK applies when a search asks for topK <= 0.
	DefaultTopK int
	// MaxTopK caps the number of results of one search. Zero means no cap.
	MaxTopK  int
	Observer port.StoreObserver
	Logger   *slog.Logger
}

// VectorStore implements port.TableStore on top of Persistence.
//
// Each table is a similarity index plus the index-aligned records. A table
// holds vectors of one dimension only; writing or querying with another
// dimension resets the table.
type VectorStore struct {
	persist     *Persistence
	factory     port.IndexFactory
	locks       tableLocks
	defaultTopK int
	maxTopK     int
	observer    port.StoreObserver
	log         *slog.Logger
}

// NewVectorStore creates a store over the given persistence layer.
func NewVectorStore(persist *Persistence, opts Options) *VectorStore {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = DefaultTopK
	}
	if opts.MaxTopK < 0 {
		opts.MaxTopK = 0
	}
	if opts.MaxTopK > 0 && opts.MaxTopK < opts.DefaultTopK {
		opts.MaxTopK = opts.DefaultTopK
	}
	if opts.Observer == nil {
		opts.Observer = port.NopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &VectorStore{
		persist:     persist,
		factory:     persist.Factory(),
		defaultTopK: opts.DefaultTopK,
		maxTopK:     opts.MaxTopK,
		observer:    opts.Observer,
		log:         opts.Logger,
	}
}

// reconciliation is the outcome of checking a loaded table against the
// dimension of incoming vectors.
type reconciliation struct {
	// Entry is the usable table state, nil when the table is absent or was reset.
	Entry *cache.Entry
	// Reset is set when the table was cleared because of a dimension change.
	Reset *domain.ResetEvent
}

// reconcile clears the table when its dimension differs from dim.
// The caller must hold the table's write lock.
func (s *VectorStore) reconcile(ctx context.Context, tableID string, entry *cache.Entry, dim int) reconciliation {
	if entry == nil {
		return reconciliation{}
	}
	if entry.Index.Dim() == dim {
		return reconciliation{Entry: entry}
	}

	ev := domain.ResetEvent{
		TableID:      tableID,
		OldDimension: entry.Index.Dim(),
		NewDimension: dim,
		DroppedRows:  len(entry.Records),
	}
	s.log.Warn("dimension changed, resetting table",
		"table", tableID, "old_dim", ev.OldDimension, "new_dim", ev.NewDimension, "dropped_rows", ev.DroppedRows)
	s.persist.Clear(ctx, tableID)
	s.observer.OnReset(ev)
	return reconciliation{Reset: &ev}
}

// Upsert inserts rows whose ids are not yet in the table.
func (s *VectorStore) Upsert(ctx context.Context, tableID string, rows []domain.Row) (report domain.UpsertReport, err error) {
	defer s.observe("upsert", time.Now(), &err)

	if err := validateTableID(tableID); err != nil {
		return report, err
	}
	if len(rows) == 0 {
		return report, nil
	}
	dim, err := batchDimension(rows)
	if err != nil {
		return report, err
	}

	unlock := s.locks.Lock(tableID)
	defer unlock()

	entry, err := s.persist.Load(ctx, tableID)
	if err != nil {
		return report, err
	}
	rec := s.reconcile(ctx, tableID, entry, dim)
	report.Reset = rec.Reset

	var (
		index   port.SimilarityIndex
		records []domain.Record
	)
	if rec.Entry != nil {
		index, records = rec.Entry.Index, rec.Entry.Records
	} else {
		index, err = s.factory.New(dim)
		if err != nil {
			return report, fmt.Errorf("create index: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(records)+len(rows))
	for _, r := range records {
		seen[r.RowID] = struct{}{}
	}
	fresh := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.ID]; dup {
			continue
		}
		seen[row.ID] = struct{}{}
		fresh = append(fresh, domain.RecordFromRow(row))
	}
	report.Inserted = len(fresh)
	report.Skipped = len(rows) - len(fresh)

	if len(fresh) == 0 {
		s.log.Debug("upsert skipped, all rows present", "table", tableID, "rows", len(rows))
		return report, nil
	}

	vectors := make([][]float32, len(fresh))
	for i := range fresh {
		vectors[i] = fresh[i].Embedding
	}
	if err := index.Add(vectors...); err != nil {
		return report, fmt.Errorf("add vectors: %w", err)
	}
	// Clip so appending never writes into the cached slice's spare capacity.
	records = append(slices.Clip(records), fresh...)

	if err := s.persist.Save(ctx, tableID, index, records); err != nil {
		return report, err
	}
	s.log.Debug("upsert", "table", tableID, "inserted", report.Inserted, "skipped", report.Skipped, "total", len(records))
	return report, nil
}

// Search returns the topK rows closest to query by L2 distance. Scores are
// negated squared distances, so higher is better.
func (s *VectorStore) Search(ctx context.Context, tableID string, query []float32, topK int) (results []domain.SearchResult, err error) {
	defer s.observe("search", time.Now(), &err)

	if err := validateTableID(tableID); err != nil {
		return nil, err
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", domain.ErrInvalidInput)
	}
	topK = s.clampTopK(topK)

	unlock := s.locks.RLock(tableID)
	entry, err := s.persist.Load(ctx, tableID)
	if err != nil {
		unlock()
		return nil, err
	}
	if entry != nil && entry.Index.Dim() != len(query) {
		// Upgrade to the write lock and look again; a concurrent writer may
		// already have changed the table.
		unlock()
		unlock = s.locks.Lock(tableID)
		entry, err = s.persist.Load(ctx, tableID)
		if err != nil {
			unlock()
			return nil, err
		}
		entry = s.reconcile(ctx, tableID, entry, len(query)).Entry
	}
	defer unlock()

	results = []domain.SearchResult{}
	if entry == nil || len(entry.Records) == 0 {
		return results, nil
	}

	positions, distances, err := entry.Index.Search(query, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	for i, pos := range positions {
		if pos < 0 || pos >= len(entry.Records) {
			continue
		}
		r := entry.Records[pos]
		results = append(results, domain.SearchResult{
			RowID:    r.RowID,
			Score:    -float64(distances[i]),
			Metadata: maps.Clone(r.Metadata),
		})
	}
	return results, nil
}

// Delete removes the given row ids and rebuilds the index from what remains.
func (s *VectorStore) Delete(ctx context.Context, tableID string, rowIDs []string) (report domain.DeleteReport, err error) {
	defer s.observe("delete", time.Now(), &err)

	if err := validateTableID(tableID); err != nil {
		return report, err
	}

	unlock := s.locks.Lock(tableID)
	defer unlock()

	entry, err := s.persist.Load(ctx, tableID)
	if err != nil {
		return report, err
	}
	if entry == nil || len(entry.Records) == 0 {
		return report, nil
	}

	drop := make(map[string]struct{}, len(rowIDs))
	for _, id := range rowIDs {
		drop[id] = struct{}{}
	}
	kept := make([]domain.Record, 0, len(entry.Records))
	for _, r := range entry.Records {
		if _, ok := drop[r.RowID]; !ok {
			kept = append(kept, r)
		}
	}
	report.Deleted = len(entry.Records) - len(kept)
	report.Remaining = len(kept)

	if report.Deleted == 0 {
		return report, nil
	}
	if len(kept) == 0 {
		s.persist.Clear(ctx, tableID)
		report.Dropped = true
		s.log.Debug("delete dropped table", "table", tableID, "deleted", report.Deleted)
		return report, nil
	}

	index, err := s.buildIndex(len(kept[0].Embedding), kept)
	if err != nil {
		return report, err
	}
	if err := s.persist.Save(ctx, tableID, index, kept); err != nil {
		return report, err
	}
	s.log.Debug("delete", "table", tableID, "deleted", report.Deleted, "remaining", report.Remaining)
	return report, nil
}

// Rebuild replaces the table with rows. Rows are taken as given, without
// removing duplicate ids.
func (s *VectorStore) Rebuild(ctx context.Context, tableID string, rows []domain.Row) (err error) {
	defer s.observe("rebuild", time.Now(), &err)

	if err := validateTableID(tableID); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	dim, err := batchDimension(rows)
	if err != nil {
		return err
	}

	records := make([]domain.Record, len(rows))
	for i, row := range rows {
		records[i] = domain.RecordFromRow(row)
	}
	index, err := s.buildIndex(dim, records)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(tableID)
	defer unlock()

	if err := s.persist.Save(ctx, tableID, index, records); err != nil {
		return err
	}
	s.log.Debug("rebuild", "table", tableID, "rows", len(records), "dim", dim)
	return nil
}

// Stats reports whether the table exists, its size and its dimension.
func (s *VectorStore) Stats(ctx context.Context, tableID string) (stats domain.TableStats, err error) {
	defer s.observe("stats", time.Now(), &err)

	stats.TableID = tableID
	if err := validateTableID(tableID); err != nil {
		return stats, err
	}

	unlock := s.locks.RLock(tableID)
	defer unlock()

	entry, err := s.persist.Load(ctx, tableID)
	if err != nil {
		return stats, err
	}
	if entry == nil {
		return stats, nil
	}
	stats.Exists = true
	stats.Rows = len(entry.Records)
	stats.Dimension = entry.Index.Dim()
	return stats, nil
}

func (s *VectorStore) buildIndex(dim int, records []domain.Record) (port.SimilarityIndex, error) {
	index, err := s.factory.New(dim)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	vectors := make([][]float32, len(records))
	for i := range records {
		vectors[i] = records[i].Embedding
	}
	if err := index.Add(vectors...); err != nil {
		return nil, fmt.Errorf("add vectors: %w", err)
	}
	return index, nil
}

func (s *VectorStore) clampTopK(topK int) int {
	if topK <= 0 {
		return s.defaultTopK
	}
	if s.maxTopK > 0 && topK > s.maxTopK {
		s.log.Debug("top_k capped", "requested", topK, "max", s.maxTopK)
		return s.maxTopK
	}
	return topK
}

func (s *VectorStore) observe(op string, start time.Time, errp *error) {
	s.observer.OnOperation(op, time.Since(start), *errp)
}

func validateTableID(tableID string) error {
	if tableID == "" {
		return fmt.Errorf("%w: empty table id", domain.ErrInvalidInput)
	}
	return nil
}

// batchDimension returns the common embedding length of rows. Every row needs
// an id and a non-empty embedding.
func batchDimension(rows []domain.Row) (int, error) {
	dim := len(rows[0].Embedding)
	for i, row := range rows {
		if row.ID == "" {
			return 0, fmt.Errorf("%w: row %d has no row_id", domain.ErrInvalidInput, i)
		}
		if len(row.Embedding) == 0 {
			return 0, fmt.Errorf("%w: row %q has an empty embedding", domain.ErrInvalidInput, row.ID)
		}
		if len(row.Embedding) != dim {
			return 0, fmt.Errorf("%w: row %q has %d dimensions, batch has %d",
				domain.ErrDimensionMismatch, row.ID, len(row.Embedding), dim)
		}
	}
	return dim, nil
}

var _ port.TableStore = (*VectorStore)(nil)
