package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vecsearch/internal/adapter/cache"
	"vecsearch/internal/adapter/flatindex"
	"vecsearch/internal/domain"
	"vecsearch/internal/port"
)

// PersistenceOptions configures a Persistence.
type PersistenceOptions struct {
	// Factory creates and decodes similarity indexes. Defaults to flatindex.
	Factory port.IndexFactory
	// Compression applied to new artifacts. Defaults to zstd.
	Compression Compression
	// Cache holds loaded tables. Defaults to an unbounded cache.
	Cache    *cache.TableCache
	Logger   *slog.Logger
	Observer port.StoreObserver
}

// Persistence loads, saves and clears table artifacts in a blob backend and
// keeps the table cache in step with them.
type Persistence struct {
	blobs    port.BlobStore
	codec    *codec
	factory  port.IndexFactory
	cache    *cache.TableCache
	log      *slog.Logger
	observer port.StoreObserver
}

// NewPersistence creates a Persistence over blobs.
func NewPersistence(blobs port.BlobStore, opts PersistenceOptions) (*Persistence, error) {
	if opts.Factory == nil {
		opts.Factory = flatindex.Factory{}
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewTableCache(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = port.NopObserver{}
	}
	c, err := newCodec(opts.Factory, opts.Compression)
	if err != nil {
		return nil, err
	}
	return &Persistence{
		blobs:    blobs,
		codec:    c,
		factory:  opts.Factory,
		cache:    opts.Cache,
		log:      opts.Logger,
		observer: opts.Observer,
	}, nil
}

// Factory returns the index factory used for this backend.
func (p *Persistence) Factory() port.IndexFactory {
	return p.factory
}

// Load returns the table's state, or nil when the table does not exist.
// A cached entry is returned as is; otherwise the artifacts are read and the
// cache is refreshed. A pair whose halves were not written together is
// treated as absent.
func (p *Persistence) Load(ctx context.Context, tableID string) (*cache.Entry, error) {
	if entry, ok := p.cache.Get(tableID); ok {
		p.observer.OnCacheLookup(true)
		return entry, nil
	}
	p.observer.OnCacheLookup(false)

	indexData, err := p.blobs.Get(ctx, IndexKey(tableID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load index of %q: %w", tableID, err)
	}
	metaData, err := p.blobs.Get(ctx, MetaKey(tableID))
	if errors.Is(err, domain.ErrNotFound) {
		p.log.Warn("index artifact without metadata, treating table as absent", "table", tableID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load metadata of %q: %w", tableID, err)
	}

	index, records, err := p.codec.decode(indexData, metaData)
	if errors.Is(err, errTornPair) {
		p.log.Warn("inconsistent table artifacts, treating table as absent", "table", tableID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load table %q: %w", tableID, err)
	}

	entry := &cache.Entry{Index: index, Records: records}
	p.cache.Put(tableID, entry)
	return entry, nil
}

// Save writes both artifacts of a table and updates the cache. On failure the
// cache entry is dropped so the next load reads whatever is persisted.
func (p *Persistence) Save(ctx context.Context, tableID string, index port.SimilarityIndex, records []domain.Record) error {
	indexData, metaData, err := p.codec.encode(index, records)
	if err != nil {
		p.cache.Invalidate(tableID)
		return fmt.Errorf("save table %q: %w", tableID, err)
	}
	err = p.blobs.PutAll(ctx, []port.Blob{
		{Key: IndexKey(tableID), Data: indexData},
		{Key: MetaKey(tableID), Data: metaData},
	})
	if err != nil {
		p.cache.Invalidate(tableID)
		return fmt.Errorf("save table %q: %w", tableID, err)
	}
	p.cache.Put(tableID, &cache.Entry{Index: index, Records: records})
	p.log.Debug("table saved", "table", tableID, "rows", len(records), "dim", index.Dim(),
		"index_bytes", len(indexData), "meta_bytes", len(metaData))
	return nil
}

// Clear removes both artifacts and the cache entry. Removal failures are
// logged and otherwise ignored.
func (p *Persistence) Clear(ctx context.Context, tableID string) {
	p.cache.Invalidate(tableID)
	if err := p.blobs.Delete(ctx, IndexKey(tableID), MetaKey(tableID)); err != nil {
		p.log.Warn("failed to remove table artifacts", "table", tableID, "error", err)
	}
}

// Close releases codec resources. The blob backend is owned by the caller.
func (p *Persistence) Close() {
	p.codec.close()
}
