package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vecsearch/internal/adapter/blob"
	"vecsearch/internal/adapter/embedding"
	"vecsearch/internal/adapter/fs"
	"vecsearch/internal/adapter/store"
	"vecsearch/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newVectorStore(t *testing.T) *store.VectorStore {
	t.Helper()
	p, err := store.NewPersistence(blob.NewMemory(), store.PersistenceOptions{Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return store.NewVectorStore(p, store.Options{Logger: quietLogger()})
}

type brokenEmbedder struct{ *embedding.MockEmbedder }

func (brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, domain.NewProviderError("broken", domain.ErrProviderUnavailable, 503, errors.New("down"))
}

func (b brokenEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	_, err := b.Embed(ctx, "")
	return nil, err
}

type shortEmbedder struct{ *embedding.MockEmbedder }

func (s shortEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, _ := s.MockEmbedder.EmbedBatch(ctx, texts)
	return vecs[:len(vecs)-1], nil
}

func TestTableUseCaseUpsertAndSearch(t *testing.T) {
	uc := NewTableUseCase(newVectorStore(t), embedding.NewMockEmbedder(16), quietLogger())
	ctx := context.Background()

	report, err := uc.Upsert(ctx, "docs", []domain.TextRow{
		{ID: "1", Text: "the quick brown fox", Metadata: map[string]any{"lang": "en"}},
		{ID: "2", Text: "zzzzzzzzzzzzzzzz"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)

	results, err := uc.Search(ctx, "docs", "the quick brown fox", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].RowID)
	assert.Equal(t, 0.0, results[0].Score)
	assert.Equal(t, "en", results[0].Metadata["lang"])

	stats, err := uc.Stats(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 16, stats.Dimension)

	del, err := uc.Delete(ctx, "docs", []string{"2"})
	require.NoError(t, err)
	assert.Equal(t, 1, del.Remaining)
}

func TestTableUseCaseRebuild(t *testing.T) {
	uc := NewTableUseCase(newVectorStore(t), embedding.NewMockEmbedder(4), quietLogger())
	ctx := context.Background()

	_, err := uc.Upsert(ctx, "t", []domain.TextRow{{ID: "a", Text: "alpha"}, {ID: "b", Text: "beta"}})
	require.NoError(t, err)
	require.NoError(t, uc.Rebuild(ctx, "t", []domain.TextRow{{ID: "c", Text: "gamma"}}))

	results, err := uc.Search(ctx, "t", "alpha", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c", results[0].RowID)
}

func TestTableUseCaseProviderErrors(t *testing.T) {
	uc := NewTableUseCase(newVectorStore(t), brokenEmbedder{embedding.NewMockEmbedder(4)}, quietLogger())
	ctx := context.Background()

	_, err := uc.Upsert(ctx, "t", []domain.TextRow{{ID: "a", Text: "alpha"}})
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)

	_, err = uc.Search(ctx, "t", "alpha", 3)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)

	err = uc.Rebuild(ctx, "t", []domain.TextRow{{ID: "a", Text: "alpha"}})
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestTableUseCaseValidation(t *testing.T) {
	uc := NewTableUseCase(newVectorStore(t), embedding.NewMockEmbedder(4), quietLogger())
	ctx := context.Background()

	_, err := uc.Search(ctx, "t", "", 3)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = uc.Upsert(ctx, "t", []domain.TextRow{{Text: "no id"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	report, err := uc.Upsert(ctx, "t", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertReport{}, report)

	short := NewTableUseCase(newVectorStore(t), shortEmbedder{embedding.NewMockEmbedder(4)}, quietLogger())
	_, err = short.Upsert(ctx, "t", []domain.TextRow{{ID: "a", Text: "a"}, {ID: "b", Text: "b"}})
	assert.ErrorIs(t, err, domain.ErrProviderResponseInvalid)
}

func TestTableUseCaseModelSwitchResets(t *testing.T) {
	vs := newVectorStore(t)
	ctx := context.Background()

	small := NewTableUseCase(vs, embedding.NewMockEmbedder(4), quietLogger())
	_, err := small.Upsert(ctx, "t", []domain.TextRow{{ID: "a", Text: "alpha"}})
	require.NoError(t, err)

	large := NewTableUseCase(vs, embedding.NewMockEmbedder(8), quietLogger())
	report, err := large.Upsert(ctx, "t", []domain.TextRow{{ID: "b", Text: "beta"}})
	require.NoError(t, err)
	require.NotNil(t, report.Reset)
	assert.Equal(t, 4, report.Reset.OldDimension)
	assert.Equal(t, 8, report.Reset.NewDimension)
}

func TestIngest(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("first note"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes", "b.md"), []byte("second note"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes", "c.md"), []byte{0x00, 0x01}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.bin"), []byte("ignored"), 0o644))

	tables := NewTableUseCase(newVectorStore(t), embedding.NewMockEmbedder(8), quietLogger())
	ingest := NewIngestUseCase(tables, fs.NewWalker([]string{"**/*.md"}, nil, 0), 2, 1024, quietLogger())
	ctx := context.Background()

	var calls [][2]int
	result, err := ingest.Ingest(ctx, "notes", root, func(processed, total int) {
		calls = append(calls, [2]int{processed, total})
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.FilesSeen)
	assert.Equal(t, 2, result.FilesInserted)
	assert.Equal(t, 1, result.FilesSkipped)
	assert.Empty(t, result.Errors)
	assert.Equal(t, [][2]int{{2, 3}, {3, 3}}, calls)

	results, err := tables.Search(ctx, "notes", "second note", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "notes/b.md", results[0].RowID)
	assert.Equal(t, "notes/b.md", results[0].Metadata["path"])

	// A second run finds every file already present.
	again, err := ingest.Ingest(ctx, "notes", root, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, again.FilesInserted)
	assert.Equal(t, 3, again.FilesSkipped)
}
