package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vecsearch/internal/adapter/fs"
	"vecsearch/internal/domain"
	"vecsearch/internal/port"
)

// IngestUseCase upserts the text files of a directory into a table, one row
// per file keyed by its relative path.
type IngestUseCase struct {
	tables    *TableUseCase
	walker    port.FileWalker
	batchSize int
	maxBytes  int64
	log       *slog.Logger
}

// NewIngestUseCase creates a new ingest use case. maxBytes bounds how much of
// each file is embedded.
func NewIngestUseCase(tables *TableUseCase, walker port.FileWalker, batchSize int, maxBytes int64, logger *slog.Logger) *IngestUseCase {
	if batchSize <= 0 {
		batchSize = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		tables:    tables,
		walker:    walker,
		batchSize: batchSize,
		maxBytes:  maxBytes,
		log:       logger,
	}
}

// IngestResult contains the results of an ingest run.
type IngestResult struct {
	FilesSeen     int
	FilesInserted int
	FilesSkipped  int
	Resets        int
	Errors        []string
	Duration      time.Duration
}

// ProgressFunc is called after each batch with the number of files handled.
type ProgressFunc func(processed, total int)

// Ingest walks root and upserts every text file into tableID. Files that
// cannot be read, or are not text, are recorded in the result and skipped.
// Embedding and store failures abort the run.
func (u *IngestUseCase) Ingest(ctx context.Context, tableID, root string, progress ProgressFunc) (*IngestResult, error) {
	start := time.Now()
	result := &IngestResult{}

	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	result.FilesSeen = len(files)

	processed := 0
	for i := 0; i < len(files); i += u.batchSize {
		end := min(i+u.batchSize, len(files))

		batch := make([]domain.TextRow, 0, end-i)
		for _, file := range files[i:end] {
			text, ok, err := fs.ReadText(file.Path, u.maxBytes)
			switch {
			case err != nil:
				result.Errors = append(result.Errors, fmt.Sprintf("failed to read %s: %v", file.RelPath, err))
				continue
			case !ok || text == "":
				result.FilesSkipped++
				continue
			}
			batch = append(batch, domain.TextRow{
				ID:   file.RelPath,
				Text: text,
				Metadata: map[string]any{
					"path":     file.RelPath,
					"size":     file.Size,
					"mod_time": time.Unix(file.ModTime, 0).UTC().Format(time.RFC3339),
				},
			})
		}

		if len(batch) > 0 {
			report, err := u.tables.Upsert(ctx, tableID, batch)
			if err != nil {
				return result, fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
			}
			result.FilesInserted += report.Inserted
			result.FilesSkipped += report.Skipped
			if report.Reset != nil {
				result.Resets++
			}
		}

		processed = end
		if progress != nil {
			progress(processed, len(files))
		}
	}

	result.Duration = time.Since(start)
	u.log.Info("ingest finished", "table", tableID, "root", root,
		"seen", result.FilesSeen, "inserted", result.FilesInserted, "skipped", result.FilesSkipped,
		"errors", len(result.Errors), "duration", result.Duration)
	return result, nil
}
