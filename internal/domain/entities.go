package domain

import "maps"

// Row is one entry handed to the store: an id, its embedding and opaque metadata.
type Row struct {
	ID        string         `json:"row_id"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TextRow is a row before embedding, as it arrives from clients.
type TextRow struct {
	ID       string         `json:"row_id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Record is the persisted metadata entry for one vector of a table.
// Records are index-aligned with the vectors of the table's similarity index.
// The embedding is kept so the index can be rebuilt without re-embedding.
type Record struct {
	RowID     string         `msgpack:"row_id"`
	Embedding []float32      `msgpack:"embedding"`
	Metadata  map[string]any `msgpack:"metadata"`
}

// RecordFromRow copies a row into a record. The embedding and the top level of
// the metadata map are copied, so later changes to the row do not reach the record.
func RecordFromRow(r Row) Record {
	emb := make([]float32, len(r.Embedding))
	copy(emb, r.Embedding)
	return Record{
		RowID:     r.ID,
		Embedding: emb,
		Metadata:  maps.Clone(r.Metadata),
	}
}

// SearchResult is a single ranked hit. Higher scores are closer.
type SearchResult struct {
	RowID    string         `json:"row_id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// TableStats describes the persisted state of one table.
type TableStats struct {
	TableID   string `json:"table_id"`
	Exists    bool   `json:"exists"`
	Rows      int    `json:"rows"`
	Dimension int    `json:"dimension"`
}

// ResetEvent records a destructive reset caused by a dimension change.
type ResetEvent struct {
	TableID      string
	OldDimension int
	NewDimension int
	DroppedRows  int
}

// UpsertReport summarizes an upsert.
type UpsertReport struct {
	Inserted int         `json:"inserted"`
	Skipped  int         `json:"skipped"`
	Reset    *ResetEvent `json:"-"`
}

// DeleteReport summarizes a delete.
type DeleteReport struct {
	Deleted   int  `json:"deleted"`
	Remaining int  `json:"remaining"`
	Dropped   bool `json:"dropped"`
}
