package port

import "io"

// SimilarityIndex is an append-only k-nearest-neighbor structure over
// vectors of one fixed dimension. Positions are assigned in insertion order
// starting at 0. There is no removal: deleting means building a new index.
type SimilarityIndex interface {
	// Dim returns the fixed vector dimension.
	Dim() int

	// Len returns the number of stored vectors.
	Len() int

	// Add appends vectors in order. All must have length Dim().
	Add(vectors ...[]float32) error

	// Search returns up to k positions with their distances, closest first.
	// Smaller distance means closer.
	Search(query []float32, k int) (positions []int, distances []float32, err error)

	// WriteTo serializes the index.
	WriteTo(w io.Writer) (int64, error)
}

// IndexFactory creates and decodes similarity indexes.
type IndexFactory interface {
	New(dim int) (SimilarityIndex, error)
	Read(r io.Reader) (SimilarityIndex, error)
}
