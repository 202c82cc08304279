// Package flatindex implements an exact, append-only L2 nearest-neighbor index.
//
// Distances are squared Euclidean distances computed with the SIMD kernels of
// vecgo. Vectors are stored row-major in one slice and addressed by their
// insertion position, so position i of the index always pairs with entry i of
// whatever parallel metadata the caller keeps. There is no delete: callers
// rebuild a new index from the vectors they want to keep.
package flatindex

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/hupe1980/vecgo/distance"

	"vecsearch/internal/port"
)

var _ port.SimilarityIndex = (*Index)(nil)

// ErrDimension is returned when a vector does not match the index dimension.
var ErrDimension = errors.New("flatindex: dimension mismatch")

// Index is a brute-force squared-L2 index over vectors of one dimension.
//
// Index is not safe for concurrent mutation; concurrent Search calls are safe
// while no Add is running.
type Index struct {
	dim  int
	data []float32
}

// New creates an empty index for vectors of length dim.
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("flatindex: dimension must be positive, got %d", dim)
	}
	return &Index{dim: dim}, nil
}

// Build creates an index of the given dimension holding vectors in order.
func Build(dim int, vectors [][]float32) (*Index, error) {
	idx, err := New(dim)
	if err != nil {
		return nil, err
	}
	if err := idx.Add(vectors...); err != nil {
		return nil, err
	}
	return idx, nil
}

func (x *Index) Dim() int { return x.dim }

func (x *Index) Len() int { return len(x.data) / x.dim }

// Add appends vectors in order. Either all vectors are added or none.
func (x *Index) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("%w: vector %d has length %d, index has %d", ErrDimension, i, len(v), x.dim)
		}
	}
	x.data = slices.Grow(x.data, len(vectors)*x.dim)
	for _, v := range vectors {
		x.data = append(x.data, v...)
	}
	return nil
}

// Vector returns the stored vector at position i. The slice aliases index memory.
func (x *Index) Vector(i int) []float32 {
	return x.data[i*x.dim : (i+1)*x.dim : (i+1)*x.dim]
}

type candidate struct {
	pos  int
	dist float32
}

// Search returns the positions and squared L2 distances of the k closest
// vectors, closest first. Equal distances keep insertion order.
func (x *Index) Search(query []float32, k int) ([]int, []float32, error) {
	if len(query) != x.dim {
		return nil, nil, fmt.Errorf("%w: query has length %d, index has %d", ErrDimension, len(query), x.dim)
	}
	n := x.Len()
	if k <= 0 || n == 0 {
		return nil, nil, nil
	}
	k = min(k, n)

	cands := make([]candidate, n)
	for i := 0; i < n; i++ {
		cands[i] = candidate{pos: i, dist: distance.SquaredL2(query, x.Vector(i))}
	}
	slices.SortStableFunc(cands, func(a, b candidate) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		default:
			return 0
		}
	})

	positions := make([]int, k)
	distances := make([]float32, k)
	for i := 0; i < k; i++ {
		positions[i] = cands[i].pos
		distances[i] = cands[i].dist
	}
	return positions, distances, nil
}

// Factory creates flat indexes. It satisfies port.IndexFactory.
type Factory struct{}

var _ port.IndexFactory = Factory{}

func (Factory) New(dim int) (port.SimilarityIndex, error) {
	idx, err := New(dim)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func (Factory) Read(r io.Reader) (port.SimilarityIndex, error) {
	idx, err := Read(r)
	if err != nil {
		return nil, err
	}
	return idx, nil
}
