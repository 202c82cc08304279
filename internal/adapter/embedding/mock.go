package embedding

import (
	"context"
	"hash/fnv"
)

// MockEmbedder derives deterministic vectors from the text itself. Equal
// texts get equal vectors, so it is useful for tests and offline runs.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 8
	}
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	for j, r := range []rune(text) {
		if j >= e.dimension {
			break
		}
		vec[j] = float32(r) / 1000.0
	}
	// Fold the whole text into the last slot so long texts sharing a prefix differ.
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	vec[e.dimension-1] += float32(h.Sum32()%1000) / 1000.0
	return vec, nil
}

func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i], _ = e.Embed(ctx, text)
	}
	return out, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
