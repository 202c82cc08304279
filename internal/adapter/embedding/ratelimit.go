package embedding

import (
	"context"

	"golang.org/x/time/rate"

	"vecsearch/internal/port"
)

// RateLimited throttles calls to an Embedder. Each text counts as one event.
type RateLimited struct {
	next    port.Embedder
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a limit of perSecond texts per second.
// A non-positive perSecond returns next unchanged.
func NewRateLimited(next port.Embedder, perSecond float64, burst int) port.Embedder {
	if perSecond <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Embed(ctx, text)
}

// EmbedBatch waits for one token per text before forwarding the batch. Batches
// larger than the burst are split so every part can be admitted.
func (r *RateLimited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	burst := r.limiter.Burst()
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += burst {
		end := min(i+burst, len(texts))
		if err := r.limiter.WaitN(ctx, end-i); err != nil {
			return nil, err
		}
		vecs, err := r.next.EmbedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (r *RateLimited) Dimension() int {
	return r.next.Dimension()
}

func (r *RateLimited) ModelName() string {
	return r.next.ModelName()
}
