package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"vecsearch/internal/domain"
)

const (
	DefaultOllamaBaseURL = "http://ollama:11434"
	DefaultOllamaModel   = "mxbai-embed-large"
	DefaultOllamaTimeout = 300 * time.Second
)

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	// Concurrency bounds parallel requests in EmbedBatch.
	Concurrency int
	// Dimension overrides the known dimension of Model.
	Dimension int
}

// OllamaEmbedder calls Ollama's native /api/embeddings endpoint, one prompt
// per request.
type OllamaEmbedder struct {
	baseURL     string
	model       string
	dimension   int
	concurrency int
	client      *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// ollamaResponse accepts the native shape and the OpenAI-style data list.
type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
	Data      []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOllamaTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = ollamaModelDimension(cfg.Model)
	}

	return &OllamaEmbedder{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		dimension:   dimension,
		concurrency: cfg.Concurrency,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

func ollamaModelDimension(model string) int {
	switch model {
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	default:
		// nomic-embed-text
		return 768
	}
}

// Embed returns the embedding of one text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, domain.NewProviderError("ollama", domain.ErrProviderUnavailable, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewProviderError("ollama", domain.ErrProviderUnavailable, resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.NewProviderError("ollama", domain.ErrProviderUnavailable, resp.StatusCode,
			fmt.Errorf("body: %s", preview(body)))
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.NewProviderError("ollama", domain.ErrProviderResponseInvalid, resp.StatusCode,
			fmt.Errorf("parse response (body: %s): %w", preview(body), err))
	}

	switch {
	case len(parsed.Embedding) > 0:
		return parsed.Embedding, nil
	case len(parsed.Data) > 0 && len(parsed.Data[0].Embedding) > 0:
		return parsed.Data[0].Embedding, nil
	}
	return nil, domain.NewProviderError("ollama", domain.ErrProviderResponseInvalid, resp.StatusCode,
		fmt.Errorf("no embedding field in response: %s", preview(body)))
}

// EmbedBatch embeds texts in parallel, bounded by the configured concurrency.
// The first failure cancels the remaining requests.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(ctx, text)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
