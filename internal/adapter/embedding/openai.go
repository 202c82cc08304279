package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"vecsearch/internal/domain"
)

const openAIMaxBatch = 100

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client    openai.Client
	provider  string
	model     string
	dimension int
	// requestDim is sent as the dimensions parameter when positive.
	requestDim int
}

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	APIKeyEnv string
	Model     string
	BaseURL   string
	// Dimension asks the API for shortened embeddings. Zero keeps the model default.
	Dimension int
	Timeout   time.Duration
}

// NewOpenAIEmbedder targets the OpenAI API unless cfg.BaseURL points elsewhere.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	return NewOpenAICompatibleEmbedder(cfg)
}

// NewJinaEmbedder targets the Jina AI embeddings API.
func NewJinaEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.jina.ai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "jina-embeddings-v3"
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "JINA_API_KEY"
	}
	e, err := NewOpenAICompatibleEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	e.provider = "jina"
	return e, nil
}

func NewOpenAICompatibleEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = openAIModelDimension(cfg.Model)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIEmbedder{
		client:     openai.NewClient(opts...),
		provider:   "openai",
		model:      cfg.Model,
		dimension:  dimension,
		requestDim: cfg.Dimension,
	}, nil
}

func openAIModelDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "jina-embeddings-v3":
		return 1024
	case "jina-embeddings-v4":
		return 2048
	default:
		// text-embedding-3-small, text-embedding-ada-002
		return 1536
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in order, splitting them into requests of at most
// 100 inputs.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += openAIMaxBatch {
		end := min(i+openAIMaxBatch, len(texts))
		vecs, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vecs...)
	}
	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model:          e.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if e.requestDim > 0 {
		params.Dimensions = openai.Int(int64(e.requestDim))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, domain.NewProviderError(e.provider, domain.ErrProviderUnavailable, apiErr.StatusCode, err)
		}
		return nil, domain.NewProviderError(e.provider, domain.ErrProviderUnavailable, 0, err)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= int64(len(texts)) {
			return nil, domain.NewProviderError(e.provider, domain.ErrProviderResponseInvalid, 0,
				fmt.Errorf("embedding index %d outside batch of %d", data.Index, len(texts)))
		}
		embeddings[data.Index] = toFloat32(data.Embedding)
	}
	for i, v := range embeddings {
		if len(v) == 0 {
			return nil, domain.NewProviderError(e.provider, domain.ErrProviderResponseInvalid, 0,
				fmt.Errorf("missing embedding for input %d", i))
		}
	}
	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
