package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vecsearch/internal/domain"
)

func ollamaServer(t *testing.T, handler http.HandlerFunc) *OllamaEmbedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL + "/", Model: "nomic-embed-text"})
}

func TestOllamaEmbed(t *testing.T) {
	e := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "hello", req.Prompt)
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	})

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 768, e.Dimension())
	assert.Equal(t, "nomic-embed-text", e.ModelName())
}

func TestOllamaEmbedDataFallback(t *testing.T) {
	e := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,2]}]}`))
	})

	vec, err := e.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}

func TestOllamaEmbedErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, domain.ErrProviderUnavailable},
		{"not found", http.StatusNotFound, `model not found`, domain.ErrProviderUnavailable},
		{"no embedding", http.StatusOK, `{"foo":1}`, domain.ErrProviderResponseInvalid},
		{"empty embedding", http.StatusOK, `{"embedding":[]}`, domain.ErrProviderResponseInvalid},
		{"not json", http.StatusOK, `<html>`, domain.ErrProviderResponseInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := e.Embed(context.Background(), "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)

			var perr *domain.ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "ollama", perr.Provider)
			assert.Equal(t, tt.status, perr.StatusCode)
		})
	}
}

func TestOllamaUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{BaseURL: url})
	_, err := e.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestOllamaEmbedBatchKeepsOrder(t *testing.T) {
	var calls atomic.Int32
	e := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{float32(len(req.Prompt))}})
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bbb", "cc", "dddd", "e"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {3}, {2}, {4}, {1}}, vecs)
	assert.Equal(t, int32(5), calls.Load())
}

func TestOllamaEmbedBatchFails(t *testing.T) {
	e := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt == "bad" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"embedding":[1]}`))
	})

	_, err := e.EmbedBatch(context.Background(), []string{"ok", "bad", "ok"})
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestOllamaDefaults(t *testing.T) {
	e := NewOllamaEmbedder(OllamaConfig{})
	assert.Equal(t, DefaultOllamaBaseURL, e.baseURL)
	assert.Equal(t, DefaultOllamaModel, e.ModelName())
	assert.Equal(t, 1024, e.Dimension())
	assert.Equal(t, DefaultOllamaTimeout, e.client.Timeout)
}

func openAIServer(t *testing.T, handler http.HandlerFunc) *OpenAIEmbedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	e, err := NewOpenAICompatibleEmbedder(OpenAIConfig{APIKeyEnv: "TEST_OPENAI_KEY", Model: "text-embedding-3-small", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	return e
}

func TestOpenAIEmbedBatch(t *testing.T) {
	e := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, []string{"a", "b"}, req.Input)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":1,"embedding":[0.5,0.5]},{"object":"embedding","index":0,"embedding":[1,0]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0.5, 0.5}}, vecs)
	assert.Equal(t, 1536, e.Dimension())
}

func TestOpenAIStatusError(t *testing.T) {
	e := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := e.Embed(context.Background(), "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
}

func TestOpenAIMissingEmbedding(t *testing.T) {
	e := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1]}]}`))
	})

	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, domain.ErrProviderResponseInvalid)
}

func TestOpenAIMissingKey(t *testing.T) {
	t.Setenv("TEST_EMPTY_KEY", "")
	_, err := NewOpenAICompatibleEmbedder(OpenAIConfig{APIKeyEnv: "TEST_EMPTY_KEY"})
	assert.Error(t, err)
}

func TestJinaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jina-test", r.Header.Get("Authorization"))
		var req struct {
			Model string `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "jina-embeddings-v3", req.Model)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()
	t.Setenv("JINA_API_KEY", "jina-test")

	e, err := NewJinaEmbedder(OpenAIConfig{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, "jina-embeddings-v3", e.ModelName())
	assert.Equal(t, 1024, e.Dimension())

	_, err = e.Embed(context.Background(), "a")
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "jina", perr.Provider)
	assert.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
}

func TestOpenAIEmbedderDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-default")
	e, err := NewOpenAIEmbedder(OpenAIConfig{})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", e.ModelName())
	assert.Equal(t, "openai", e.provider)

	t.Setenv("OPENAI_API_KEY", "")
	_, err = NewOpenAIEmbedder(OpenAIConfig{})
	assert.Error(t, err)
}

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(4)
	ctx := context.Background()

	a1, err := e.Embed(ctx, "hello world")
	require.NoError(t, err)
	a2, _ := e.Embed(ctx, "hello world")
	b, _ := e.Embed(ctx, "hello there")
	assert.Len(t, a1, 4)
	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)

	vecs, err := e.EmbedBatch(ctx, []string{"x", "y"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, "mock", e.ModelName())
}

type countingEmbedder struct {
	mu      sync.Mutex
	batches []int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.batches = append(c.batches, len(texts))
	c.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func (c *countingEmbedder) Dimension() int    { return 1 }
func (c *countingEmbedder) ModelName() string { return "counting" }

func TestRateLimitedSplitsBatches(t *testing.T) {
	next := &countingEmbedder{}
	e := NewRateLimited(next, 1000, 2)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, []int{2, 2, 1}, next.batches)
	assert.Equal(t, "counting", e.ModelName())
}

func TestRateLimitedDisabled(t *testing.T) {
	next := &countingEmbedder{}
	assert.Same(t, next, NewRateLimited(next, 0, 0))
}

func TestRateLimitedHonorsContext(t *testing.T) {
	e := NewRateLimited(&countingEmbedder{}, 0.001, 1)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := e.Embed(ctx, "first")
	require.NoError(t, err)
	cancel()
	_, err = e.Embed(ctx, "second")
	assert.Error(t, err)
}
