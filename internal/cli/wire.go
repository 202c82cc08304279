package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"vecsearch/config"
	"vecsearch/internal/adapter/blob"
	"vecsearch/internal/adapter/cache"
	"vecsearch/internal/adapter/embedding"
	"vecsearch/internal/adapter/metrics"
	"vecsearch/internal/adapter/store"
	"vecsearch/internal/port"
	"vecsearch/internal/usecase"
)

// app holds the wired components of one process.
type app struct {
	blobs    port.BlobStore
	persist  *store.Persistence
	store    *store.VectorStore
	embedder port.Embedder
	tables   *usecase.TableUseCase
	metrics  *metrics.PrometheusObserver
}

// newApp builds the store stack and the request layer from configuration.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	blobs, err := openBlobStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a := &app{blobs: blobs}
	var observer port.StoreObserver = port.NopObserver{}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewPrometheusObserver()
		observer = a.metrics
	}

	tables := cache.NewTableCache(cfg.Cache.MaxTables)
	if a.metrics != nil {
		a.metrics.TrackCachedTables(tables.Len)
	}

	a.persist, err = store.NewPersistence(blobs, store.PersistenceOptions{
		Compression: store.Compression(cfg.Storage.Compression),
		Cache:       tables,
		Logger:      log,
		Observer:    observer,
	})
	if err != nil {
		blobs.Close()
		return nil, err
	}
	a.store = store.NewVectorStore(a.persist, store.Options{
		DefaultTopK: cfg.Search.DefaultTopK,
		MaxTopK:     cfg.Search.MaxTopK,
		Observer:    observer,
		Logger:      log,
	})

	a.embedder, err = newEmbedder(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	a.tables = usecase.NewTableUseCase(a.store, a.embedder, log)

	log.Debug("components wired",
		"backend", cfg.Storage.Backend, "compression", cfg.Storage.Compression,
		"provider", cfg.Embedding.Provider, "model", a.embedder.ModelName())
	return a, nil
}

func (a *app) Close() error {
	a.persist.Close()
	return a.blobs.Close()
}

// openBlobStore opens the configured artifact backend.
func openBlobStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (port.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "fs":
		return blob.NewFS(cfg.Storage.Dir)
	case "bolt":
		if err := config.EnsureStorageDir(cfg.Storage.Dir); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		return blob.NewBolt(cfg.BoltPath())
	case "badger":
		return blob.NewBadger(blob.BadgerOptions{Dir: cfg.Storage.Dir, Logger: log})
	case "memory":
		return blob.NewMemory(), nil
	case "s3":
		client, err := newS3Client(ctx, cfg.Storage.S3)
		if err != nil {
			return nil, err
		}
		return blob.NewS3(client, cfg.Storage.S3.Bucket, cfg.Storage.S3.Prefix), nil
	}
	return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
}

func newS3Client(ctx context.Context, sc config.S3Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if sc.Region != "" {
		opts = append(opts, awsconfig.WithRegion(sc.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
		}
		o.UsePathStyle = sc.UsePathStyle
	}), nil
}

// newEmbedder creates the configured embedding provider, rate limited when
// embedding.rate_limit is set.
func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	var embedder port.Embedder
	ec := cfg.Embedding

	switch ec.Provider {
	case "ollama":
		embedder = embedding.NewOllamaEmbedder(embedding.OllamaConfig{
			BaseURL:     ec.BaseURL,
			Model:       ec.Model,
			Timeout:     ec.Timeout,
			Concurrency: ec.Concurrency,
			Dimension:   ec.Dimension,
		})
	case "openai", "jina":
		oc := embedding.OpenAIConfig{
			APIKeyEnv: ec.APIKeyEnv,
			Model:     ec.Model,
			BaseURL:   ec.BaseURL,
			Dimension: ec.Dimension,
			Timeout:   ec.Timeout,
		}
		newRemote := embedding.NewOpenAIEmbedder
		if ec.Provider == "jina" {
			newRemote = embedding.NewJinaEmbedder
		}
		e, err := newRemote(oc)
		if err != nil {
			return nil, err
		}
		embedder = e
	case "mock":
		embedder = embedding.NewMockEmbedder(ec.Dimension)
	default:
		return nil, errors.New("unsupported embedding provider: " + ec.Provider)
	}

	return embedding.NewRateLimited(embedder, ec.RateLimit, ec.Concurrency), nil
}
