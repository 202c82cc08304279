package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the vecsearch service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Search    SearchConfig    `yaml:"search"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// StorageConfig selects where table artifacts live.
type StorageConfig struct {
	Backend     string   `yaml:"backend"`     // "fs", "bolt", "badger", "s3", "memory"
	Dir         string   `yaml:"dir"`         // fs root, bolt file directory, badger directory
	Compression string   `yaml:"compression"` // "zstd" or "none"
	S3          S3Config `yaml:"s3"`
}

// S3Config holds S3 backend configuration. Credentials come from the
// standard AWS environment and shared config files.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"` // for MinIO and other S3-compatible stores
	UsePathStyle bool   `yaml:"use_path_style"`
}

// CacheConfig bounds the in-memory table cache.
type CacheConfig struct {
	MaxTables int `yaml:"max_tables"` // 0 = unbounded
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"` // 0 = no cap
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider"`    // "ollama", "openai", "jina", "mock"
	Model       string        `yaml:"model"`       // empty = provider default (ollama: mxbai-embed-large)
	BaseURL     string        `yaml:"base_url"`    // empty = provider default (ollama: http://ollama:11434)
	APIKeyEnv   string        `yaml:"api_key_env"` // empty = OPENAI_API_KEY or JINA_API_KEY
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	RateLimit   float64       `yaml:"rate_limit"` // texts per second, 0 = unlimited
	Dimension   int           `yaml:"dimension"`  // 0 = model default
}

// IngestConfig holds directory ingest configuration.
type IngestConfig struct {
	Includes     []string `yaml:"includes"`
	Excludes     []string `yaml:"excludes"`
	MaxFileBytes int64    `yaml:"max_file_bytes"`
	BatchSize    int      `yaml:"batch_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8001",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
			MaxBodyBytes: 64 << 20,
		},
		Storage: StorageConfig{
			Backend:     "fs",
			Dir:         "./indexes",
			Compression: "zstd",
		},
		Search: SearchConfig{
			DefaultTopK: 3,
		},
		Embedding: EmbeddingConfig{
			Provider:    "ollama",
			Timeout:     300 * time.Second,
			Concurrency: 4,
		},
		Ingest: IngestConfig{
			Includes:     []string{"**/*.md", "**/*.txt", "**/*.rst", "**/*.go", "**/*.py", "**/*.js", "**/*.ts", "**/*.java", "**/*.rs"},
			Excludes:     []string{"**/node_modules/**", "**/vendor/**", "**/.git/**", "**/dist/**", "**/build/**", "**/__pycache__/**"},
			MaxFileBytes: 32 << 10,
			BatchSize:    32,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from a YAML file and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnv()
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for vecsearch.yaml).
func LoadFromDir(dir string) (*Config, error) {
	// Try vecsearch.yaml in the directory
	path := filepath.Join(dir, "vecsearch.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	// Try .vecsearch/config.yaml
	path = filepath.Join(dir, ".vecsearch", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	// Return defaults
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides settings from the environment. The Ollama variables
// match what the container images of the embedding service export.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("VECSEARCH_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("VECSEARCH_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "fs", "bolt", "badger":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for backend %q", c.Storage.Backend)
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for backend s3")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}

	switch c.Storage.Compression {
	case "", "zstd", "none":
	default:
		return fmt.Errorf("unknown storage.compression %q", c.Storage.Compression)
	}

	switch c.Embedding.Provider {
	case "ollama", "openai", "jina", "mock":
	default:
		return fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "mock" && c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive for the mock provider")
	}
	if c.Embedding.RateLimit < 0 {
		return fmt.Errorf("embedding.rate_limit must not be negative")
	}

	if c.Search.DefaultTopK <= 0 {
		return fmt.Errorf("search.default_top_k must be positive")
	}
	if c.Search.MaxTopK < 0 {
		return fmt.Errorf("search.max_top_k must not be negative")
	}
	if c.Search.MaxTopK > 0 && c.Search.MaxTopK < c.Search.DefaultTopK {
		return fmt.Errorf("search.max_top_k (%d) must be at least search.default_top_k (%d)", c.Search.MaxTopK, c.Search.DefaultTopK)
	}
	if c.Cache.MaxTables < 0 {
		return fmt.Errorf("cache.max_tables must not be negative")
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// BoltPath returns the bolt database file inside the storage directory.
func (c *Config) BoltPath() string {
	return filepath.Join(c.Storage.Dir, "vecsearch.db")
}

// EnsureStorageDir ensures the storage directory exists.
func EnsureStorageDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
