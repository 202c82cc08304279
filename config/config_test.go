package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OLLAMA_BASE_URL", "OLLAMA_EMBED_MODEL", "VECSEARCH_STORAGE_DIR", "VECSEARCH_ADDR"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Addr != ":8001" {
		t.Errorf("expected Addr=:8001, got %s", cfg.Server.Addr)
	}
	if cfg.Search.DefaultTopK != 3 {
		t.Errorf("expected DefaultTopK=3, got %d", cfg.Search.DefaultTopK)
	}
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("expected Provider=ollama, got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Model != "" || cfg.Embedding.BaseURL != "" {
		t.Errorf("expected provider default model and base URL, got %q %q", cfg.Embedding.Model, cfg.Embedding.BaseURL)
	}
	if cfg.Embedding.Timeout != 300*time.Second {
		t.Errorf("expected Timeout=300s, got %s", cfg.Embedding.Timeout)
	}
	if cfg.Storage.Backend != "fs" {
		t.Errorf("expected Backend=fs, got %s", cfg.Storage.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "vecsearch.yaml")

	content := `
storage:
  backend: badger
  compression: none
search:
  default_top_k: 5
embedding:
  provider: mock
  dimension: 16
  timeout: 30s
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Storage.Backend != "badger" {
		t.Errorf("expected Backend=badger, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.Dir != "./indexes" {
		t.Errorf("expected default Dir to survive, got %s", cfg.Storage.Dir)
	}
	if cfg.Search.DefaultTopK != 5 {
		t.Errorf("expected DefaultTopK=5, got %d", cfg.Search.DefaultTopK)
	}
	if cfg.Embedding.Timeout != 30*time.Second {
		t.Errorf("expected Timeout=30s, got %s", cfg.Embedding.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vecsearch.yaml")
	if err := os.WriteFile(configPath, []byte("search: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadFromDir(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, ".vecsearch"), 0755); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(tmpDir, ".vecsearch", "config.yaml")

	content := `
server:
  addr: ":9000"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("expected Addr=:9000, got %s", cfg.Server.Addr)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434")
	t.Setenv("OLLAMA_EMBED_MODEL", "nomic-embed-text")
	t.Setenv("VECSEARCH_STORAGE_DIR", "/data/indexes")
	t.Setenv("VECSEARCH_ADDR", ":7000")

	cfg, err := LoadFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Embedding.BaseURL != "http://localhost:11434" {
		t.Errorf("expected BaseURL override, got %s", cfg.Embedding.BaseURL)
	}
	if cfg.Embedding.Model != "nomic-embed-text" {
		t.Errorf("expected Model override, got %s", cfg.Embedding.Model)
	}
	if cfg.Storage.Dir != "/data/indexes" {
		t.Errorf("expected Dir override, got %s", cfg.Storage.Dir)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("expected Addr override, got %s", cfg.Server.Addr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }},
		{"fs without dir", func(c *Config) { c.Storage.Dir = "" }},
		{"unknown compression", func(c *Config) { c.Storage.Compression = "gzip" }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"mock without dimension", func(c *Config) { c.Embedding.Provider = "mock" }},
		{"zero top k", func(c *Config) { c.Search.DefaultTopK = 0 }},
		{"max below default", func(c *Config) { c.Search.MaxTopK = 2 }},
		{"negative max top k", func(c *Config) { c.Search.MaxTopK = -1 }},
		{"negative cache", func(c *Config) { c.Cache.MaxTables = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "vecsearch.yaml")
	cfg := DefaultConfig()
	cfg.Cache.MaxTables = 12
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Cache.MaxTables != 12 {
		t.Errorf("expected MaxTables=12, got %d", loaded.Cache.MaxTables)
	}
}

func TestBoltPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Dir = "/srv/indexes"
	expected := filepath.Join("/srv/indexes", "vecsearch.db")
	if path := cfg.BoltPath(); path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}
}
