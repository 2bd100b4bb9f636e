package common

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Store.VectorStore != StoreChroma {
		t.Errorf("VectorStore = %q, want %q", cfg.Store.VectorStore, StoreChroma)
	}
	if cfg.Store.LoadLimit != 10000 {
		t.Errorf("LoadLimit = %d, want 10000", cfg.Store.LoadLimit)
	}
	if cfg.Store.CheckUpdate {
		t.Error("CheckUpdate should default to false")
	}
	if cfg.Chroma.PersistDir != "chroma_db" {
		t.Errorf("PersistDir = %q, want chroma_db", cfg.Chroma.PersistDir)
	}
	if cfg.Embed.Provider != EmbedLocal {
		t.Errorf("Embed.Provider = %q, want %q", cfg.Embed.Provider, EmbedLocal)
	}
	if cfg.Rerank.Provider != RerankLocal {
		t.Errorf("Rerank.Provider = %q, want %q", cfg.Rerank.Provider, RerankLocal)
	}
	if cfg.Ingest.ChunkSize != 500 || cfg.Ingest.ChunkOverlap != 50 {
		t.Errorf("chunking = %d/%d, want 500/50", cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	}
	if cfg.Query.TopK != 10 || cfg.Query.TopKRerankScale != 5 {
		t.Errorf("query = %d/%d, want 10/5", cfg.Query.TopK, cfg.Query.TopKRerankScale)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = 9100

[ingest]
chunk_size = 300
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Ingest.ChunkSize != 300 {
		t.Errorf("ChunkSize = %d, want 300", cfg.Ingest.ChunkSize)
	}
	// Untouched sections keep their defaults.
	if cfg.Ingest.ChunkOverlap != 50 {
		t.Errorf("ChunkOverlap = %d, want default 50", cfg.Ingest.ChunkOverlap)
	}
}

func TestLoadFromFilesLaterFileWins(t *testing.T) {
	first := writeConfigFile(t, "[server]\nport = 9100\n")
	second := writeConfigFile(t, "[server]\nport = 9200\n")

	cfg, err := LoadFromFiles(first, second)
	if err != nil {
		t.Fatalf("LoadFromFiles: %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("Port = %d, want 9200 from the later file", cfg.Server.Port)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
[ingest]
chunk_size = 300

[embed]
provider = "local"
`)

	t.Setenv("CHUNK_SIZE", "200")
	t.Setenv("EMBED_PROVIDER", "openai")
	t.Setenv("CHECK_UPDATE", "true")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Ingest.ChunkSize != 200 {
		t.Errorf("ChunkSize = %d, want env override 200", cfg.Ingest.ChunkSize)
	}
	if cfg.Embed.Provider != EmbedOpenAI {
		t.Errorf("Embed.Provider = %q, want env override %q", cfg.Embed.Provider, EmbedOpenAI)
	}
	if !cfg.Store.CheckUpdate {
		t.Error("CheckUpdate should be overridden to true")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	if !errors.Is(err, ErrConfig) {
		t.Errorf("err = %v, want ErrConfig", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"pgvector with credentials", func(c *Config) { c.Store.VectorStore = StorePgVector }, true},
		{"rerank none", func(c *Config) { c.Rerank.Provider = RerankNone }, true},
		{"unknown store", func(c *Config) { c.Store.VectorStore = "faiss" }, false},
		{"unknown embed provider", func(c *Config) { c.Embed.Provider = "voyage" }, false},
		{"unknown rerank provider", func(c *Config) { c.Rerank.Provider = "jina" }, false},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, false},
		{"zero load limit", func(c *Config) { c.Store.LoadLimit = 0 }, false},
		{"zero chunk size", func(c *Config) { c.Ingest.ChunkSize = 0 }, false},
		{"overlap equals chunk size", func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize }, false},
		{"negative overlap", func(c *Config) { c.Ingest.ChunkOverlap = -1 }, false},
		{"empty user agent", func(c *Config) { c.Ingest.UserAgent = "" }, false},
		{"zero topk", func(c *Config) { c.Query.TopK = 0 }, false},
		{"zero rerank scale", func(c *Config) { c.Query.TopKRerankScale = 0 }, false},
		{"local embed without base url", func(c *Config) { c.Embed.LocalBaseURL = "" }, false},
		{"local rerank without base url", func(c *Config) { c.Rerank.LocalBaseURL = "" }, false},
		{"pgvector without password", func(c *Config) {
			c.Store.VectorStore = StorePgVector
			c.PG.Password = ""
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				if !errors.Is(err, ErrConfig) {
					t.Errorf("err = %v, want ErrConfig", err)
				}
			}
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := NewDefaultConfig()

	ApplyFlagOverrides(cfg, 9300, "127.0.0.1")
	if cfg.Server.Port != 9300 || cfg.Server.Host != "127.0.0.1" {
		t.Errorf("flags not applied: %d %s", cfg.Server.Port, cfg.Server.Host)
	}

	ApplyFlagOverrides(cfg, 0, "")
	if cfg.Server.Port != 9300 || cfg.Server.Host != "127.0.0.1" {
		t.Error("zero-value flags must not clobber configured values")
	}
}
