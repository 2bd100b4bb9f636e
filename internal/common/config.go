package common

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Provider names accepted by the configuration.
const (
	StoreChroma   = "chroma"
	StorePgVector = "pgvector"

	EmbedLocal  = "local"
	EmbedOpenAI = "openai"
	EmbedCohere = "cohere"

	RerankLocal  = "local"
	RerankCohere = "cohere"
	RerankNone   = "none"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
	Store   StoreConfig   `toml:"store"`
	Chroma  ChromaConfig  `toml:"chroma"`
	PG      PGConfig      `toml:"pg"`
	Embed   EmbedConfig   `toml:"embed"`
	Rerank  RerankConfig  `toml:"rerank"`
	Ingest  IngestConfig  `toml:"ingest"`
	Query   QueryConfig   `toml:"query"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// StoreConfig selects and tunes the vector store backend.
type StoreConfig struct {
	VectorStore string `toml:"vector_store" validate:"oneof=chroma pgvector"`
	LoadLimit   int    `toml:"load_limit" validate:"gt=0"`   // Fingerprint cache scan cap per space
	CheckUpdate bool   `toml:"check_update"`                 // Re-read sources already in the store
}

// ChromaConfig holds the chroma connection settings. A non-empty
// PersistDir selects the embedded store; otherwise Host selects server
// mode, and the APIKey/Tenant/Database triple selects cloud mode.
type ChromaConfig struct {
	PersistDir string `toml:"persist_dir"`
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	APIKey     string `toml:"api_key"`
	Tenant     string `toml:"tenant"`
	Database   string `toml:"database"`
}

type PGConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// EmbedConfig selects the embedding provider and its models.
type EmbedConfig struct {
	Provider string `toml:"provider" validate:"oneof=local openai cohere"`

	OpenAIModelText string `toml:"openai_model_text"`
	OpenAIAPIKey    string `toml:"openai_api_key"`
	OpenAIBaseURL   string `toml:"openai_base_url"`

	CohereModelText  string `toml:"cohere_model_text"`
	CohereModelImage string `toml:"cohere_model_image"`
	CohereAPIKey     string `toml:"cohere_api_key"`

	LocalModelText  string `toml:"local_model_text"`
	LocalModelImage string `toml:"local_model_image"`
	LocalBaseURL    string `toml:"local_base_url"`
}

// RerankConfig selects the reranking provider, or "none" to disable.
type RerankConfig struct {
	Provider string `toml:"provider" validate:"oneof=local cohere none"`

	LocalModel   string `toml:"local_model"`
	LocalBaseURL string `toml:"local_base_url"`

	CohereModel string `toml:"cohere_model"`
}

type IngestConfig struct {
	ChunkSize    int    `toml:"chunk_size" validate:"gt=0"`
	ChunkOverlap int    `toml:"chunk_overlap" validate:"gte=0"`
	UserAgent    string `toml:"user_agent" validate:"required"`
	UploadDir    string `toml:"upload_dir"`
}

type QueryConfig struct {
	TopK            int `toml:"topk" validate:"gt=0"`
	TopKRerankScale int `toml:"topk_rerank_scale" validate:"gt=0"`
}

// NewDefaultConfig returns the built-in defaults. Files, environment and
// flags are layered on top.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8000,
			Host: "0.0.0.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Store: StoreConfig{
			VectorStore: StoreChroma,
			LoadLimit:   10000,
			CheckUpdate: false,
		},
		Chroma: ChromaConfig{
			PersistDir: "chroma_db", // Embedded store by default
			Port:       8000,
		},
		PG: PGConfig{
			Host:     "localhost",
			Port:     5432,
			Database: ProjectName,
			User:     ProjectName,
			Password: ProjectName,
		},
		Embed: EmbedConfig{
			Provider:         EmbedLocal,
			OpenAIModelText:  "text-embedding-3-small",
			CohereModelText:  "embed-v4.0",
			CohereModelImage: "embed-v4.0",
			LocalModelText:   "openai/clip-vit-base-patch32",
			LocalModelImage:  "openai/clip-vit-base-patch32",
			LocalBaseURL:     "http://localhost:8001/v1",
		},
		Rerank: RerankConfig{
			Provider:     RerankLocal,
			LocalModel:   "BAAI/bge-reranker-v2-m3",
			LocalBaseURL: "http://localhost:8002/v1",
			CohereModel:  "rerank-multilingual-v3.0",
		},
		Ingest: IngestConfig{
			ChunkSize:    500,
			ChunkOverlap: 50,
			UserAgent:    ProjectName,
			UploadDir:    "upload",
		},
		Query: QueryConfig{
			TopK:            10,
			TopKRerankScale: 5,
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files; later files
// override earlier ones, and environment variables override all files.
// A .env file in the working directory is honoured before the
// environment is read.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfig, path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config file %s: %v", ErrConfig, path, err)
		}
	}

	// Missing .env is fine; only explicit variables override.
	_ = godotenv.Load()

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks field constraints plus the cross-field rules the tag
// syntax cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be smaller than chunk_size", ErrConfig)
	}
	if c.Store.VectorStore == StorePgVector {
		if c.PG.Host == "" || c.PG.Database == "" || c.PG.User == "" || c.PG.Password == "" {
			return fmt.Errorf("%w: pgvector requires pg host, database, user and password", ErrConfig)
		}
	}
	if c.Embed.Provider == EmbedLocal && c.Embed.LocalBaseURL == "" {
		return fmt.Errorf("%w: local embed provider requires a base URL", ErrConfig)
	}
	if c.Rerank.Provider == RerankLocal && c.Rerank.LocalBaseURL == "" {
		return fmt.Errorf("%w: local rerank provider requires a base URL", ErrConfig)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	envInt("RAGSERVER_PORT", &config.Server.Port)
	envStr("RAGSERVER_HOST", &config.Server.Host)
	envStr("LOG_LEVEL", &config.Logging.Level)

	envStr("VECTOR_STORE", &config.Store.VectorStore)
	envInt("LOAD_LIMIT", &config.Store.LoadLimit)
	envBool("CHECK_UPDATE", &config.Store.CheckUpdate)

	envStr("CHROMA_PERSIST_DIR", &config.Chroma.PersistDir)
	envStr("CHROMA_HOST", &config.Chroma.Host)
	envInt("CHROMA_PORT", &config.Chroma.Port)
	envStr("CHROMA_API_KEY", &config.Chroma.APIKey)
	envStr("CHROMA_TENANT", &config.Chroma.Tenant)
	envStr("CHROMA_DATABASE", &config.Chroma.Database)

	envStr("PG_HOST", &config.PG.Host)
	envInt("PG_PORT", &config.PG.Port)
	envStr("PG_DATABASE", &config.PG.Database)
	envStr("PG_USER", &config.PG.User)
	envStr("PG_PASSWORD", &config.PG.Password)

	envStr("EMBED_PROVIDER", &config.Embed.Provider)
	envStr("OPENAI_EMBED_MODEL_TEXT", &config.Embed.OpenAIModelText)
	envStr("OPENAI_API_KEY", &config.Embed.OpenAIAPIKey)
	envStr("OPENAI_BASE_URL", &config.Embed.OpenAIBaseURL)
	envStr("COHERE_EMBED_MODEL_TEXT", &config.Embed.CohereModelText)
	envStr("COHERE_EMBED_MODEL_IMAGE", &config.Embed.CohereModelImage)
	envStr("COHERE_API_KEY", &config.Embed.CohereAPIKey)
	envStr("LOCAL_EMBED_MODEL_TEXT", &config.Embed.LocalModelText)
	envStr("LOCAL_EMBED_MODEL_IMAGE", &config.Embed.LocalModelImage)
	envStr("LOCAL_EMBED_BASE_URL", &config.Embed.LocalBaseURL)

	envStr("RERANK_PROVIDER", &config.Rerank.Provider)
	envStr("LOCAL_RERANK_MODEL", &config.Rerank.LocalModel)
	envStr("LOCAL_RERANK_BASE_URL", &config.Rerank.LocalBaseURL)
	envStr("COHERE_RERANK_MODEL", &config.Rerank.CohereModel)

	envInt("CHUNK_SIZE", &config.Ingest.ChunkSize)
	envInt("CHUNK_OVERLAP", &config.Ingest.ChunkOverlap)
	envStr("USER_AGENT", &config.Ingest.UserAgent)
	envStr("UPLOAD_DIR", &config.Ingest.UploadDir)

	envInt("TOPK", &config.Query.TopK)
	envInt("TOPK_RERANK_SCALE", &config.Query.TopKRerankScale)
}

// ApplyFlagOverrides applies command-line flags (highest priority).
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
