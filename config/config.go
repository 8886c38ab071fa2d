package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DataDirName is the per-corpus directory holding the index and memory files.
const DataDirName = ".docchat"

// Config holds all configuration for docchat.
type Config struct {
	Ingest    IngestConfig    `yaml:"ingest"`
	Index     IndexConfig     `yaml:"index"`
	Memory    MemoryConfig    `yaml:"memory"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IngestConfig holds corpus discovery and chunking configuration.
type IngestConfig struct {
	Includes     []string `yaml:"includes"`
	Excludes     []string `yaml:"excludes"`
	ChunkSize    int      `yaml:"chunk_size"`    // characters
	ChunkOverlap int      `yaml:"chunk_overlap"` // characters shared by neighbouring chunks
	PDFCommand   string   `yaml:"pdf_command"`   // external text extractor for PDFs
}

// IndexConfig locates the vector index.
type IndexConfig struct {
	Path       string `yaml:"path"` // empty means <dir>/.docchat/index.db
	Collection string `yaml:"collection"`
}

// MemoryConfig selects the conversation memory backend.
type MemoryConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`    // empty sqlite DSN means <dir>/.docchat/memory.db
	TopK   int    `yaml:"top_k"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK      int           `yaml:"top_k"`
	CacheSize int           `yaml:"cache_size"` // 0 disables the serve-mode cache
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "local", "openai", "mistral", "ollama"
	Model     string `yaml:"model"`    // empty selects the provider default
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Dimension int    `yaml:"dimension"` // 0 infers it from the model (384 for local)
	BatchSize int    `yaml:"batch_size"`
}

// LLMConfig configures the external chat completions service.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Ingest: IngestConfig{
			Includes:     []string{"**/*.pdf", "**/*.txt", "**/*.md"},
			Excludes:     []string{"**/.git/**", "**/" + DataDirName + "/**", "**/node_modules/**"},
			ChunkSize:    800,
			ChunkOverlap: 100,
			PDFCommand:   "pdftotext",
		},
		Index: IndexConfig{
			Collection: "rag_documents",
		},
		Memory: MemoryConfig{
			Driver: "sqlite",
			TopK:   3,
		},
		Retrieve: RetrieveConfig{
			TopK:      3,
			CacheSize: 128,
			CacheTTL:  5 * time.Minute,
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			BatchSize: 64,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.mistral.ai/v1",
			Model:       "mistral-small",
			APIKeyEnv:   "MISTRAL_API_KEY",
			Timeout:     30 * time.Second,
			Temperature: 0.7,
			MaxTokens:   500,
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for docchat.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "docchat.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, DataDirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be in [0, %d), got %d", c.Ingest.ChunkSize, c.Ingest.ChunkOverlap)
	}
	switch c.Memory.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported memory.driver: %q", c.Memory.Driver)
	}
	if c.Memory.Driver == "postgres" && c.Memory.DSN == "" {
		return fmt.Errorf("memory.dsn is required for the postgres driver")
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must not be negative")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must not be negative")
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

// IndexPath returns the vector index file for the corpus in dir.
func (c *Config) IndexPath(dir string) string {
	if c.Index.Path != "" {
		return c.Index.Path
	}
	return filepath.Join(dir, DataDirName, "index.db")
}

// MemoryDSN returns the data source name of the conversation memory store.
func (c *Config) MemoryDSN(dir string) string {
	if c.Memory.DSN != "" {
		return c.Memory.DSN
	}
	return filepath.Join(dir, DataDirName, "memory.db")
}

// EnsureDataDir ensures the .docchat directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, DataDirName), 0755)
}
