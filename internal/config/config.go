// Package config loads semsearch settings.
//
// Settings are layered, later layers winning:
//  1. Built-in defaults
//  2. User config ($XDG_CONFIG_HOME/semsearch/config.yaml)
//  3. Project config (.semsearch.yaml or .semsearch.yml), or an explicit file
//  4. SEMSEARCH_* variables from the environment or a .env file
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/semsearch/internal/errors"
)

// ProjectConfigNames are looked up, in order, in the working directory.
var ProjectConfigNames = []string{".semsearch.yaml", ".semsearch.yml"}

// Config is the complete semsearch configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Chunk      ChunkConfig      `yaml:"chunk" json:"chunk"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Parse      ParseConfig      `yaml:"parse" json:"parse"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// StoreConfig locates and tunes the vector collection.
type StoreConfig struct {
	Path         string `yaml:"path" json:"path"`
	Metric       string `yaml:"metric" json:"metric"`
	HNSWM        int    `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfSearch int    `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`
}

// ChunkConfig is the passage window, in characters.
type ChunkConfig struct {
	Size    int `yaml:"size" json:"size"`
	Overlap int `yaml:"overlap" json:"overlap"`
}

// IndexConfig selects files for directory indexing.
type IndexConfig struct {
	Extensions  []string `yaml:"extensions" json:"extensions"`
	ExcludeDirs []string `yaml:"exclude_dirs" json:"exclude_dirs"`
	IgnoreFiles []string `yaml:"ignore_files" json:"ignore_files"`
}

// ParseConfig enables document formats.
type ParseConfig struct {
	PDF         bool  `yaml:"pdf" json:"pdf"`
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`
}

// EmbeddingsConfig selects the embedding backend.
type EmbeddingsConfig struct {
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Cache      bool          `yaml:"cache" json:"cache"`
	CacheSize  int           `yaml:"cache_size" json:"cache_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// SearchConfig holds query defaults. The HTTP and MCP surfaces default to
// Threshold; the CLI defaults to CLIThreshold.
type SearchConfig struct {
	TopK         int     `yaml:"top_k" json:"top_k"`
	Threshold    float64 `yaml:"threshold" json:"threshold"`
	CLIThreshold float64 `yaml:"cli_threshold" json:"cli_threshold"`
}

// ServerConfig configures `semsearch serve`.
type ServerConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Store: StoreConfig{
			Path:         ".db",
			Metric:       "cosine",
			HNSWM:        16,
			HNSWEfSearch: 64,
		},
		Chunk: ChunkConfig{
			Size:    512,
			Overlap: 100,
		},
		Index: IndexConfig{
			Extensions:  []string{".md", ".txt", ".pdf"},
			ExcludeDirs: []string{},
			IgnoreFiles: []string{},
		},
		Parse: ParseConfig{
			PDF:         true,
			MaxFileSize: 50 * 1024 * 1024,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "all-minilm",
			OllamaHost: "http://localhost:11434",
			BatchSize:  32,
			Cache:      true,
			CacheSize:  1000,
			Timeout:    60 * time.Second,
		},
		Search: SearchConfig{
			TopK:         5,
			Threshold:    0.0,
			CLIThreshold: 0.1,
		},
		Server: ServerConfig{
			Addr:     ":8000",
			LogLevel: "info",
		},
	}
}

// GetUserConfigPath returns the user configuration file path, following
// the XDG base directory convention.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "semsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "semsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "semsearch", "config.yaml")
}

// Load builds the configuration for a run from dir. When file is not
// empty it is used instead of the project config in dir and must exist.
func Load(dir, file string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	if file != "" {
		if !fileExists(file) {
			return nil, errors.New(errors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file not found: %s", file), nil).
				WithSuggestion("run 'semsearch config init' to create one")
		}
		if err := cfg.loadYAML(file); err != nil {
			return nil, err
		}
	} else if path := FindProjectConfig(dir); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	env, err := newEnvSource(filepath.Join(dir, ".env"))
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindProjectConfig returns the project config path in dir, or "".
func FindProjectConfig(dir string) string {
	for _, name := range ProjectConfigNames {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// loadYAML overlays the keys present in path onto c. Absent keys keep
// their current value.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.ConfigError(fmt.Sprintf(format, args...), nil)
	}

	if strings.TrimSpace(c.Store.Path) == "" {
		return invalid("store.path must not be empty")
	}
	switch strings.ToLower(c.Store.Metric) {
	case "cosine", "cos", "l2", "euclidean":
	default:
		return invalid("store.metric must be 'cosine' or 'l2', got %q", c.Store.Metric)
	}
	if c.Store.HNSWM < 2 {
		return invalid("store.hnsw_m must be at least 2, got %d", c.Store.HNSWM)
	}
	if c.Store.HNSWEfSearch < 1 {
		return invalid("store.hnsw_ef_search must be positive, got %d", c.Store.HNSWEfSearch)
	}

	if c.Chunk.Size <= 0 {
		return invalid("chunk.size must be positive, got %d", c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return invalid("chunk.overlap must be in [0, %d), got %d", c.Chunk.Size, c.Chunk.Overlap)
	}

	for _, pattern := range c.Index.ExcludeDirs {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return invalid("index.exclude_dirs has an invalid pattern %q", pattern)
		}
	}

	if c.Parse.MaxFileSize <= 0 {
		return invalid("parse.max_file_size must be positive, got %d", c.Parse.MaxFileSize)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "static", "ollama":
	default:
		return invalid("embeddings.provider must be 'static' or 'ollama', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize <= 0 {
		return invalid("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.CacheSize < 0 {
		return invalid("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}
	if c.Embeddings.Timeout < 0 {
		return invalid("embeddings.timeout must be non-negative, got %s", c.Embeddings.Timeout)
	}

	if c.Search.TopK < 0 {
		return invalid("search.top_k must be non-negative, got %d", c.Search.TopK)
	}
	for name, v := range map[string]float64{
		"search.threshold":     c.Search.Threshold,
		"search.cli_threshold": c.Search.CLIThreshold,
	} {
		if v < -1 || v > 1 {
			return invalid("%s must be between -1 and 1, got %g", name, v)
		}
	}

	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("server.log_level must be 'debug', 'info', 'warn', or 'error', got %q", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to path, creating parent directories.
func (c *Config) WriteYAML(path string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
