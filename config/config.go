// Package config loads the querysafe process configuration from a YAML
// file, an optional .env file and QUERYSAFE_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/querysafe/ai"
	"github.com/poiesic/querysafe/answer"
	"github.com/poiesic/querysafe/chunker"
	"github.com/poiesic/querysafe/ingestion"
	"github.com/poiesic/querysafe/retrieval"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "QUERYSAFE_"

// AIConfig configures the OpenAI-compatible model services.
type AIConfig struct {
	EmbeddingHost   string `yaml:"embedding_host"`
	GenerationHost  string `yaml:"generation_host"`
	APIToken        string `yaml:"api_token"`
	EmbeddingModel  string `yaml:"embedding_model"`
	GenerationModel string `yaml:"generation_model"`
	CaptionModel    string `yaml:"caption_model"`
	MaxInputChars   int    `yaml:"max_input_chars"`
}

// IngestionConfig configures the ingestion pipeline.
type IngestionConfig struct {
	ChunkSize    int           `yaml:"chunk_size"`
	ChunkOverlap int           `yaml:"chunk_overlap"`
	BatchSize    int           `yaml:"batch_size"`
	PoolSize     int           `yaml:"pool_size"`
	RunPoolSize  int           `yaml:"run_pool_size"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryDelay   Duration      `yaml:"retry_delay"`
}

// ChatConfig configures query answering.
type ChatConfig struct {
	TopK          int `yaml:"top_k"`
	HistoryWindow int `yaml:"history_window"`
}

// Duration is a time.Duration kept as a string such as "500ms" in YAML.
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the root configuration.
type Config struct {
	// DataDir holds the database, uploaded blobs and index artifacts.
	DataDir  string `yaml:"data_dir"`
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`
	// AllowedOrigins lists the browser origins allowed to call the chat
	// endpoint.
	AllowedOrigins []string        `yaml:"allowed_origins"`
	AI             AIConfig        `yaml:"ai"`
	Ingestion      IngestionConfig `yaml:"ingestion"`
	Chat           ChatConfig      `yaml:"chat"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		DataDir:        "querysafe-data",
		Listen:         ":8080",
		LogLevel:       "info",
		AllowedOrigins: []string{"*"},
		AI: AIConfig{
			EmbeddingHost:   aiDefaults.EmbeddingHost,
			GenerationHost:  aiDefaults.GenerationHost,
			APIToken:        aiDefaults.APIToken,
			EmbeddingModel:  aiDefaults.EmbeddingModel,
			GenerationModel: aiDefaults.GenerationModel,
			CaptionModel:    aiDefaults.CaptionModel,
			MaxInputChars:   aiDefaults.MaxInputChars,
		},
		Ingestion: IngestionConfig{
			ChunkSize:    chunker.DefaultChunkSize,
			ChunkOverlap: chunker.DefaultChunkOverlap,
			BatchSize:    ingestion.DefaultBatchSize,
			MaxAttempts:  ingestion.DefaultMaxAttempts,
			RetryDelay:   Duration(ingestion.DefaultBaseDelay),
		},
		Chat: ChatConfig{
			TopK:          retrieval.DefaultK,
			HistoryWindow: answer.DefaultHistoryWindow,
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables already set. Missing files are
// ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with QUERYSAFE_* variables found by lookup.
// Pass os.LookupEnv to read the process environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATA_DIR":         &c.DataDir,
		"LISTEN":           &c.Listen,
		"LOG_LEVEL":        &c.LogLevel,
		"EMBEDDING_HOST":   &c.AI.EmbeddingHost,
		"GENERATION_HOST":  &c.AI.GenerationHost,
		"API_TOKEN":        &c.AI.APIToken,
		"EMBEDDING_MODEL":  &c.AI.EmbeddingModel,
		"GENERATION_MODEL": &c.AI.GenerationModel,
		"CAPTION_MODEL":    &c.AI.CaptionModel,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_INPUT_CHARS": &c.AI.MaxInputChars,
		"CHUNK_SIZE":      &c.Ingestion.ChunkSize,
		"CHUNK_OVERLAP":   &c.Ingestion.ChunkOverlap,
		"BATCH_SIZE":      &c.Ingestion.BatchSize,
		"POOL_SIZE":       &c.Ingestion.PoolSize,
		"RUN_POOL_SIZE":   &c.Ingestion.RunPoolSize,
		"MAX_ATTEMPTS":    &c.Ingestion.MaxAttempts,
		"TOP_K":           &c.Chat.TopK,
		"HISTORY_WINDOW":  &c.Chat.HistoryWindow,
	}
	var errs []error
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			continue
		}
		*dst = n
	}

	if v, ok := lookup(EnvPrefix + "RETRY_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRETRY_DELAY: %w", EnvPrefix, err))
		} else {
			c.Ingestion.RetryDelay = Duration(d)
		}
	}
	return errors.Join(errs...)
}

// Validate checks values that the components would otherwise reject later.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if c.Ingestion.ChunkSize < 1 || c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("config: chunk_overlap (%d) must be below chunk_size (%d)", c.Ingestion.ChunkOverlap, c.Ingestion.ChunkSize)
	}
	if c.Ingestion.BatchSize < 1 {
		return errors.New("config: batch_size must be positive")
	}
	if c.Ingestion.MaxAttempts < 1 {
		return errors.New("config: max_attempts must be positive")
	}
	if c.Chat.TopK < 1 {
		return errors.New("config: top_k must be positive")
	}
	return c.AIConfig().Validate()
}

// AIConfig converts the model section into an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithGenerationHost(c.AI.GenerationHost),
		ai.WithAPIToken(c.AI.APIToken),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGenerationModel(c.AI.GenerationModel),
		ai.WithCaptionModel(c.AI.CaptionModel),
		ai.WithMaxInputChars(c.AI.MaxInputChars),
	)
}
