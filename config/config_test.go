package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "querysafe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/querysafe
ai:
  embedding_model: text-embedding-3-small
ingestion:
  chunk_size: 500
  retry_delay: 250ms
chat:
  top_k: 3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/querysafe", cfg.DataDir)
	assert.Equal(t, "text-embedding-3-small", cfg.AI.EmbeddingModel)
	assert.Equal(t, 500, cfg.Ingestion.ChunkSize)
	assert.Equal(t, Duration(250*time.Millisecond), cfg.Ingestion.RetryDelay)
	assert.Equal(t, 3, cfg.Chat.TopK)

	// Untouched keys keep their defaults.
	assert.Equal(t, Default().AI.GenerationModel, cfg.AI.GenerationModel)
	assert.Equal(t, Default().Ingestion.ChunkOverlap, cfg.Ingestion.ChunkOverlap)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "querysafe.yaml")
	cfg := Default()
	cfg.Listen = "127.0.0.1:9000"
	cfg.Ingestion.RetryDelay = Duration(1500 * time.Millisecond)

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"QUERYSAFE_DATA_DIR":        "/data",
		"QUERYSAFE_API_TOKEN":       "secret",
		"QUERYSAFE_CHUNK_SIZE":      "800",
		"QUERYSAFE_RETRY_DELAY":     "2s",
		"QUERYSAFE_HISTORY_WINDOW":  "7",
		"UNRELATED_EMBEDDING_MODEL": "ignored",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/data", cfg.DataDir)
	assert.Equal(t, "secret", cfg.AI.APIToken)
	assert.Equal(t, 800, cfg.Ingestion.ChunkSize)
	assert.Equal(t, Duration(2*time.Second), cfg.Ingestion.RetryDelay)
	assert.Equal(t, 7, cfg.Chat.HistoryWindow)
	assert.Equal(t, Default().AI.EmbeddingModel, cfg.AI.EmbeddingModel)
}

func TestApplyEnv_InvalidNumbers(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"QUERYSAFE_TOP_K":       "many",
		"QUERYSAFE_RETRY_DELAY": "soon",
		"QUERYSAFE_LISTEN":      ":9999",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUERYSAFE_TOP_K")
	assert.Contains(t, err.Error(), "QUERYSAFE_RETRY_DELAY")
	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, Default().Chat.TopK, cfg.Chat.TopK)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("QUERYSAFE_TEST_DOTENV=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("QUERYSAFE_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("QUERYSAFE_TEST_DOTENV"))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Ingestion.ChunkOverlap = cfg.Ingestion.ChunkSize
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.DataDir = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.AI.EmbeddingModel = ""
	assert.Error(t, cfg.Validate())
}

func TestAIConfig(t *testing.T) {
	cfg := Default()
	cfg.AI.EmbeddingHost = "http://models:11434"
	cfg.AI.CaptionModel = ""

	aiCfg := cfg.AIConfig()
	require.NoError(t, aiCfg.Validate())
	assert.Equal(t, "http://models:11434/v1", aiCfg.EmbeddingHost)
	assert.Equal(t, cfg.AI.GenerationModel, aiCfg.CaptionModel)
}

func TestLoad_AllowedOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, Default().AllowedOrigins)

	path := filepath.Join(t.TempDir(), "querysafe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
allowed_origins:
  - https://shop.example.com
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example.com"}, cfg.AllowedOrigins)
}
