package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RECALL_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.QdrantHost)
	assert.Equal(t, 6333, cfg.QdrantPort)
	assert.Equal(t, "memories", cfg.CollectionName)
	assert.Equal(t, "http://localhost:11434", cfg.OllamaBaseURL)
	assert.Equal(t, "nomic-embed-text", cfg.EmbedModel)
	assert.Equal(t, "/api/embed", cfg.OllamaEmbedPath)
	assert.Equal(t, "127.0.0.1", cfg.APIHost)
	assert.Equal(t, 8100, cfg.APIPort)
	assert.Empty(t, cfg.APIAuthToken)
	assert.Equal(t, 8000, cfg.MaxTextLength)
	assert.Equal(t, 100, cfg.MaxBatchSize)
	assert.Equal(t, 5*time.Second, cfg.HealthCheckTimeout())
}

func TestLoadEnvFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"COLLECTION_NAME=from_file\nAPI_PORT=9000\n",
	), 0o600))

	t.Setenv("RECALL_ENV_FILE", envFile)
	t.Setenv("API_PORT", "9999") // environment wins over the file
	t.Cleanup(func() { os.Unsetenv("COLLECTION_NAME") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from_file", cfg.CollectionName)
	assert.Equal(t, 9999, cfg.APIPort)
}

func TestEnvFileOverride(t *testing.T) {
	t.Setenv("RECALL_ENV_FILE", "/tmp/custom.env")
	assert.Equal(t, "/tmp/custom.env", EnvFile())
}
