// Package config provides environment-based configuration for the recall
// service and its clients.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration. Every field is optional and has a
// working default for a local Qdrant + Ollama setup.
type Config struct {
	QdrantHost     string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort     int    `envconfig:"QDRANT_PORT" default:"6333"`
	CollectionName string `envconfig:"COLLECTION_NAME" default:"memories"`

	OllamaBaseURL   string `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	EmbedModel      string `envconfig:"EMBED_MODEL" default:"nomic-embed-text"`
	OllamaEmbedPath string `envconfig:"OLLAMA_EMBED_PATH" default:"/api/embed"`

	APIHost      string `envconfig:"API_HOST" default:"127.0.0.1"`
	APIPort      int    `envconfig:"API_PORT" default:"8100"`
	APIAuthToken string `envconfig:"API_AUTH_TOKEN"`

	MaxTextLength       int     `envconfig:"MAX_TEXT_LENGTH" default:"8000"`
	MaxBatchSize        int     `envconfig:"MAX_BATCH_SIZE" default:"100"`
	HealthCheckTimeoutS float64 `envconfig:"HEALTH_CHECK_TIMEOUT_S" default:"5.0"`

	// RedisAddr enables the shared embedding cache when set (host:port).
	RedisAddr string `envconfig:"REDIS_ADDR"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// EnvFile returns the env file consulted before the environment itself:
// RECALL_ENV_FILE if set, otherwise ~/.recall/.env.
func EnvFile() string {
	if path := os.Getenv("RECALL_ENV_FILE"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".recall", ".env")
}

// Load reads configuration from the env file (if present) and the process
// environment. Variables already set in the environment win over the file.
func Load() (Config, error) {
	if path := EnvFile(); path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return Config{}, err
			}
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// HealthCheckTimeout returns HEALTH_CHECK_TIMEOUT_S as a duration.
func (c Config) HealthCheckTimeout() time.Duration {
	return time.Duration(c.HealthCheckTimeoutS * float64(time.Second))
}
