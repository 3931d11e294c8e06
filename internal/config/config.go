// Package config provides layered configuration for the marketpulse binary.
// Precedence is: defaults → .env file → YAML file → environment variables.
// Environment variables always win, so container deployments are unaffected
// by stray local files.
//
// File search order for the YAML config:
//  1. --config CLI flag (explicit path)
//  2. MARKETPULSE_CONFIG environment variable
//  3. ~/.marketpulse/config.yaml
//  4. ./marketpulse.yaml
//
// A .env file in the working directory is applied first via godotenv so the
// same file that feeds docker compose also feeds local `go run` sessions.
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the LLM chat model provider used for synthesis.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Redis configures the Redis task queue connection.
	Redis RedisConfig `yaml:"redis"`

	// Collections names the two corpus collections.
	Collections CollectionsConfig `yaml:"collections"`

	// Server configures the HTTP query API.
	Server ServerConfig `yaml:"server"`

	// History configures the query history store.
	History HistoryConfig `yaml:"history"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: openai, azure, ollama.
	Provider string `yaml:"provider"`
	// Name is the model name or deployment (e.g. "gpt-4o-mini").
	Name string `yaml:"name"`
	// APIKey is the provider credential. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url"`
	// MaxTokens caps the tokens generated per answer.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Model is the embedding model name (e.g. "text-embedding-3-small").
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// RedisConfig holds Redis task queue settings.
type RedisConfig struct {
	// Host is the Redis server hostname.
	Host string `yaml:"host"`
	// Port is the Redis TCP port.
	Port int `yaml:"port"`
	// Queue is the list key the ingestion worker consumes.
	Queue string `yaml:"queue"`
}

// CollectionsConfig names the two corpus collections.
type CollectionsConfig struct {
	// Wisdom is the curated background-knowledge collection.
	Wisdom string `yaml:"wisdom"`
	// Wire is the continuously ingested live-news collection.
	Wire string `yaml:"wire"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
}

// HistoryConfig holds query history settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_NAME", func(c *Config) string { return c.Model.Name }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.APIKey }},
	{"MODEL_BASE_URL", func(c *Config) string { return c.Model.BaseURL }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"REDIS_HOST", func(c *Config) string { return c.Redis.Host }},
	{"REDIS_PORT", func(c *Config) string { return intStr(c.Redis.Port) }},
	{"INGESTION_QUEUE", func(c *Config) string { return c.Redis.Queue }},
	{"COLLECTION_WISDOM", func(c *Config) string { return c.Collections.Wisdom }},
	{"COLLECTION_WIRE", func(c *Config) string { return c.Collections.Wire }},
	{"SERVER_HOST", func(c *Config) string { return c.Server.Host }},
	{"SERVER_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"MARKETPULSE_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
}

// Load applies the .env file (if present), then reads a YAML config file and
// applies non-empty values as environment variables. Existing env vars are
// never overwritten (env always wins).
// Returns the YAML path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	// godotenv.Load never overrides variables already present in the
	// environment, which preserves the precedence contract.
	if err := godotenv.Load(); err == nil {
		log.Debug("config: applied .env file")
	}

	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// RequireCredential returns an error unless OPENAI_API_KEY is set. Both the
// worker and the query API embed through OpenAI, so a missing credential is a
// fatal startup condition rather than a per-request surprise.
func RequireCredential() error {
	if os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("EMBEDDING_API_KEY") == "" {
		return fmt.Errorf("config: OPENAI_API_KEY is required (or EMBEDDING_API_KEY for a split credential)")
	}
	return nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("MARKETPULSE_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".marketpulse", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("marketpulse.yaml"); err == nil {
		return "marketpulse.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
