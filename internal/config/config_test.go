package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: openai
  name: gpt-4o-mini
  max_tokens: 1024
  temperature: 0.2
embedding:
  model: text-embedding-3-small
  dimensions: 1536
qdrant:
  host: qdrant.internal
  port: 6334
redis:
  host: redis.internal
  port: 6379
  queue: ingestion_queue
collections:
  wisdom: wisdom
  wire: wire
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"MODEL_PROVIDER", "MODEL_NAME", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE",
		"EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS",
		"QDRANT_HOST", "QDRANT_PORT",
		"REDIS_HOST", "REDIS_PORT", "INGESTION_QUEUE",
		"COLLECTION_WISDOM", "COLLECTION_WIRE",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":       "openai",
		"MODEL_NAME":           "gpt-4o-mini",
		"MODEL_MAX_TOKENS":     "1024",
		"EMBEDDING_MODEL":      "text-embedding-3-small",
		"EMBEDDING_DIMENSIONS": "1536",
		"QDRANT_HOST":          "qdrant.internal",
		"QDRANT_PORT":          "6334",
		"REDIS_HOST":           "redis.internal",
		"REDIS_PORT":           "6379",
		"INGESTION_QUEUE":      "ingestion_queue",
		"COLLECTION_WISDOM":    "wisdom",
		"COLLECTION_WIRE":      "wire",
		"LOG_LEVEL":            "debug",
		"LOG_FORMAT":           "text",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvAlwaysWins(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
redis:
  host: yaml-redis
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("REDIS_HOST", "env-redis")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := os.Getenv("REDIS_HOST"); got != "env-redis" {
		t.Errorf("env var overridden by YAML: got %q", got)
	}
}

func TestRequireCredential(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")
	t.Setenv("EMBEDDING_API_KEY", "")
	os.Unsetenv("EMBEDDING_API_KEY")

	if err := RequireCredential(); err == nil {
		t.Fatal("expected error when no credential is set")
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	if err := RequireCredential(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
