package embedder

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/onslaught7/market-pulse-engine/internal/rag"
)

// Dimensions returns the embedding vector size the corpus collections must be
// created with. EMBEDDING_DIMENSIONS takes precedence when set; otherwise the
// text-embedding-3-small default applies. The worker passes this to
// EnsureCollection so store and embedder can never disagree silently.
func Dimensions() uint64 {
	if v := os.Getenv("EMBEDDING_DIMENSIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return uint64(i)
		}
	}
	return DefaultDimensions
}

// NewFromEnv constructs a rag.Embedder from environment variables.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER — "openai" (default) or "azure"
//  2. EMBEDDING_API_KEY — overrides the provider credential
//     (OPENAI_API_KEY / AZURE_OPENAI_API_KEY)
//  3. EMBEDDING_MODEL — overrides text-embedding-3-small
//  4. EMBEDDING_ENDPOINT — overrides the default endpoint
//  5. EMBEDDING_DIMENSIONS — overrides the default vector size (1536)
func NewFromEnv() (rag.Embedder, error) {
	backend := strings.ToLower(os.Getenv("EMBEDDING_PROVIDER"))
	if backend == "" {
		backend = "openai"
	}

	dims := int(Dimensions())
	model := getEnvOrDefault("EMBEDDING_MODEL", DefaultModel)

	switch backend {
	case "openai":
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return New(&Config{
			BaseURL:    os.Getenv("EMBEDDING_ENDPOINT"),
			APIKey:     apiKey,
			Model:      model,
			Dimensions: dims,
		}), nil

	case "azure":
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := os.Getenv("EMBEDDING_ENDPOINT")
		if endpoint == "" {
			endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		apiVersion := getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")
		return New(&Config{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      model,
			Dimensions: dims,
			Azure:      true,
			APIVersion: apiVersion,
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid values: openai, azure)", backend)
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
