package commands

import (
	"context"
	"os"
	"strconv"

	"github.com/onslaught7/market-pulse-engine/internal/queue"
	"github.com/onslaught7/market-pulse-engine/internal/rag"
)

// envOrDefault returns the value of the environment variable key, or
// fallback when unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the integer value of the environment variable key, or
// fallback when unset or unparseable.
func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// buildTaskQueue connects to Redis using the REDIS_HOST, REDIS_PORT, and
// INGESTION_QUEUE environment variables. The connection is verified before
// returning.
func buildTaskQueue(ctx context.Context) (queue.TaskQueue, error) {
	q, err := queue.NewRedisQueue(ctx, &queue.RedisConfig{
		Host:  envOrDefault("REDIS_HOST", "localhost"),
		Port:  envInt("REDIS_PORT", 6379),
		Queue: envOrDefault("INGESTION_QUEUE", queue.DefaultQueue),
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// buildVectorStore connects to Qdrant using the QDRANT_* environment
// variables. The connection is verified before returning.
func buildVectorStore(ctx context.Context) (rag.VectorStore, error) {
	s, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:   envOrDefault("QDRANT_HOST", "localhost"),
		Port:   envInt("QDRANT_PORT", 6334),
		APIKey: os.Getenv("QDRANT_API_KEY"),
		UseTLS: os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// collectionNames resolves the two corpus collection names from the
// COLLECTION_WISDOM and COLLECTION_WIRE environment variables.
func collectionNames() (wisdom, wire string) {
	return envOrDefault("COLLECTION_WISDOM", "wisdom"),
		envOrDefault("COLLECTION_WIRE", "wire")
}
