// Package rag defines the interfaces for the retrieval side of the engine:
// vector storage and text embedding. Concrete implementations (Qdrant,
// OpenAI) satisfy these interfaces so the worker and the query service never
// depend on a specific backend and tests can substitute stubs.
package rag

import (
	"context"
)

// Point is a single record written to the vector store. The ID doubles as
// the idempotency key: upserting the same ID replaces the previous vector
// and payload wholesale.
type Point struct {
	// ID is the caller-assigned point identifier (a UUID string).
	ID string

	// Vector is the embedding of the point's content.
	Vector []float32

	// Payload is the arbitrary metadata stored alongside the vector.
	// By convention the original text lives under the "page_content" key.
	Payload map[string]any
}

// ScoredPoint is a search hit: a stored point plus its similarity score.
type ScoredPoint struct {
	// ID is the point identifier.
	ID string

	// Score is the cosine similarity assigned during retrieval.
	Score float32

	// Payload is the metadata stored with the point.
	Payload map[string]any
}

// Content returns the "page_content" payload field, or the empty string when
// the field is absent or not a string. A missing field is never an error —
// the hit simply contributes nothing to the context block.
func (p ScoredPoint) Content() string {
	if v, ok := p.Payload["page_content"].(string); ok {
		return v
	}
	return ""
}

// VectorStore is the interface for persisting and searching embeddings across
// named collections. Implementations must be safe to call from multiple
// goroutines.
type VectorStore interface {
	// EnsureCollection creates the named collection with the given vector
	// size and cosine distance if it does not already exist. It is a no-op
	// when the collection is present, so concurrent workers may race on it
	// benignly.
	EnsureCollection(ctx context.Context, collection string, vectorSize uint64) error

	// Upsert inserts or replaces a single point in the named collection.
	Upsert(ctx context.Context, collection string, point Point) error

	// Search returns the topK nearest points to queryVector in the named
	// collection, best match first, with payloads attached.
	Search(ctx context.Context, collection string, queryVector []float32, topK int) ([]ScoredPoint, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
