package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance. Unlike a
// single-collection wrapper, every operation names its target collection so
// one client can serve both the wisdom and wire corpora.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client
}

// NewQdrantStore creates a QdrantStore and verifies the server is reachable.
// An unreachable store is a fatal construction error: callers must not start
// their serving or consuming loops against a dead dependency.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client}
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant: server unreachable at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return store, nil
}

// EnsureCollection creates the collection with cosine distance if it does not
// already exist. The existence check makes the call idempotent; a concurrent
// "already exists" failure from a racing worker is tolerated.
func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, vectorSize uint64) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		// Another worker may have created it between the check and the
		// create. Re-check before reporting failure.
		if again, checkErr := s.client.CollectionExists(ctx, collection); checkErr == nil && again {
			return nil
		}
		return fmt.Errorf("qdrant: failed to create collection %q: %w", collection, err)
	}

	return nil
}

// Upsert inserts or replaces a single point. The point ID must be a UUID
// string — Qdrant rejects arbitrary strings as point keys.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, point Point) error {
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(point.ID),
				Vectors: qdrant.NewVectors(point.Vector...),
				Payload: qdrant.NewValueMap(point.Payload),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert into %q failed: %w", collection, err)
	}

	return nil
}

// Search performs a cosine similarity search and returns the top-k results
// in descending score order with payloads attached.
func (s *QdrantStore) Search(ctx context.Context, collection string, queryVector []float32, topK int) ([]ScoredPoint, error) {
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search in %q failed: %w", collection, err)
	}

	points := make([]ScoredPoint, 0, len(results))
	for _, r := range results {
		point := ScoredPoint{
			ID:      r.Id.GetUuid(),
			Score:   r.Score,
			Payload: make(map[string]any, len(r.Payload)),
		}
		for k, v := range r.Payload {
			point.Payload[k] = nativeValue(v)
		}
		points = append(points, point)
	}

	return points, nil
}

// Ping calls the Qdrant HealthCheck RPC.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// nativeValue converts a Qdrant payload value to its Go counterpart.
// Payload metadata is scalar by contract; compound kinds degrade to their
// string representation rather than failing the search.
func nativeValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return v.String()
	}
}
