package server

import (
	"context"
	"fmt"

	"github.com/onslaught7/market-pulse-engine/internal/queue"
	"github.com/onslaught7/market-pulse-engine/internal/rag"
)

// StorePinger probes the vector store backing both corpus collections.
// It satisfies the Pinger interface and is used by GET /api/ready.
type StorePinger struct {
	// store is the vector store to probe.
	store rag.VectorStore
}

// NewStorePinger constructs a StorePinger for the given vector store.
func NewStorePinger(store rag.VectorStore) *StorePinger {
	return &StorePinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "qdrant" }

// Ping checks whether the vector store is reachable.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// QueuePinger probes the ingestion task queue.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QueuePinger struct {
	// queue is the task queue to probe.
	queue queue.TaskQueue
}

// NewQueuePinger constructs a QueuePinger for the given task queue.
func NewQueuePinger(q queue.TaskQueue) *QueuePinger {
	return &QueuePinger{queue: q}
}

// Name returns the dependency label used in readiness responses.
func (p *QueuePinger) Name() string { return "redis" }

// Ping checks whether the queue is reachable.
func (p *QueuePinger) Ping(ctx context.Context) error {
	if err := p.queue.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
