// Package queue provides the durable task queue the ingestion pipeline runs
// on. Producers push JSON-encoded tasks; the worker blocks on Pop. Delivery
// is at-least-once: a message popped by a worker that crashes mid-processing
// is simply re-produced upstream, and idempotent upserts make the replay
// harmless.
package queue

import "context"

// TaskQueue is the interface between producers, the ingestion worker, and the
// underlying broker. Implementations must be safe to call from multiple
// goroutines.
type TaskQueue interface {
	// Pop blocks until the next raw message is available or ctx is done.
	// Each message is delivered to exactly one caller per delivery attempt.
	Pop(ctx context.Context) ([]byte, error)

	// Push appends a raw message to the queue.
	Push(ctx context.Context, message []byte) error

	// Ping verifies the broker is reachable.
	Ping(ctx context.Context) error

	// Close releases the broker connection.
	Close() error
}
