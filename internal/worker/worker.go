// Package worker implements the asynchronous ingestion worker: a single
// blocking consume-validate-embed-upsert loop that drains the task queue into
// the wire collection of the vector store.
//
// The loop provides at-least-once delivery with idempotent application.
// There is no transaction spanning the queue pop and the store write; a crash
// between the two re-delivers the task, and the upsert keyed by document_id
// makes the replay converge to the same final state. Horizontal scaling is a
// matter of running more worker processes against the same queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onslaught7/market-pulse-engine/internal/queue"
	"github.com/onslaught7/market-pulse-engine/internal/rag"
)

// defaultDequeueBackoff is the pause after a failed blocking dequeue, so a
// down broker produces a slow retry loop instead of a tight crash cycle.
const defaultDequeueBackoff = 2 * time.Second

// Config holds the worker configuration.
type Config struct {
	// Collection is the vector-store collection tasks are indexed into.
	Collection string

	// VectorSize is the embedding dimensionality the collection is created with.
	VectorSize uint64

	// DequeueBackoff overrides the pause after a failed dequeue. Defaults to 2s.
	DequeueBackoff time.Duration

	// Logger is the structured logger. Defaults to slog.Default.
	Logger *slog.Logger

	// MetricsRegistry receives the worker's Prometheus metrics.
	// Defaults to prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
}

// Worker drains the task queue into the vector store. Construct with New and
// drive with Run; the zero value is not usable.
type Worker struct {
	// queue is the task source.
	queue queue.TaskQueue
	// embedder converts task content into vectors.
	embedder rag.Embedder
	// store receives the indexed points.
	store rag.VectorStore
	// collection is the target collection name.
	collection string
	// backoff is the pause after a failed dequeue.
	backoff time.Duration
	// log is the structured logger for this worker instance.
	log *slog.Logger
	// metrics holds the worker's Prometheus instruments.
	metrics *workerMetrics
}

// New constructs a Worker and performs the startup contract: both
// dependencies must answer a ping, and the target collection must exist with
// the expected vector size. Any failure here is fatal — the caller must not
// start the loop without its dependencies.
func New(ctx context.Context, q queue.TaskQueue, embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Worker, error) {
	if q == nil {
		return nil, fmt.Errorf("worker: queue must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("worker: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("worker: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("worker: collection must not be empty")
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("worker: vector size must not be zero")
	}
	if cfg.DequeueBackoff <= 0 {
		cfg.DequeueBackoff = defaultDequeueBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}

	if err := q.Ping(ctx); err != nil {
		return nil, fmt.Errorf("worker: task queue unreachable: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("worker: vector store unreachable: %w", err)
	}
	if err := store.EnsureCollection(ctx, cfg.Collection, cfg.VectorSize); err != nil {
		return nil, fmt.Errorf("worker: ensure collection: %w", err)
	}

	return &Worker{
		queue:      q,
		embedder:   embedder,
		store:      store,
		collection: cfg.Collection,
		backoff:    cfg.DequeueBackoff,
		log:        cfg.Logger,
		metrics:    newWorkerMetrics(cfg.MetricsRegistry),
	}, nil
}

// Run executes the consumption loop until ctx is cancelled. No single task's
// failure terminates the loop: poison messages are discarded, provider and
// store failures are logged and isolated to the task that hit them.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker: consuming", slog.String("collection", w.collection))

	for {
		raw, err := w.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				w.log.Info("worker: shutting down")
				return nil
			}
			// Broker connectivity error on the blocking dequeue. Pause
			// before retrying rather than spinning against a down broker.
			w.metrics.dequeueErrorsTotal.Inc()
			w.log.Error("worker: dequeue failed, backing off",
				slog.Duration("backoff", w.backoff),
				slog.Any("error", err),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.backoff):
			}
			continue
		}

		outcome := w.process(ctx, raw)
		w.metrics.tasksTotal.WithLabelValues(outcome).Inc()
	}
}

// process runs one task through the decode → validate → embed → upsert stages
// and returns the outcome label. Every failure path logs and returns; none of
// them may propagate out of the loop.
func (w *Worker) process(ctx context.Context, raw []byte) string {
	log := w.log
	start := time.Now()

	task, err := decodeTask(raw)
	if err != nil {
		// Poison message: discard without side effects.
		log.Warn("worker: discarding poison task", slog.Any("error", err))
		if errors.Is(err, errUndecodable) {
			return outcomeDecodeError
		}
		return outcomeInvalid
	}

	vectors, err := w.embedder.Embed(ctx, []string{task.Content})
	if err != nil || len(vectors) == 0 {
		if err == nil {
			err = fmt.Errorf("embedder returned no vectors")
		}
		log.Error("worker: embedding failed",
			slog.String("document_id", task.DocumentID),
			slog.Any("error", err),
		)
		return outcomeEmbedError
	}

	point := rag.Point{
		ID:      task.DocumentID,
		Vector:  vectors[0],
		Payload: task.payload(),
	}
	if err := w.store.Upsert(ctx, w.collection, point); err != nil {
		log.Error("worker: upsert failed",
			slog.String("document_id", task.DocumentID),
			slog.Any("error", err),
		)
		return outcomeUpsertError
	}

	elapsed := time.Since(start)
	w.metrics.taskDurationSeconds.Observe(elapsed.Seconds())
	log.Info("worker: indexed",
		slog.String("document_id", task.DocumentID),
		slog.String("source", sourceOf(task)),
		slog.Duration("elapsed", elapsed),
	)
	return outcomeOK
}

// sourceOf returns the task's "source" metadata value for log attribution,
// or "unknown" when absent.
func sourceOf(t *Task) string {
	if s, ok := t.Metadata["source"].(string); ok && s != "" {
		return s
	}
	return "unknown"
}
