package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultQueue is the Redis list key used when INGESTION_QUEUE is unset.
const DefaultQueue = "ingestion_queue"

// RedisConfig holds connection parameters for a Redis-backed task queue.
type RedisConfig struct {
	// Host is the Redis server hostname (default: localhost).
	Host string

	// Port is the Redis TCP port (default: 6379).
	Port int

	// Queue is the list key to consume from (default: "ingestion_queue").
	Queue string
}

// RedisQueue implements TaskQueue on a Redis list. Producers LPUSH and the
// worker BRPOPs, so the list behaves as a FIFO buffer between the two.
type RedisQueue struct {
	// client is the underlying Redis client.
	client *redis.Client

	// key is the list key to consume from.
	key string
}

// NewRedisQueue creates a RedisQueue and verifies the server is reachable.
// An unreachable broker is a fatal construction error, mirroring the vector
// store: the worker must not start its loop against a dead dependency.
func NewRedisQueue(ctx context.Context, cfg *RedisConfig) (*RedisQueue, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6379
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}

	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	})

	q := &RedisQueue{client: client, key: cfg.Queue}
	if err := q.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("queue: redis unreachable at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return q, nil
}

// Pop blocks on BRPOP until a message arrives or ctx is cancelled. The zero
// timeout means an indefinite server-side wait; go-redis aborts the blocked
// call when the context is done.
func (q *RedisQueue) Pop(ctx context.Context) ([]byte, error) {
	result, err := q.client.BRPop(ctx, 0, q.key).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: brpop %q: %w", q.key, err)
	}
	// BRPOP returns [key, value].
	if len(result) != 2 {
		return nil, fmt.Errorf("queue: brpop %q: unexpected reply of %d elements", q.key, len(result))
	}
	return []byte(result[1]), nil
}

// Push appends a raw message to the head of the list (LPUSH pairs with the
// worker's BRPOP to form a FIFO).
func (q *RedisQueue) Push(ctx context.Context, message []byte) error {
	if err := q.client.LPush(ctx, q.key, message).Err(); err != nil {
		return fmt.Errorf("queue: lpush %q: %w", q.key, err)
	}
	return nil
}

// Ping verifies the Redis server responds to PING.
func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("queue: ping failed: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
