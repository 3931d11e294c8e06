package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onslaught7/market-pulse-engine/internal/analyst"
	"github.com/onslaught7/market-pulse-engine/internal/queue"
	"github.com/onslaught7/market-pulse-engine/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 0.0.0.0).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// WebSocket connections are exempt once hijacked.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on /api/query and /api/ingest.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives all server metrics. If nil a private registry
	// is created; GET /metrics serves whatever registry ends up in use.
	MetricsRegistry *prometheus.Registry
}

// asker is the interface the query handlers call to run the pipeline.
// *analyst.Engine satisfies it; tests inject a fake.
type asker interface {
	// Ask answers question synchronously.
	Ask(ctx context.Context, question string) (*analyst.Answer, error)
	// AskStream answers question, delivering tokens through onToken as the
	// model produces them.
	AskStream(ctx context.Context, question string, onToken func(token string) error) (*analyst.Answer, error)
}

// Server is the HTTP server that fronts the MarketPulse query pipeline.
type Server struct {
	// engine runs embed -> search -> synthesize for every question.
	engine asker
	// queue receives ingestion tasks submitted via POST /api/ingest.
	// May be nil, in which case /api/ingest returns 503.
	queue queue.TaskQueue
	// history is the query log backing /api/history and /api/analytics.
	// May be nil, in which case those endpoints return 503.
	history store.QueryStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds all Prometheus instruments owned by this server.
	metrics *serverMetrics
	// registry is the Prometheus registry served by GET /metrics.
	registry *prometheus.Registry
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query and for WebSocket turns.
type queryRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// UserID identifies the requester. Accepted but not persisted.
	UserID string `json:"user_id,omitempty"`
}

// ingestRequest is the JSON body for POST /api/ingest. It mirrors the task
// shape consumed by the ingestion worker.
type ingestRequest struct {
	// UserID identifies the submitter.
	UserID string `json:"user_id" validate:"required"`
	// DocumentID is the stable identity of the document.
	DocumentID string `json:"document_id" validate:"required"`
	// Content is the text to embed and index.
	Content string `json:"content" validate:"required"`
	// Metadata is carried into the indexed point's payload.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// errorResponse is the JSON error body used by all API endpoints.
type errorResponse struct {
	// Detail is a human-readable description of the failure.
	Detail string `json:"detail"`
}

// ingestResponse is the JSON body for a successful POST /api/ingest.
type ingestResponse struct {
	// Status is always "queued".
	Status string `json:"status"`
	// DocumentID echoes the submitted document identity.
	DocumentID string `json:"document_id"`
}
