package commands

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/onslaught7/market-pulse-engine/internal/config"
	"github.com/onslaught7/market-pulse-engine/internal/embedder"
	"github.com/onslaught7/market-pulse-engine/internal/logging"
	"github.com/onslaught7/market-pulse-engine/internal/worker"
)

// NewWorkCmd constructs the `marketpulse work` command, which runs the
// ingestion worker consuming the task queue.
func NewWorkCmd() *cobra.Command {
	var metricsPort int

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run the ingestion worker",
		Long: `Run the ingestion worker.

The worker blocks on the Redis ingestion queue, validates each task,
embeds its content, and upserts the result into the live news ("wire")
collection of the vector store. Indexing is idempotent: re-delivering a
task overwrites the same point instead of duplicating it.

Examples:
  marketpulse work
  marketpulse work --metrics-port 9091
  REDIS_HOST=redis.internal marketpulse work`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New("worker")
			ctx = logging.WithLogger(ctx, log)

			if err := config.RequireCredential(); err != nil {
				return err
			}

			taskQueue, err := buildTaskQueue(ctx)
			if err != nil {
				return fmt.Errorf("work: failed to connect to queue: %w", err)
			}
			defer taskQueue.Close()

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("work: failed to initialise embedder: %w", err)
			}

			vectorStore, err := buildVectorStore(ctx)
			if err != nil {
				return fmt.Errorf("work: failed to connect to vector store: %w", err)
			}
			defer vectorStore.Close()

			_, wire := collectionNames()
			registry := prometheus.NewRegistry()

			w, err := worker.New(ctx, taskQueue, emb, vectorStore, &worker.Config{
				Collection:      wire,
				VectorSize:      embedder.Dimensions(),
				Logger:          log,
				MetricsRegistry: registry,
			})
			if err != nil {
				return fmt.Errorf("work: %w", err)
			}

			if metricsPort > 0 {
				startMetricsListener(log, registry, metricsPort)
			}

			return w.Run(ctx)
		},
	}

	cmd.Flags().IntVar(&metricsPort, "metrics-port", 9090, "Port for the Prometheus metrics listener (0 disables)")

	return cmd
}

// startMetricsListener serves GET /metrics on its own port in a background
// goroutine. The listener dies with the process; worker shutdown does not
// wait for in-flight scrapes.
func startMetricsListener(log *slog.Logger, registry *prometheus.Registry, port int) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("metrics listener starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics listener failed", slog.Any("error", err))
		}
	}()
}
