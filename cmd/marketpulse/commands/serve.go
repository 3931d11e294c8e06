package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/onslaught7/market-pulse-engine/internal/analyst"
	"github.com/onslaught7/market-pulse-engine/internal/config"
	"github.com/onslaught7/market-pulse-engine/internal/embedder"
	"github.com/onslaught7/market-pulse-engine/internal/logging"
	"github.com/onslaught7/market-pulse-engine/internal/provider"
	"github.com/onslaught7/market-pulse-engine/internal/server"
	"github.com/onslaught7/market-pulse-engine/internal/store"
)

// NewServeCmd constructs the `marketpulse serve` command, which starts the
// HTTP API server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MarketPulse HTTP API server",
		Long: `Start the MarketPulse HTTP API server.

The server answers financial questions over REST (POST /api/query) and a
streaming WebSocket (GET /ws), accepts documents for asynchronous indexing
(POST /api/ingest), and exposes health, history, analytics, and Prometheus
metrics endpoints.

Examples:
  marketpulse serve
  marketpulse serve --port 9000
  MODEL_PROVIDER=ollama marketpulse serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New("api")
			ctx = logging.WithLogger(ctx, log)

			if err := config.RequireCredential(); err != nil {
				return err
			}

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			synth, err := analyst.NewSynthesizer(chatModel)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// Vector store is a hard dependency: the server is useless
			// without retrieval, so an unreachable Qdrant fails startup.
			vectorStore, err := buildVectorStore(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to connect to vector store: %w", err)
			}
			defer vectorStore.Close()

			wisdom, wire := collectionNames()
			for _, collection := range []string{wisdom, wire} {
				if err := vectorStore.EnsureCollection(ctx, collection, embedder.Dimensions()); err != nil {
					return fmt.Errorf("serve: failed to ensure collection %s: %w", collection, err)
				}
			}

			engine, err := analyst.NewEngine(emb, vectorStore, synth, &analyst.Config{
				WisdomCollection: wisdom,
				WireCollection:   wire,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// The queue is only needed by POST /api/ingest; an unreachable
			// broker degrades that endpoint to 503 instead of killing the
			// query path.
			taskQueue, err := buildTaskQueue(ctx)
			if err != nil {
				log.Warn("ingestion queue unreachable; /api/ingest disabled", slog.Any("error", err))
				taskQueue = nil
			} else {
				defer taskQueue.Close()
			}

			// Open the query log. MARKETPULSE_HISTORY_DB overrides the
			// default path (~/.marketpulse/history.db). Set to "disabled"
			// to disable.
			var history store.QueryStore
			dbPath := os.Getenv("MARKETPULSE_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					qs, qsErr := store.Open(dbPath)
					if qsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", qsErr))
					} else {
						history = qs
						defer func() { _ = qs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via MARKETPULSE_HISTORY_DB=disabled")
			}

			pingers := []server.Pinger{server.NewStorePinger(vectorStore)}
			if taskQueue != nil {
				pingers = append(pingers, server.NewQueuePinger(taskQueue))
			}

			srv, err := server.New(engine, taskQueue, history, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("MARKETPULSE_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", envOrDefault("SERVER_HOST", "0.0.0.0"), "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", envInt("SERVER_PORT", 8000), "TCP port to listen on")

	return cmd
}
