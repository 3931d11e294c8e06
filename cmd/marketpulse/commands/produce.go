package commands

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/onslaught7/market-pulse-engine/internal/logging"
	"github.com/onslaught7/market-pulse-engine/internal/producer"
)

// NewProduceCmd constructs the `marketpulse produce` command, which polls
// financial news feeds and enqueues ingestion tasks.
func NewProduceCmd() *cobra.Command {
	var interval time.Duration
	var maxItems int

	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Poll financial news feeds into the ingestion queue",
		Long: `Poll financial news RSS feeds and enqueue ingestion tasks.

Each fresh item becomes one task on the Redis queue consumed by the
worker. Document IDs are derived from the article link, so re-polling
the same story is harmless.

Examples:
  marketpulse produce
  marketpulse produce --interval 5m --max-items 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New("producer")
			ctx = logging.WithLogger(ctx, log)

			taskQueue, err := buildTaskQueue(ctx)
			if err != nil {
				return fmt.Errorf("produce: failed to connect to queue: %w", err)
			}
			defer taskQueue.Close()

			p, err := producer.New(taskQueue, &producer.Config{
				PollInterval:    interval,
				MaxItemsPerFeed: maxItems,
				Logger:          log,
			})
			if err != nil {
				return fmt.Errorf("produce: %w", err)
			}

			return p.Run(ctx)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "Time between feed polls")
	cmd.Flags().IntVar(&maxItems, "max-items", 3, "Newest items taken per feed per poll")

	return cmd
}
