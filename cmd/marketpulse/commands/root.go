// Package commands defines all Cobra CLI commands for the marketpulse binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/onslaught7/market-pulse-engine/internal/config"
	"github.com/onslaught7/market-pulse-engine/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "marketpulse",
		Short: "MarketPulse — retrieval-augmented financial question answering",
		Long: `MarketPulse answers financial questions by combining two corpora:
"wisdom" (curated historical knowledge) and "the wire" (live financial
news), retrieved from a vector store and synthesized by an LLM.

The binary runs three roles:

  serve    the HTTP API (query, streaming, ingest submission)
  work     the ingestion worker (queue -> embed -> index)
  produce  the RSS news poller feeding the ingestion queue

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.marketpulse/config.yaml).
See 'marketpulse --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New("cli")

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			log.Debug("command invoked",
				slog.String("command", cmd.Name()),
				slog.String("config", path),
			)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.marketpulse/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewWorkCmd(),
		NewProduceCmd(),
		NewVersionCmd(),
	)

	return root
}
