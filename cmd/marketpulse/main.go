// Command marketpulse is the entry point for the MarketPulse financial
// intelligence engine. It provides the API server, the ingestion worker,
// and the news feed producer as subcommands (via Cobra).
package main

import (
	"fmt"
	"os"

	"github.com/onslaught7/market-pulse-engine/cmd/marketpulse/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
