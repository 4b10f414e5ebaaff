// Package main replays a JSONL archive of decoded events into the entity store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"moxie-indexer/internal/app"
	"moxie-indexer/internal/config"
	"moxie-indexer/internal/observability"
	"moxie-indexer/internal/replay"
	"moxie-indexer/internal/watch"
)

// summary is the replay result printed on completion.
type summary struct {
	RunID    string          `json:"run_id"`
	Replayed int             `json:"replayed"`
	Skipped  int             `json:"skipped"`
	Applied  map[string]int  `json:"applied"`
	Outcomes map[string]int  `json:"outcomes"`
	Watches  []watch.Request `json:"watches"`
	Duration string          `json:"duration"`
}

func main() {
	archivePath := flag.String("archive", "", "Path to JSONL event archive (required)")
	configPath := flag.String("config", os.Getenv("MOXIE_CONFIG"), "Path to YAML config file")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	protocolToken := flag.String("protocol-token", "", "Protocol token address (overrides config)")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			observability.NewLogger("replay", "info", observability.FormatConsole).Fatal().Err(err).Msg("load config")
		}
		cfg = loaded
	}
	if *postgresDSN != "" {
		cfg.Store.Driver = config.DriverPostgres
		cfg.Store.PostgresDSN = *postgresDSN
	}
	if *protocolToken != "" {
		cfg.Contracts.ProtocolToken = *protocolToken
	}

	logger := observability.NewLogger("replay", cfg.Logging.Level, observability.FormatConsole)
	if *archivePath == "" {
		logger.Fatal().Msg("--archive is required")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	metrics := observability.DefaultMetrics
	deps, err := app.Open(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open backends")
	}
	defer deps.Close()

	// Replays have no decoder to notify; watch requests are reported instead.
	registry := watch.NewMemoryRegistry()
	proc := app.NewProcessor(cfg, deps, registry, metrics, logger.With().Str("component", "processor").Logger())

	start := time.Now()
	n, err := replay.NewRunner(logger).RunFile(ctx, *archivePath, proc)
	if err != nil {
		deps.Close()
		logger.Fatal().Err(err).Int("replayed", n).Msg("replay failed")
	}

	stats := proc.Stats()
	s := summary{
		RunID:    proc.RunID(),
		Replayed: n,
		Skipped:  stats.Skipped,
		Applied:  make(map[string]int, len(stats.Applied)),
		Outcomes: stats.Outcomes,
		Watches:  registry.Requests(),
		Duration: time.Since(start).String(),
	}
	for k, v := range stats.Applied {
		s.Applied[string(k)] = v
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			logger.Fatal().Err(err).Msg("encode summary")
		}
		return
	}
	printSummary(s)
}

func printSummary(s summary) {
	fmt.Printf("Replay %s\n", s.RunID)
	fmt.Printf("  replayed: %d (skipped %d) in %s\n", s.Replayed, s.Skipped, s.Duration)

	fmt.Println("  applied:")
	for _, k := range sortedKeys(s.Applied) {
		fmt.Printf("    %-32s %d\n", k, s.Applied[k])
	}
	fmt.Println("  outcomes:")
	for _, k := range sortedKeys(s.Outcomes) {
		fmt.Printf("    %-32s %d\n", k, s.Outcomes[k])
	}
	fmt.Printf("  watch requests: %d\n", len(s.Watches))
	for _, w := range s.Watches {
		fmt.Printf("    %s %s from block %d\n", w.Template, w.Address, w.Block)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
