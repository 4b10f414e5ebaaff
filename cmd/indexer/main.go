// Package main runs the indexer: it consumes decoded events from NATS
// JetStream and applies them to the entity store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"moxie-indexer/internal/app"
	"moxie-indexer/internal/config"
	"moxie-indexer/internal/ethrpc"
	"moxie-indexer/internal/ingestion"
	"moxie-indexer/internal/observability"
	"moxie-indexer/internal/processor"
)

func main() {
	configPath := flag.String("config", os.Getenv("MOXIE_CONFIG"), "Path to YAML config file")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (overrides config)")
	natsURL := flag.String("nats-url", os.Getenv("NATS_URL"), "NATS server URL (overrides config)")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("RPC_ENDPOINT"), "Ethereum RPC endpoint (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			observability.NewLogger("indexer", "info", observability.FormatJSON).Fatal().Err(err).Msg("load config")
		}
		cfg = loaded
	}
	if *postgresDSN != "" {
		cfg.Store.Driver = config.DriverPostgres
		cfg.Store.PostgresDSN = *postgresDSN
	}
	if *useMemory {
		cfg.Store.Driver = config.DriverMemory
	}
	if *natsURL != "" {
		cfg.NATS.URL = *natsURL
	}
	if *rpcEndpoint != "" {
		cfg.RPC.Endpoint = *rpcEndpoint
	}

	logger := observability.NewLogger("indexer", cfg.Logging.Level, cfg.Logging.Format)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		cancel()

		select {
		case sig := <-sigCh:
			logger.Error().Str("signal", sig.String()).Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	if err := run(ctx, cfg, logger); err != nil {
		close(done)
		logger.Fatal().Err(err).Msg("indexer stopped")
	}
	close(done)
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	metrics := observability.DefaultMetrics

	deps, err := app.Open(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL, logger.With().Str("component", "nats").Logger())
	if err != nil {
		return err
	}
	defer nc.Drain()

	registry, err := ingestion.NewWatchPublisher(ctx, js, cfg.NATS.WatchStream, cfg.NATS.WatchSubject)
	if err != nil {
		return err
	}

	proc := app.NewProcessor(cfg, deps, registry, metrics, logger.With().Str("component", "processor").Logger())

	src, err := ingestion.NewSource(ctx, js, cfg.NATS, proc, logger.With().Str("component", "source").Logger())
	if err != nil {
		return err
	}

	if cfg.RPC.WSEndpoint != "" {
		if err := startHeadTracker(ctx, cfg.RPC.WSEndpoint, metrics, logger); err != nil {
			return err
		}
	}

	srv := startHTTPServer(cfg.Metrics.Addr, proc, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("run_id", proc.RunID()).Str("store", deps.StoreName).Msg("indexer started")
	return src.Run(ctx)
}

// startHeadTracker follows chain heads in the background until ctx is done.
func startHeadTracker(ctx context.Context, endpoint string, metrics *observability.Metrics, logger zerolog.Logger) error {
	log := logger.With().Str("component", "heads").Logger()
	ws, err := ethrpc.NewWSClient(ctx, endpoint, nil, log)
	if err != nil {
		return err
	}

	tracker := ethrpc.NewHeadTracker(ws, metrics, log)
	go func() {
		defer ws.Close()
		if err := tracker.Run(ctx); err != nil {
			log.Error().Err(err).Msg("head tracking stopped")
		}
	}()
	return nil
}

// statusResponse is the JSON response for the /status endpoint.
type statusResponse struct {
	RunID    string         `json:"run_id"`
	Applied  map[string]int `json:"applied"`
	Outcomes map[string]int `json:"outcomes"`
	Skipped  int            `json:"skipped"`
}

// startHTTPServer serves health, metrics and status.
func startHTTPServer(addr string, proc *processor.Processor, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		stats := proc.Stats()
		resp := statusResponse{
			RunID:    proc.RunID(),
			Applied:  make(map[string]int, len(stats.Applied)),
			Outcomes: stats.Outcomes,
			Skipped:  stats.Skipped,
		}
		for k, v := range stats.Applied {
			resp.Applied[string(k)] = v
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("addr", addr).Msg("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()
	return srv
}
