// Package main runs one evolutionary trading simulation:
// - builds the market feed, population and lifecycle from a YAML config
// - optionally checks that the run reproduces (-verify)
// - writes agents.csv, generations.csv and REPORT.md to -output-dir
// - serves Prometheus metrics on -metrics-addr while running
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"trading-agent-lab/internal/config"
	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/observability"
	"trading-agent-lab/internal/reporting"
	"trading-agent-lab/internal/simulation"
	"trading-agent-lab/internal/verification"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config (defaults when empty)")
	seed := flag.Int64("seed", 0, "Override simulation.seed")
	ticks := flag.Int("ticks", 0, "Override simulation.ticks")
	regime := flag.String("regime", "", "Override market.regime: bull, bear, volatile, sideways")
	strategyType := flag.String("strategy", "", "Override strategy.type: GENOME, BUY_AND_HOLD")

	// Modes
	verify := flag.Bool("verify", false, "Run the config twice and check the results match")
	metricsAddr := flag.String("metrics-addr", "", "Serve /metrics and /health on this address")
	outputDir := flag.String("output-dir", "", "Write CSV and Markdown reports to this directory")

	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(2)
		}
		cfg = loaded
	}

	// Flags override the file only when set
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			cfg.Simulation.Seed = *seed
		case "ticks":
			cfg.Simulation.Ticks = *ticks
		case "regime":
			cfg.Market.Regime = domain.Regime(strings.ToLower(*regime))
		case "strategy":
			cfg.Strategy.Type = strings.ToUpper(*strategyType)
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	logger, err := observability.NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	logger = logger.With().Str("app", "simulate").Logger()

	// Handle shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *verify, *metricsAddr, *outputDir, logger); err != nil {
		logger.Error().Err(err).Msg("simulation failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, verify bool, metricsAddr, outputDir string, logger zerolog.Logger) error {
	if verify {
		report, err := verification.VerifyDeterminism(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		logger.Info().
			Str("run_id", report.RunID).
			Bool("match", report.Match).
			Int("agents", report.Agents).
			Int("trades", report.Trades).
			Int("generations", report.Generations).
			Msg("determinism check complete")
		for _, d := range report.Divergences {
			logger.Warn().Str("divergence", d.String()).Msg("divergence")
		}
		if !report.Match {
			return fmt.Errorf("run %s is not reproducible: %d divergences", report.RunID, len(report.Divergences))
		}
	}

	// Metrics
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg, observability.DefaultNamespace)
	if metricsAddr != "" {
		srv := startHTTPServer(metricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Backends
	backends, err := simulation.OpenBackends(ctx, cfg.Storage, cfg.Lifecycle.InitialPool, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backends.Close(); err != nil {
			logger.Warn().Err(err).Msg("close backends")
		}
	}()

	// Run
	start := time.Now()
	res, err := simulation.NewRunner(simulation.RunnerOptions{
		Config:   cfg,
		Backends: backends,
		Metrics:  m,
		Logger:   logger,
	}).Run(ctx)
	if err != nil {
		return err
	}
	logger.Info().Dur("elapsed", time.Since(start)).Str("run_id", res.RunID).Msg("run finished")

	if outputDir == "" {
		return nil
	}
	return writeReports(ctx, outputDir, res, backends, logger)
}

// writeReports renders the run into outputDir.
func writeReports(ctx context.Context, outputDir string, res *simulation.Result, backends *simulation.Backends, logger zerolog.Logger) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	report, err := reporting.NewGenerator(backends.Trades).Generate(ctx, res)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	files := map[string]string{
		"REPORT.md":       reporting.RenderMarkdown(report),
		"agents.csv":      reporting.RenderCSV(report.Agents),
		"generations.csv": reporting.RenderGenerationsCSV(report.Generations),
	}
	for name, content := range files {
		path := filepath.Join(outputDir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	logger.Info().Str("dir", outputDir).Msg("reports written")
	return nil
}

// startHTTPServer starts the HTTP server for health and metrics.
func startHTTPServer(addr string, reg *prometheus.Registry, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler(reg))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("addr", addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()
	return srv
}
