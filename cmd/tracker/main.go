package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/defistate/lp-tracker-go/chains/evm"
	"github.com/defistate/lp-tracker-go/config"
	"github.com/defistate/lp-tracker-go/history"
	"github.com/defistate/lp-tracker-go/metrics"
	"github.com/defistate/lp-tracker-go/oracle"
	"github.com/defistate/lp-tracker-go/reporter"
	"github.com/defistate/lp-tracker-go/tracker"
)

func main() {
	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Cancel on interrupt or termination so an in-flight run can abort its
	// outbound calls cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rpcClient, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		rootLogger.Error("Failed to dial RPC endpoint", "url", cfg.RPCURL, "error", err)
		os.Exit(1)
	}
	defer rpcClient.Close()

	reader, err := evm.NewReader(rpcClient, evm.Config{
		Pool:            cfg.Pool(),
		PositionManager: cfg.PositionManager(),
		CallTimeout:     cfg.RPCTimeout.Std(),
	})
	if err != nil {
		rootLogger.Error("Failed to initialize chain reader", "error", err)
		os.Exit(1)
	}

	resolver := oracle.NewResolver(
		oracle.NewCoinGecko(cfg.PriceFeedURL, cfg.PriceTimeout.Std()),
		cfg.PriceFeedIDs,
		cfg.StableSymbols,
	)

	store, cleanup, err := buildStore(ctx, cfg, rootLogger)
	if err != nil {
		rootLogger.Error("Failed to initialize history store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	trk, err := tracker.New(tracker.Config{
		Reader:      reader,
		Resolver:    resolver,
		Store:       store,
		Chart:       reporter.NewChart(cfg.ImageDir),
		Logger:      rootLogger.With("component", "tracker"),
		Metrics:     metrics.New(prometheus.DefaultRegisterer),
		TokenID:     cfg.TokenID,
		Granularity: tracker.Granularity(cfg.Granularity),
		Location:    cfg.Location(),
		HistoryPath: cfg.HistoryCSV,
		Summary:     os.Stdout,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize tracker", "error", err)
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, rootLogger)
	}

	if cfg.Interval.Std() <= 0 {
		// One run per invocation; the external scheduler owns the cadence.
		if err := trk.Run(ctx); err != nil {
			rootLogger.Error("Run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	runLoop(ctx, trk, cfg.Interval.Std(), rootLogger)
}

// runLoop executes independent runs on a fixed interval. Nothing is carried
// between iterations except the persisted series, so a failed run only costs
// that period.
func runLoop(ctx context.Context, trk *tracker.Tracker, interval time.Duration, logger *slog.Logger) {
	logger.Info("Tracker loop started", "interval", interval)

	if err := trk.Run(ctx); err != nil {
		logger.Error("Run failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := trk.Run(ctx); err != nil {
				logger.Error("Run failed", "error", err)
			}
		case <-ctx.Done():
			logger.Info("Tracker loop stopped")
			return
		}
	}
}

// buildStore picks the Postgres backend when a DSN is configured, the CSV
// file otherwise.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (history.Store, func(), error) {
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		store := history.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("Using Postgres history store")
		return store, pool.Close, nil
	}

	logger.Info("Using CSV history store", "path", cfg.HistoryCSV)
	return history.NewCSVStore(cfg.HistoryCSV, cfg.Token0Symbol, cfg.Token1Symbol), func() {}, nil
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("Serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server stopped", "error", err)
	}
}
