package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/neardonate/service/config"
	"github.com/brojonat/neardonate/service/db"
	"github.com/brojonat/neardonate/service/donation"
	"github.com/brojonat/neardonate/service/metrics"
	natspkg "github.com/brojonat/neardonate/service/nats"
	"github.com/brojonat/neardonate/service/near"
	"github.com/brojonat/neardonate/service/server"
	"github.com/brojonat/neardonate/service/temporal"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	// Local development convenience; real deployments set the environment
	if err := config.LoadEnvFile(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"network", cfg.NEARNetwork,
		"contract", cfg.ContractName,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Initialize NEAR RPC client and wallet
	wallet, err := newWallet(cfg, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to initialize NEAR wallet", "error", err)
		os.Exit(1)
	}
	contract := donation.NewContract(cfg.ContractName, wallet, metricsCollector, logger)
	logger.Info("initialized donation contract",
		"rpc_url", cfg.NEARRPCURL,
		"signer", wallet.AccountID(),
		"signing_enabled", cfg.SigningEnabled(),
	)

	// Optional receipt store
	var store server.ReceiptStore
	if cfg.ReceiptsEnabled() {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		dbStore := db.NewStore(dbPool, metricsCollector)
		if err := dbStore.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		store = dbStore
		logger.Info("connected to database")
	}

	// Optional confirmation workflows
	var confirmer temporal.Confirmer
	if cfg.ConfirmationsEnabled() {
		temporalClient, err := temporal.NewClient(
			cfg.TemporalHost,
			cfg.TemporalNamespace,
			cfg.TemporalTaskQueue,
			logger,
		)
		if err != nil {
			logger.Error("failed to create temporal client", "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()
		confirmer = temporalClient
		logger.Info("connected to temporal",
			"host", cfg.TemporalHost,
			"namespace", cfg.TemporalNamespace,
			"task_queue", temporalClient.TaskQueue(),
		)
	}

	// Optional donation event stream
	var subscriber natspkg.Subscriber
	if cfg.EventsEnabled() {
		natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsPublisher.Close()
		subscriber = natsPublisher
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, contract, store, confirmer, subscriber, metricsCollector, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	logger.Info("server initialized, all dependencies ready",
		"receipts", cfg.ReceiptsEnabled(),
		"confirmations", cfg.ConfirmationsEnabled(),
		"events", cfg.EventsEnabled(),
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// newWallet creates the NEAR wallet the contract adapter uses. Without an
// account and key it is read-only.
func newWallet(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*near.Wallet, error) {
	rpc := near.NewRPCClient(cfg.NEARRPCURL, cfg.NEARNetwork, &http.Client{Timeout: cfg.RPCTimeout}, m, logger)

	walletCfg := near.WalletConfig{
		AccountID:    cfg.NEARAccountID,
		Gas:          cfg.NEARCallGas,
		LookupSender: cfg.ContractName,
	}
	if cfg.SigningEnabled() {
		key, err := near.ParseKeyPair(cfg.NEARPrivateKey)
		if err != nil {
			return nil, err
		}
		walletCfg.Key = key
	}

	return near.NewWallet(rpc, walletCfg, logger), nil
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
