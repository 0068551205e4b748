package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rakshitdev007/remix-contracts/config"
	"github.com/rakshitdev007/remix-contracts/core/state"
	"github.com/rakshitdev007/remix-contracts/native/sale"
	"github.com/rakshitdev007/remix-contracts/observability/logging"
	"github.com/rakshitdev007/remix-contracts/rpc"
	"github.com/rakshitdev007/remix-contracts/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ICOD_ENV"))
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("icod", env, cfg.LogLevel)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	mgr := state.NewManager(db)
	if !mgr.TokenExists(cfg.Sale.Token) {
		name := cfg.Sale.TokenName
		if strings.TrimSpace(name) == "" {
			name = cfg.Sale.Token
		}
		if err := mgr.RegisterToken(cfg.Sale.Token, name, cfg.Sale.TokenDecimals); err != nil {
			logger.Error("failed to register sale token", slog.Any("error", err))
			os.Exit(1)
		}
	}

	owner, err := cfg.OwnerAddress()
	if err != nil {
		logger.Error("invalid owner address", slog.Any("error", err))
		os.Exit(1)
	}
	saleVault, stakeVault, refVault, err := cfg.VaultAddresses()
	if err != nil {
		logger.Error("invalid vault address", slog.Any("error", err))
		os.Exit(1)
	}

	feed := buildOracle(cfg, logger)

	factory, err := sale.NewFactory(sale.Template{
		SaleToken:     strings.ToUpper(strings.TrimSpace(cfg.Sale.Token)),
		TokenDecimals: cfg.Sale.TokenDecimals,
		SaleVault:     saleVault,
		StakeVault:    stakeVault,
		ReferralVault: refVault,
		Feed:          feed,
	})
	if err != nil {
		logger.Error("invalid sale template", slog.Any("error", err))
		os.Exit(1)
	}

	engine, err := factory.Deploy(mgr, owner, nil)
	if errors.Is(err, sale.ErrAlreadyInitialized) {
		engine, err = factory.Attach(mgr, nil)
	}
	if err != nil {
		logger.Error("failed to initialize engine", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go serveMetrics(ctx, cfg.MetricsAddress, logger)

	server := rpc.NewServer(engine, rpc.ServerConfig{
		AuthToken: cfg.RPCAuthToken(),
		RateLimit: cfg.RPCRateLimit,
		RateBurst: cfg.RPCRateBurst,
		Logger:    logger,
	})
	if err := server.Start(ctx, cfg.RPCAddress); err != nil {
		logger.Error("rpc server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func buildOracle(cfg *config.Config, logger *slog.Logger) sale.PriceFeed {
	maxAge := time.Duration(cfg.Oracle.MaxAgeSeconds) * time.Second
	aggregator := sale.NewFeedAggregator(cfg.Oracle.Priority, maxAge)
	aggregator.Register("manual", sale.NewManualFeed())
	if endpoint := strings.TrimSpace(cfg.Oracle.HTTPEndpoint); endpoint != "" {
		client := &http.Client{Timeout: 10 * time.Second}
		aggregator.Register("http", sale.NewHTTPFeed(client, endpoint, cfg.Oracle.HTTPAssetIDs))
		logger.Info("http price feed configured", "endpoint", endpoint)
	}
	return aggregator
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server exited", slog.Any("error", err))
	}
}
