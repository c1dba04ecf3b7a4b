package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/forkline-app/forkline-backend/api/routes"
	"github.com/forkline-app/forkline-backend/internal/addresses"
	"github.com/forkline-app/forkline-backend/internal/analytics"
	"github.com/forkline-app/forkline-backend/internal/cart"
	"github.com/forkline-app/forkline-backend/internal/catalog"
	"github.com/forkline-app/forkline-backend/internal/ledger"
	"github.com/forkline-app/forkline-backend/internal/notifications"
	"github.com/forkline-app/forkline-backend/internal/orders"
	"github.com/forkline-app/forkline-backend/internal/riders"
	"github.com/forkline-app/forkline-backend/internal/settlement"
	"github.com/forkline-app/forkline-backend/internal/users"
	"github.com/forkline-app/forkline-backend/internal/vendors"
	"github.com/forkline-app/forkline-backend/internal/wallet"
	"github.com/forkline-app/forkline-backend/pkg/bigquery"
	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/metrics"
	"github.com/forkline-app/forkline-backend/pkg/migrate"
	"github.com/forkline-app/forkline-backend/pkg/pubsub"
	"github.com/forkline-app/forkline-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	dispatcher := notifications.NewNoopDispatcher()
	var pubsubClient *pubsub.Client
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		dispatcher, err = notifications.NewDispatcher(pubsubClient, logg)
		if err != nil {
			logg.Error(ctx, "failed to create notification dispatcher", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(ctx, "no GCP project configured, notifications disabled")
	}

	recorder := analytics.NewNoopRecorder()
	var bqClient *bigquery.Client
	if cfg.GCP.ProjectID != "" {
		bqClient, err = bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		recorder, err = analytics.NewRecorder(bqClient, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(ctx, "failed to create analytics recorder", err)
			os.Exit(1)
		}
	}

	gormDB := dbClient.DB()
	ledgerRepo := ledger.NewRepository(gormDB)
	walletRepo := wallet.NewRepository(gormDB)
	userRepo := users.NewRepository(gormDB)
	vendorRepo := vendors.NewRepository(gormDB)
	catalogRepo := catalog.NewRepository(gormDB)
	cartRepo := cart.NewRepository(gormDB)
	riderRepo := riders.NewRepository(gormDB)
	addressRepo := addresses.NewRepository(gormDB)
	orderRepo := orders.NewRepository(gormDB)

	ledgerService, err := ledger.NewService(ledgerRepo)
	if err != nil {
		fatal(ctx, logg, "ledger service", err)
	}
	walletService, err := wallet.NewService(walletRepo, ledgerRepo, dbClient, cfg.Wallet, cfg.Password)
	if err != nil {
		fatal(ctx, logg, "wallet service", err)
	}
	policy := settlement.NewPolicy(cfg.Settlement, cfg.Delivery)
	engine, err := settlement.NewEngine(policy, walletService, dbClient, cfg.Settlement, settlementMetrics, logg)
	if err != nil {
		fatal(ctx, logg, "settlement engine", err)
	}
	userService, err := users.NewService(userRepo, cfg.Password)
	if err != nil {
		fatal(ctx, logg, "user service", err)
	}
	vendorService, err := vendors.NewService(vendorRepo)
	if err != nil {
		fatal(ctx, logg, "vendor service", err)
	}
	catalogService, err := catalog.NewService(catalogRepo)
	if err != nil {
		fatal(ctx, logg, "catalog service", err)
	}
	cartService, err := cart.NewService(cartRepo, catalogService)
	if err != nil {
		fatal(ctx, logg, "cart service", err)
	}
	riderService, err := riders.NewService(riderRepo, cfg.Delivery)
	if err != nil {
		fatal(ctx, logg, "rider service", err)
	}
	addressService, err := addresses.NewService(addressRepo)
	if err != nil {
		fatal(ctx, logg, "address service", err)
	}
	orderService, err := orders.NewService(
		orderRepo,
		cartRepo,
		catalogRepo,
		vendorRepo,
		addressRepo,
		riderRepo,
		engine,
		policy,
		cfg.Delivery,
		dispatcher,
		recorder,
		settlementMetrics,
		logg,
	)
	if err != nil {
		fatal(ctx, logg, "order service", err)
	}

	router := routes.NewRouter(routes.Deps{
		Config:    cfg,
		Log:       logg,
		DB:        dbClient,
		Redis:     redisClient,
		Users:     userService,
		Vendors:   vendorService,
		Catalog:   catalogService,
		Cart:      cartService,
		Orders:    orderService,
		Wallets:   walletService,
		Ledger:    ledgerService,
		Riders:    riderService,
		Addresses: addressService,
		Registry:  registry,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(runCtx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logg.Info(logg.WithFields(runCtx, map[string]any{"signal": sig.String()}), "shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var closeErr error
	closeErr = multierr.Append(closeErr, server.Shutdown(shutdownCtx))
	closeErr = multierr.Append(closeErr, redisClient.Close())
	if pubsubClient != nil {
		closeErr = multierr.Append(closeErr, pubsubClient.Close())
	}
	if bqClient != nil {
		closeErr = multierr.Append(closeErr, bqClient.Close())
	}
	closeErr = multierr.Append(closeErr, dbClient.Close())
	if closeErr != nil {
		logg.Error(runCtx, "shutdown finished with errors", closeErr)
		os.Exit(1)
	}
	logg.Info(runCtx, "shutdown complete")
}

func fatal(ctx context.Context, logg *logger.Logger, component string, err error) {
	logg.Error(ctx, "failed to create "+component, err)
	os.Exit(1)
}
