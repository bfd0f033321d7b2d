package main

import (
	"context"
	"net/http"
	"os"

	"github.com/bizmanager/ledgersync/api/controllers"
	"github.com/bizmanager/ledgersync/api/routes"
	"github.com/bizmanager/ledgersync/internal/items"
	"github.com/bizmanager/ledgersync/pkg/config"
	"github.com/bizmanager/ledgersync/pkg/db"
	"github.com/bizmanager/ledgersync/pkg/db/models"
	"github.com/bizmanager/ledgersync/pkg/logger"
	"github.com/bizmanager/ledgersync/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "ledgerd"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "ledgerd",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if cfg.FeatureFlags.AutoMigrate {
		if err := dbClient.DB().AutoMigrate(&models.LedgerItem{}); err != nil {
			logg.Error(context.Background(), "failed to migrate schema", err)
			os.Exit(1)
		}
		logg.Info(context.Background(), "schema migration complete")
	}

	pingers := map[string]controllers.Pinger{"db": dbClient}

	var idem items.IdempotencyStore
	if cfg.Redis.URL != "" {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		idem = redisClient
		pingers["redis"] = redisClient
	} else {
		logg.Warn(context.Background(), "redis not configured, create idempotency disabled")
	}

	itemsService, err := items.NewService(
		items.NewRepository(dbClient.DB()),
		dbClient,
		items.Options{
			Idempotency:    idem,
			IdempotencyTTL: cfg.Redis.IdempotencyTTL,
			Logger:         logg,
		},
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create items service", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting ledger store server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:       cfg,
			Logger:       logg,
			ItemsService: itemsService,
			Registry:     registry,
			Pingers:      pingers,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "ledger store server stopped unexpectedly", err)
		os.Exit(1)
	}
}
