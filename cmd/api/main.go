package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/medlink/hospital-sync/internal/config"
	healthHandler "github.com/medlink/hospital-sync/internal/handler/health"
	syncHandler "github.com/medlink/hospital-sync/internal/handler/sync"
	"github.com/medlink/hospital-sync/internal/notify"
	"github.com/medlink/hospital-sync/internal/platform"
	"github.com/medlink/hospital-sync/internal/registry"
	"github.com/medlink/hospital-sync/internal/repository/postgres"
	"github.com/medlink/hospital-sync/internal/router"
	"github.com/medlink/hospital-sync/internal/service/fetch"
	"github.com/medlink/hospital-sync/internal/service/reconcile"
	"github.com/medlink/hospital-sync/internal/service/runlog"
	"github.com/medlink/hospital-sync/pkg/logger"
	"github.com/medlink/hospital-sync/pkg/messaging"
	redisbroker "github.com/medlink/hospital-sync/pkg/messaging/redis"
	"github.com/medlink/hospital-sync/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	base := postgres.NewBaseRepository(db)
	stagingRepo := postgres.NewStagingRepository(base)
	runRepo := postgres.NewRunHistoryRepository(base)

	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		broker, err = redisbroker.NewRedisBroker(redisbroker.Config{URL: cfg.Redis.URL}, log.Zerolog())
		if err != nil {
			log.Fatal(err, "failed to connect to Redis")
		}
		defer broker.Close()
	}

	m := metrics.NewMetrics("hospital_sync")
	runs := runlog.NewRecorder(runRepo, log)
	notifier := notify.NewNotifier(broker, cfg.Redis.Channel, log)

	registryClient := registry.NewClient(cfg.Registry, log)
	platformClient := platform.NewSOAPClient(cfg.Platform, log)
	publisher := reconcile.NewPublisher(platformClient, notifier, cfg.Sync, log)

	fetchSvc := fetch.NewService(registryClient, stagingRepo, runs, cfg.Registry, log, m)
	reconcileSvc := reconcile.NewService(stagingRepo, publisher, runs, cfg.Sync, log, m)

	r := router.NewRouter(
		healthHandler.NewHandler(db),
		syncHandler.NewHandler(fetchSvc, reconcileSvc, runRepo),
		router.Config{
			RateLimit: rate.Limit(cfg.Server.RateLimit),
			RateBurst: cfg.Server.RateBurst,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err, "server forced to shutdown")
	}

	log.Info("server exited properly")
}

func newLogger(cfg config.LogConfig) *logger.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Console:    cfg.Console,
	})
}
