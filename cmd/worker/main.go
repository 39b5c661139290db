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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/medlink/hospital-sync/internal/config"
	"github.com/medlink/hospital-sync/internal/notify"
	"github.com/medlink/hospital-sync/internal/platform"
	"github.com/medlink/hospital-sync/internal/registry"
	"github.com/medlink/hospital-sync/internal/repository/postgres"
	"github.com/medlink/hospital-sync/internal/service/fetch"
	"github.com/medlink/hospital-sync/internal/service/reconcile"
	"github.com/medlink/hospital-sync/internal/service/runlog"
	"github.com/medlink/hospital-sync/internal/worker"
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

	m := metrics.NewMetrics("hospital_sync_worker")
	runs := runlog.NewRecorder(runRepo, log)
	notifier := notify.NewNotifier(broker, cfg.Redis.Channel, log)
	mailer := notify.NewMailer(cfg.Email, log)

	registryClient := registry.NewClient(cfg.Registry, log)
	platformClient := platform.NewSOAPClient(cfg.Platform, log)
	publisher := reconcile.NewPublisher(platformClient, notifier, cfg.Sync, log)

	fetchSvc := fetch.NewService(registryClient, stagingRepo, runs, cfg.Registry, log, m)
	reconcileSvc := reconcile.NewService(stagingRepo, publisher, runs, cfg.Sync, log, m)

	startHealthServer(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down worker")
		cancel()
	}()

	scheduler := worker.NewScheduler(fetchSvc, reconcileSvc, mailer, cfg.Sync, log)
	scheduler.Start(ctx)
}

func startHealthServer(log *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			log.Error(err, "health server failed")
		}
	}()
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
