// Command chainaudit runs the reconciliation engine: the tick/block
// worker pools, the dispatcher's check_all/clean_all timers, the
// read-only dashboard API and the Prometheus metrics endpoint, all in
// one process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/blockset-corp/chainaudit/internal/config"
	"github.com/blockset-corp/chainaudit/internal/database"
	"github.com/blockset-corp/chainaudit/internal/database/migrations"
	"github.com/blockset-corp/chainaudit/pkg/chaincache"
	"github.com/blockset-corp/chainaudit/pkg/chainsource"
	"github.com/blockset-corp/chainaudit/pkg/dashboard"
	"github.com/blockset-corp/chainaudit/pkg/datastorage/repository"
	"github.com/blockset-corp/chainaudit/pkg/errorsink"
	"github.com/blockset-corp/chainaudit/pkg/lock"
	applog "github.com/blockset-corp/chainaudit/pkg/log"
	"github.com/blockset-corp/chainaudit/pkg/metrics"
	"github.com/blockset-corp/chainaudit/pkg/scheduler"
	"github.com/blockset-corp/chainaudit/pkg/taskqueue"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the service's YAML configuration file")
	skipMigrations := flag.Bool("skip-migrations", false, "skip applying database migrations on startup")
	flag.Parse()

	if err := run(*configPath, *skipMigrations); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, skipMigrations bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	textLogger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		textLogger.SetLevel(level)
	}
	if cfg.Logging.Format == "json" {
		textLogger.SetFormatter(&logrus.JSONFormatter{})
	}

	logOpts := applog.ProductionOptions()
	logOpts.Level = applog.ParseLevel(cfg.Logging.Level)
	logger := applog.NewLogger(logOpts)

	dbConfig := &database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	}
	*dbConfig = mergeDefaults(*dbConfig)

	db, err := database.Connect(dbConfig, textLogger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if !skipMigrations {
		if err := migrations.Up(db.DB); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	services := make([]chainsource.ServiceDef, len(cfg.Services))
	for i, svc := range cfg.Services {
		services[i] = chainsource.ServiceDef{
			ServiceID: svc.ID,
			BaseURL:   svc.BaseURL,
			APIKey:    svc.APIKey,
		}
	}
	registry := chainsource.NewRegistry(services)

	jobs := repository.NewJobRepository(db)
	blocks := repository.NewBlockRepository(db)
	fetches := repository.NewFetchRepository(db)

	var reporter errorsink.Reporter = errorsink.NoopReporter{}
	if cfg.ErrorSink.SlackWebhookURL != "" {
		reporter = errorsink.NewSlackReporter(cfg.ErrorSink.SlackWebhookURL, cfg.ErrorSink.Channel)
	}

	singleflight := lock.NewSingleflight(redisClient)

	engine := scheduler.NewJobEngine(registry, blocks, nil, logger)
	worker := scheduler.NewBlockWorker(registry, blocks, fetches, reporter, logger)
	dispatchEngine := scheduler.NewDispatchEngine(jobs, fetches, nil, cfg.Scheduling.RetentionWindow, logger)

	// jobWorkerCount is deliberately small: a job tick only issues a
	// handful of range queries and enqueues block-check tasks, it never
	// blocks on the slow chain-data fetches blockWorkerCount sizes for.
	jobWorkerCount := 4
	blockWorkerCount := cfg.Scheduling.BlockWorkerPoolSize

	dispatcher := taskqueue.NewDispatcher(engine, worker, dispatchEngine, singleflight,
		jobWorkerCount, blockWorkerCount, logger)
	dispatcher.CheckAllInterval = cfg.Scheduling.CheckAllInterval
	dispatcher.CheckJobTTL = cfg.Scheduling.CheckJobInterval
	dispatcher.CleanInterval = cfg.Scheduling.CleanInterval

	engine.Enqueuer = dispatcher
	dispatchEngine.Enqueuer = dispatcher

	tipCache := chaincache.New(redisClient, cfg.Redis.TipCacheTTL)
	tipReader := dashboard.NewChainTipReader(registry, tipCache)

	dashboardServer := dashboard.NewServer(cfg.Server.DashboardPort, blocks, tipReader, logger)
	metricsServer := metrics.NewServer(cfg.Server.MetricsPort, textLogger)

	dashboardServer.StartAsync()
	metricsServer.StartAsync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- dispatcher.Run(ctx, jobWorkerCount, blockWorkerCount)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logger.Error(err, "dispatcher stopped unexpectedly")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := dashboardServer.Stop(shutdownCtx); err != nil {
		logger.Error(err, "failed to stop dashboard server")
	}
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error(err, "failed to stop metrics server")
	}

	return nil
}

// mergeDefaults fills pool-sizing fields database.Config doesn't carry
// over from internal/config with database.DefaultConfig's values.
func mergeDefaults(c database.Config) database.Config {
	defaults := database.DefaultConfig()
	c.MaxOpenConns = defaults.MaxOpenConns
	c.MaxIdleConns = defaults.MaxIdleConns
	c.ConnMaxLifetime = defaults.ConnMaxLifetime
	c.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	return c
}
