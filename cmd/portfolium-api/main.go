// Portfolium API - сервер выполнения планов.
//
// Процесс держит портфели в памяти, поэтому API, worker асинхронных
// запусков и планировщик работают в нём же:
//   - HTTP API: синхронные и асинхронные запуски, портфели, инструменты
//   - Worker: выполняет PENDING запуски из plans.pending и polling'ом
//   - Scheduler: создаёт запуски по cron-расписаниям из конфигурации
//
// История запусков хранится в Postgres, если задан database.url,
// иначе в памяти. RabbitMQ опционален.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Portfolium/internal/api"
	"github.com/shaiso/Portfolium/internal/config"
	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/mq"
	"github.com/shaiso/Portfolium/internal/orchestrator"
	"github.com/shaiso/Portfolium/internal/portfolio"
	"github.com/shaiso/Portfolium/internal/repo"
	"github.com/shaiso/Portfolium/internal/scheduler"
	"github.com/shaiso/Portfolium/internal/telemetry"
	"github.com/shaiso/Portfolium/internal/tools"
	"github.com/shaiso/Portfolium/internal/worker"
)

var startTime = time.Now()

func main() {
	cfg, err := config.Load(os.Getenv("PORTFOLIUM_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting portfolium-api")

	if err := run(cfg, logger); err != nil {
		logger.Error("portfolium-api failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := telemetry.NewMetrics(nil)

	// Портфели
	store := portfolio.New(portfolio.Config{
		Seed:            cfg.Universe.Seed,
		AssetsPerSector: cfg.Universe.AssetsPerSector,
		PortfolioSize:   cfg.Universe.PortfolioSize,
		Logger:          logger,
	})
	for _, id := range cfg.Universe.Portfolios {
		if _, err := store.Generate(id); err != nil {
			return fmt.Errorf("generate portfolio %s: %w", id, err)
		}
	}
	logger.Info("portfolios generated", "portfolios", cfg.Universe.Portfolios)

	registry := tools.DefaultRegistry(store)
	orch := orchestrator.New(orchestrator.Config{
		Registry:    registry,
		Metrics:     metrics,
		TaskTimeout: cfg.Engine.TaskTimeout,
		Strict:      cfg.Engine.Strict,
		Logger:      logger,
	})

	// История запусков
	runs, closeRuns, err := openRunStore(ctx, cfg.Database.URL, logger)
	if err != nil {
		return err
	}
	defer closeRuns()

	// RabbitMQ
	var mqConn *mq.Connection
	var publisher *mq.Publisher
	if cfg.RabbitMQ.URL != "" {
		mqConn, err = mq.NewConnection(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
			mqConn = nil
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			publisher = mq.NewPublisher(mqConn, logger)
		}
	}

	// Worker
	workerCfg := worker.Config{
		Runs:         runs,
		Runner:       orch,
		Conn:         mqConn,
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
		Concurrency:  cfg.Worker.Concurrency,
		Logger:       logger,
	}
	if publisher != nil {
		workerCfg.Publisher = publisher
	}
	w := worker.New(workerCfg)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer w.Stop()

	// Scheduler
	schedules := make([]domain.ScheduledPlan, 0, len(cfg.Schedules))
	for _, sc := range cfg.Schedules {
		sp, err := sc.ToScheduledPlan()
		if err != nil {
			return err
		}
		schedules = append(schedules, sp)
	}

	schedCfg := scheduler.Config{
		Schedules: schedules,
		Runs:      runs,
		Notifier:  w,
		Metrics:   metrics,
		Logger:    logger,
	}
	if publisher != nil {
		schedCfg.Publisher = publisher
	}
	sched, err := scheduler.New(schedCfg)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	if len(schedules) > 0 {
		go sched.Run(ctx, cfg.Scheduler.Interval)
	}

	// API
	apiCfg := api.Config{
		Orchestrator:        orch,
		Executor:            w,
		Runs:                runs,
		Portfolios:          store,
		Schedules:           sched,
		ConfidenceThreshold: cfg.Engine.ConfidenceThreshold,
		Logger:              logger,
	}
	if publisher != nil {
		apiCfg.Publisher = publisher
	}
	handler := api.NewHandler(apiCfg)

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		fmt.Fprintf(rw, "ok %s", time.Since(startTime).Round(time.Second))
		if mqConn != nil {
			fmt.Fprintf(rw, " rabbitmq=%s", mqConn.State())
		}
		fmt.Fprintf(rw, " active_runs=%d", w.ActiveRuns())
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr, "tools", registry.Count())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Ожидаем сигнал завершения или падение сервера
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	return nil
}

// openRunStore выбирает хранилище истории по database.url:
// пусто - память, sqlite:// - локальный файл, иначе Postgres.
func openRunStore(ctx context.Context, url string, logger *slog.Logger) (repo.RunStore, func(), error) {
	if url == "" {
		logger.Info("database.url not set, keeping run history in memory")
		return repo.NewMemoryRunRepo(), func() {}, nil
	}
	if repo.IsSQLiteURL(url) {
		store, err := repo.OpenSQLite(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("run history stored in sqlite", "path", strings.TrimPrefix(url, repo.SQLiteScheme))
		return store, func() { store.Close() }, nil
	}

	pool, err := repo.NewPool(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("connected to database")

	return repo.NewRunRepo(pool), pool.Close, nil
}
