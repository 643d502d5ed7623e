package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/mq"
	"github.com/shaiso/Portfolium/internal/repo"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 50
	defaultConcurrency  = 4
	defaultPrefetch     = 5
)

// PlanRunner выполняет план. Реализуется orchestrator.Orchestrator.
type PlanRunner interface {
	Run(ctx context.Context, plan domain.Plan) (*domain.PlanResult, error)
}

// Publisher публикует итоги запусков. Реализуется mq.Publisher.
type Publisher interface {
	PublishPlanFinished(ctx context.Context, payload mq.PlanFinishedPayload) error
}

// Worker выполняет запуски в статусе PENDING.
type Worker struct {
	runs      repo.RunStore
	runner    PlanRunner
	publisher Publisher
	conn      *mq.Connection

	consumer *mq.Consumer

	pollInterval time.Duration
	batchSize    int
	concurrency  int

	// active - запуски, которые сейчас выполняются в этом процессе.
	activeMu sync.Mutex
	active   map[uuid.UUID]struct{}

	wake chan struct{}

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config - конфигурация Worker.
type Config struct {
	Runs   repo.RunStore
	Runner PlanRunner

	// Publisher - опционально; без него plan.finished не публикуется.
	Publisher Publisher

	// Conn - опционально; без него очередь plans.pending не читается.
	Conn *mq.Connection

	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // запусков за один poll (default: 50)
	Concurrency  int           // одновременно выполняемых запусков (default: 4)

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		runs:         cfg.Runs,
		runner:       cfg.Runner,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		concurrency:  concurrency,
		active:       make(map[uuid.UUID]struct{}),
		wake:         make(chan struct{}, 1),
		logger:       logger.With("component", "worker"),
	}
}

// Start запускает consumer (если есть соединение) и polling.
func (w *Worker) Start(ctx context.Context) error {
	if w.runner == nil {
		return ErrNoRunner
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"concurrency", w.concurrency,
		"consumer", w.conn != nil,
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    mq.QueuePlansPending,
			Handler:  w.handlePlanPending,
			Prefetch: defaultPrefetch,
			Requeue:  true,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("plan consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	return nil
}

// Stop останавливает Worker и ждёт завершения выполняемых запусков.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	if w.consumer != nil {
		w.consumer.Stop()
	}
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// Notify просит worker выполнить poll, не дожидаясь тика.
// Не блокируется; повторные вызовы до poll'а схлопываются.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// pollLoop - цикл polling.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу: подхватываем запуски, созданные до старта
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		case <-w.wake:
			w.poll(ctx)
		}
	}
}

// poll выполняет одну пачку запусков в статусе PENDING.
func (w *Worker) poll(ctx context.Context) {
	runs, err := w.runs.ListPending(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list pending runs", "error", err)
		return
	}
	if len(runs) == 0 {
		return
	}

	w.logger.Debug("poll found pending runs", "count", len(runs))

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for _, run := range runs {
		g.Go(func() error {
			err := w.ProcessRun(ctx, run.ID)
			if err != nil && !isSkip(err) {
				w.logger.Error("failed to process run from poll", "run_id", run.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// claim помечает запуск как выполняемый. false: его уже выполняют.
func (w *Worker) claim(id uuid.UUID) bool {
	w.activeMu.Lock()
	defer w.activeMu.Unlock()

	if _, ok := w.active[id]; ok {
		return false
	}
	w.active[id] = struct{}{}
	return true
}

func (w *Worker) release(id uuid.UUID) {
	w.activeMu.Lock()
	delete(w.active, id)
	w.activeMu.Unlock()
}

// ActiveRuns возвращает число выполняемых сейчас запусков.
func (w *Worker) ActiveRuns() int {
	w.activeMu.Lock()
	defer w.activeMu.Unlock()
	return len(w.active)
}

// isSkip - ожидаемые ситуации, когда запуск не нужно выполнять.
func isSkip(err error) bool {
	return errors.Is(err, ErrRunNotPending) || errors.Is(err, ErrRunInProgress) || errors.Is(err, ErrRunNotFound)
}
