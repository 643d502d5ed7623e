package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/engine"
	"github.com/shaiso/Portfolium/internal/telemetry"
	"github.com/shaiso/Portfolium/internal/tools"
)

// Orchestrator выполняет планы.
//
// Для каждого этапа по порядку:
//   - подставляет выход предыдущего этапа в плейсхолдеры
//   - в строгом режиме проверяет конфликты read/write внутри этапа
//   - запускает все задачи этапа через StageExecutor и ждёт их
//
// Один Orchestrator безопасно использовать из нескольких горутин:
// каждый вызов Run держит собственный RunState.
type Orchestrator struct {
	registry *tools.Registry
	executor *StageExecutor
	metrics  *telemetry.Metrics
	strict   bool
	logger   *slog.Logger
}

// Config - конфигурация Orchestrator.
type Config struct {
	// Registry - реестр инструментов (обязателен).
	Registry *tools.Registry

	// Metrics - метрики выполнения (опционально).
	Metrics *telemetry.Metrics

	// TaskTimeout - таймаут одного вызова инструмента (0: без таймаута).
	TaskTimeout time.Duration

	// Strict включает проверку конфликтов read/write внутри этапа.
	Strict bool

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		registry: cfg.Registry,
		executor: NewStageExecutor(cfg.Registry, cfg.Metrics, cfg.TaskTimeout, logger),
		metrics:  cfg.Metrics,
		strict:   cfg.Strict,
		logger:   logger,
	}
}

// Registry возвращает реестр инструментов.
func (o *Orchestrator) Registry() *tools.Registry {
	return o.registry
}

// Validate проверяет план до запуска: этапы не пустые, все инструменты
// зарегистрированы. Вызывается на границе приёма плана (API, CLI);
// Run сам по себе неизвестный инструмент считает ошибкой задачи.
func (o *Orchestrator) Validate(plan domain.Plan) error {
	if o.registry == nil {
		return ErrNoRegistry
	}
	return engine.Validate(plan, o.registry.Has)
}

// Run выполняет план.
//
// PlanResult возвращается всегда, кроме ошибки конфигурации. Если план
// остановлен, PlanResult содержит результаты выполненных этапов и Abort,
// а ошибка - *AbortError. Ошибки отдельных задач ошибкой Run не являются.
func (o *Orchestrator) Run(ctx context.Context, plan domain.Plan) (*domain.PlanResult, error) {
	if o.registry == nil {
		return nil, ErrNoRegistry
	}

	logger := telemetry.FromContext(ctx, o.logger)
	ctx = telemetry.WithLogger(ctx, logger)

	state := NewRunState(plan)
	if err := state.Start(); err != nil {
		return nil, err
	}

	logger.Info("plan started", "stages", len(plan.Stages), "tasks", plan.TaskCount())
	started := time.Now()

	for state.HasNext() {
		index, stage := state.Current()
		stageLogger := telemetry.WithStage(logger, index)

		// 1. Отмена проверяется только между этапами:
		// уже запущенные задачи дорабатывают со своим контекстом.
		if err := ctx.Err(); err != nil {
			return o.abort(logger, state, domain.FailureStageFatal,
				fmt.Errorf("%w: before stage %d: %w", ErrPlanCancelled, index, err))
		}

		// 2. Подстановка плейсхолдеров
		resolved, err := engine.Resolve(index, stage, state.PreviousOutput(), o.registry)
		if err != nil {
			return o.abort(logger, state, domain.FailurePlaceholderResolution, err)
		}

		// 3. Строгий режим
		if o.strict {
			if err := engine.CheckConflicts(index, resolved, o.registry); err != nil {
				return o.abort(logger, state, domain.FailureStageFatal, err)
			}
		}

		// 4. Выполнение
		stageLogger.Debug("stage started", "tasks", len(resolved.Tasks))
		result := o.executor.Execute(ctx, index, resolved)
		stageLogger.Debug("stage finished", "failed", result.Failed())

		if err := state.CompleteStage(result); err != nil {
			return nil, err
		}
	}

	if err := state.Finish(); err != nil {
		return nil, err
	}

	stats := state.Stats()
	logger.Info("plan completed",
		"stages", stats.CompletedStages,
		"tasks", stats.AttemptedTasks,
		"failed_tasks", stats.FailedTasks,
		"duration", time.Since(started),
	)
	o.metrics.ObservePlan(string(domain.RunStatusCompleted))

	return state.Result(), nil
}

// abort переводит план в ABORTED и возвращает частичный результат с *AbortError.
func (o *Orchestrator) abort(logger *slog.Logger, state *RunState, kind domain.FailureKind, cause error) (*domain.PlanResult, error) {
	index, _ := state.Current()
	failure := &domain.Failure{Kind: kind, Message: cause.Error()}

	if err := state.Abort(failure); err != nil {
		return nil, errors.Join(err, cause)
	}

	logger.Warn("plan aborted",
		"stage", index,
		"kind", kind,
		"error", failure.Message,
	)
	o.metrics.ObservePlan(string(domain.RunStatusAborted))

	return state.Result(), &AbortError{Stage: index, Failure: failure, Err: cause}
}
