package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/engine"
	"github.com/shaiso/Portfolium/internal/telemetry"
	"github.com/shaiso/Portfolium/internal/tools"
)

// StageExecutor запускает все задачи этапа одновременно и ждёт их завершения.
//
// Задачи запускаются независимо от класса доступа (read/write): порядок
// внутри этапа не гарантируется. Ошибка задачи записывается в её
// TaskOutcome и не отменяет соседние задачи.
type StageExecutor struct {
	registry    *tools.Registry
	metrics     *telemetry.Metrics
	taskTimeout time.Duration
	logger      *slog.Logger
}

// NewStageExecutor создаёт StageExecutor.
// taskTimeout <= 0 означает вызов без собственного таймаута.
func NewStageExecutor(registry *tools.Registry, metrics *telemetry.Metrics, taskTimeout time.Duration, logger *slog.Logger) *StageExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &StageExecutor{
		registry:    registry,
		metrics:     metrics,
		taskTimeout: taskTimeout,
		logger:      logger,
	}
}

// Execute выполняет этап. Возвращается только после завершения всех задач.
// Итоги лежат в порядке объявления задач.
func (e *StageExecutor) Execute(ctx context.Context, index int, stage domain.Stage) domain.StageResult {
	result := domain.StageResult{
		Index:    index,
		Outcomes: make([]domain.TaskOutcome, len(stage.Tasks)),
	}

	// Без WithContext: ошибка одной задачи не должна отменять остальные.
	var g errgroup.Group
	for i, task := range stage.Tasks {
		g.Go(func() error {
			result.Outcomes[i] = e.runTask(ctx, index, i, task)
			return nil
		})
	}
	_ = g.Wait()

	e.metrics.ObserveStage()
	return result
}

// runTask вызывает инструмент и классифицирует результат.
func (e *StageExecutor) runTask(ctx context.Context, stage, index int, task domain.Task) domain.TaskOutcome {
	logger := telemetry.WithTool(telemetry.WithStage(telemetry.FromContext(ctx, e.logger), stage), string(task.Tool), index)

	outcome := domain.TaskOutcome{
		Index:     index,
		Task:      task,
		StartedAt: time.Now(),
	}

	result, err := e.invoke(ctx, task)
	outcome.FinishedAt = time.Now()

	if err != nil {
		outcome.Status = domain.TaskStatusFailed
		outcome.Failure = classifyFailure(err)
		logger.Warn("task failed",
			"kind", outcome.Failure.Kind,
			"error", outcome.Failure.Message,
			"duration", outcome.Duration(),
		)
	} else {
		outcome.Status = domain.TaskStatusSucceeded
		outcome.Result = result
		logger.Debug("task succeeded", "duration", outcome.Duration())
	}

	summary, err := engine.Summarize(outcome)
	if err != nil {
		logger.Warn("summary render failed", "error", err)
	}
	outcome.Summary = summary

	e.metrics.ObserveTask(string(task.Tool), string(outcome.Status), outcome.Duration())
	return outcome
}

// invoke находит инструмент и вызывает его с учётом таймаута.
// Паника инструмента превращается в ошибку.
func (e *StageExecutor) invoke(ctx context.Context, task domain.Task) (result any, err error) {
	tool, err := e.registry.Lookup(task.Tool)
	if err != nil {
		return nil, err
	}

	if e.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.taskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %s: %v", ErrToolPanic, task.Tool, r)
		}
	}()

	return tool.Invoke(ctx, task.Params)
}

// classifyFailure переводит ошибку задачи в domain.Failure.
func classifyFailure(err error) *domain.Failure {
	kind := domain.FailureToolExecution
	switch {
	case errors.Is(err, tools.ErrToolNotFound):
		kind = domain.FailureUnknownTool
	case errors.Is(err, tools.ErrInvalidParams):
		kind = domain.FailureParameterValidation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = domain.FailureCancelled
	}
	return &domain.Failure{Kind: kind, Message: err.Error()}
}
