package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/mq"
	"github.com/shaiso/Portfolium/internal/repo"
	"github.com/shaiso/Portfolium/internal/telemetry"
)

// handlePlanPending обрабатывает сообщение из очереди plans.pending.
func (w *Worker) handlePlanPending(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.PlanPendingPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse plan.pending payload", "error", err)
		return err
	}

	if err := w.ProcessRun(ctx, payload.RunID); err != nil {
		// Запуск уже взят polling'ом или удалён: подтверждаем сообщение
		if isSkip(err) {
			w.logger.Debug("run not processed", "run_id", payload.RunID, "reason", err)
			return nil
		}
		return err
	}
	return nil
}

// ProcessRun загружает запуск в статусе PENDING и выполняет его.
func (w *Worker) ProcessRun(ctx context.Context, runID uuid.UUID) error {
	if w.runner == nil {
		return ErrNoRunner
	}
	if !w.claim(runID) {
		return ErrRunInProgress
	}
	defer w.release(runID)

	run, err := w.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return fmt.Errorf("get run: %w", err)
	}

	if run.Status != domain.RunStatusPending {
		return ErrRunNotPending
	}

	return w.execute(ctx, run)
}

// Execute выполняет запуск в текущей горутине и сохраняет итог.
//
// Запуск в статусе PENDING сначала переводится в RUNNING. API создаёт
// синхронные запуски сразу в RUNNING, чтобы их не забрал polling.
// Ошибка возвращается только при сбое хранилища; остановка плана
// записывается в сам запуск (status ABORTED, Error).
func (w *Worker) Execute(ctx context.Context, run *domain.PlanRun) error {
	if w.runner == nil {
		return ErrNoRunner
	}
	if run.IsFinished() {
		return ErrRunNotPending
	}
	if !w.claim(run.ID) {
		return ErrRunInProgress
	}
	defer w.release(run.ID)

	return w.execute(ctx, run)
}

func (w *Worker) execute(ctx context.Context, run *domain.PlanRun) error {
	logger := telemetry.WithRunID(w.logger, run.ID.String())
	ctx = telemetry.WithLogger(ctx, logger)

	if run.Status == domain.RunStatusPending {
		run.MarkRunning()
		if err := w.runs.Update(ctx, run); err != nil {
			return fmt.Errorf("update run to running: %w", err)
		}
	}

	logger.Info("run started",
		"source", run.Source,
		"stages", len(run.Plan.Stages),
		"tasks", run.Plan.TaskCount(),
	)

	result, runErr := w.runner.Run(ctx, run.Plan)
	run.MarkFinished(result, runErr)

	// Итог сохраняем даже при отмене контекста, иначе запуск навсегда
	// останется в RUNNING.
	if err := w.runs.Update(context.WithoutCancel(ctx), run); err != nil {
		return fmt.Errorf("update finished run: %w", err)
	}

	logger.Info("run finished",
		"status", run.Status,
		"duration", run.Duration(),
	)

	w.publishFinished(ctx, run)
	return nil
}

// publishFinished публикует plan.finished. Ошибка публикации не фатальна:
// итог уже сохранён в хранилище.
func (w *Worker) publishFinished(ctx context.Context, run *domain.PlanRun) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.PublishPlanFinished(ctx, mq.NewPlanFinishedPayload(run)); err != nil {
		w.logger.Warn("failed to publish plan.finished", "run_id", run.ID, "error", err)
	}
}
