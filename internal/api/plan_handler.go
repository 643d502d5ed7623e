package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/engine"
	"github.com/shaiso/Portfolium/internal/telemetry"
)

// maxPlanBody - ограничение размера тела запроса с планом.
const maxPlanBody = 1 << 20

// ExecutePlan выполняет план синхронно и возвращает итоги всех задач.
// POST /api/v1/plans
//
// Остановленный план - не ошибка запроса: ответ 200 со status=ABORTED.
func (h *Handler) ExecutePlan(w http.ResponseWriter, r *http.Request) {
	req, plan, ok := h.acceptPlan(w, r)
	if !ok {
		return
	}

	run := domain.NewPlanRun(plan, "api")
	run.Confidence = req.Confidence
	// Сразу RUNNING: polling worker'а такой запуск не возьмёт
	run.MarkRunning()

	if err := h.runs.Create(r.Context(), run); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	if err := h.executor.Execute(r.Context(), run); err != nil {
		h.failRun(r.Context(), run, err)
		InternalError(w, h.logger, err)
		return
	}

	Success(w, RunFromDomain(*run, true))
}

// failRun закрывает запуск, который не удалось выполнить, чтобы он
// не остался в RUNNING. Если план успел завершиться, сохраняется его итог.
func (h *Handler) failRun(ctx context.Context, run *domain.PlanRun, cause error) {
	if !run.IsFinished() {
		run.MarkFailed(cause.Error())
	}
	if err := h.runs.Update(context.WithoutCancel(ctx), run); err != nil {
		h.logger.Error("failed to record run failure", "run_id", run.ID, "error", err)
	}
}

// SubmitPlan ставит план в очередь на асинхронное выполнение.
// POST /api/v1/plans/async
func (h *Handler) SubmitPlan(w http.ResponseWriter, r *http.Request) {
	req, plan, ok := h.acceptPlan(w, r)
	if !ok {
		return
	}

	run := domain.NewPlanRun(plan, "api")
	run.Confidence = req.Confidence

	if err := h.runs.Create(r.Context(), run); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	published := false
	if h.publisher != nil {
		if err := h.publisher.PublishPlanPending(r.Context(), run.ID); err != nil {
			h.logger.Warn("failed to publish plan.pending", "run_id", run.ID, "error", err)
		} else {
			published = true
		}
	}
	if !published {
		h.executor.Notify()
	}

	Accepted(w, RunFromDomain(*run, false))
}

// ValidatePlan разбирает и проверяет план без выполнения.
// POST /api/v1/plans/validate
func (h *Handler) ValidatePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePlanRequest(w, r)
	if !ok {
		return
	}

	plan, err := h.parsePlan(req)
	if err != nil {
		InvalidPlan(w, err.Error())
		return
	}

	Success(w, ValidateResponse{
		Valid:  true,
		Stages: len(plan.Stages),
		Tasks:  plan.TaskCount(),
		Plan:   &plan,
	})
}

// acceptPlan декодирует запрос, применяет порог уверенности, разбирает
// и проверяет план. При false ответ уже отправлен.
func (h *Handler) acceptPlan(w http.ResponseWriter, r *http.Request) (PlanRequest, domain.Plan, bool) {
	req, ok := decodePlanRequest(w, r)
	if !ok {
		return req, domain.Plan{}, false
	}

	if req.Confidence != nil && *req.Confidence < h.threshold {
		telemetry.FromContext(r.Context(), h.logger).Info("plan rejected: low confidence",
			"confidence", *req.Confidence,
			"threshold", h.threshold,
		)
		LowConfidence(w, fmt.Sprintf("planner confidence %.2f is below threshold %.2f", *req.Confidence, h.threshold))
		return req, domain.Plan{}, false
	}

	plan, err := h.parsePlan(req)
	if err != nil {
		InvalidPlan(w, err.Error())
		return req, domain.Plan{}, false
	}
	return req, plan, true
}

func (h *Handler) parsePlan(req PlanRequest) (domain.Plan, error) {
	plan, err := engine.ParsePlan(req.Plan, engine.FormatJSON)
	if err != nil {
		return domain.Plan{}, err
	}
	if err := h.orchestrator.Validate(plan); err != nil {
		return domain.Plan{}, err
	}
	return plan, nil
}

func decodePlanRequest(w http.ResponseWriter, r *http.Request) (PlanRequest, bool) {
	var req PlanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPlanBody)).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return req, false
	}
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
		BadRequest(w, "confidence must be in [0, 1]")
		return req, false
	}
	return req, true
}
