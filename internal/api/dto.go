package api

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/portfolio"
	"github.com/shaiso/Portfolium/internal/tools"
)

// Plan DTOs

// PlanRequest - запрос на выполнение плана.
//
// Plan принимается в любой форме, которую понимает engine.ParsePlan.
type PlanRequest struct {
	Plan       json.RawMessage `json:"plan"`
	Confidence *float64        `json:"confidence,omitempty"`
}

// ValidateResponse - результат проверки плана без выполнения.
type ValidateResponse struct {
	Valid  bool         `json:"valid"`
	Stages int          `json:"stages"`
	Tasks  int          `json:"tasks"`
	Plan   *domain.Plan `json:"plan,omitempty"`
}

// Run DTOs

// RunResponse - ответ с запуском.
//
// В списке запусков Plan и Stages не заполняются.
type RunResponse struct {
	ID             uuid.UUID        `json:"id"`
	Status         domain.RunStatus `json:"status"`
	Source         string           `json:"source,omitempty"`
	Confidence     *float64         `json:"confidence,omitempty"`
	Error          string           `json:"error,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	TotalStages    int              `json:"total_stages"`
	FailedTasks    int              `json:"failed_tasks"`
	Plan           *domain.Plan     `json:"plan,omitempty"`
	Stages         []StageResponse  `json:"stages,omitempty"`
	Abort          *AbortResponse   `json:"abort,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
	DurationMs     int64            `json:"duration_ms,omitempty"`
}

// StageResponse - итоги одного этапа.
type StageResponse struct {
	Index int            `json:"index"`
	Tasks []TaskResponse `json:"tasks"`
}

// TaskResponse - итог одной задачи.
type TaskResponse struct {
	Index      int               `json:"index"`
	Tool       domain.ToolName   `json:"tool_name"`
	Params     domain.Params     `json:"parameters,omitempty"`
	Status     domain.TaskStatus `json:"status"`
	Summary    string            `json:"summary,omitempty"`
	Result     any               `json:"result,omitempty"`
	Failure    *domain.Failure   `json:"failure,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

// AbortResponse - где и почему план остановлен.
type AbortResponse struct {
	Stage   int                `json:"stage"`
	Kind    domain.FailureKind `json:"kind"`
	Message string             `json:"message"`
}

// RunFromDomain конвертирует domain.PlanRun в RunResponse.
// detailed добавляет план и итоги задач.
func RunFromDomain(r domain.PlanRun, detailed bool) RunResponse {
	resp := RunResponse{
		ID:             r.ID,
		Status:         r.Status,
		Source:         r.Source,
		Confidence:     r.Confidence,
		Error:          r.Error,
		IdempotencyKey: r.IdempotencyKey,
		TotalStages:    len(r.Plan.Stages),
		CreatedAt:      r.CreatedAt,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		DurationMs:     r.Duration().Milliseconds(),
	}

	if r.Result != nil {
		for _, s := range r.Result.Stages {
			resp.FailedTasks += s.Failed()
		}
		if a := r.Result.Abort; a != nil && a.Failure != nil {
			resp.Abort = &AbortResponse{Stage: a.StageIndex, Kind: a.Failure.Kind, Message: a.Failure.Message}
		}
	}

	if !detailed {
		return resp
	}

	plan := r.Plan
	resp.Plan = &plan
	if r.Result != nil {
		resp.Stages = make([]StageResponse, len(r.Result.Stages))
		for i, s := range r.Result.Stages {
			resp.Stages[i] = StageFromDomain(s)
		}
	}
	return resp
}

// StageFromDomain конвертирует domain.StageResult в StageResponse.
func StageFromDomain(s domain.StageResult) StageResponse {
	tasks := make([]TaskResponse, len(s.Outcomes))
	for i, o := range s.Outcomes {
		tasks[i] = TaskResponse{
			Index:      o.Index,
			Tool:       o.Task.Tool,
			Params:     o.Task.Params,
			Status:     o.Status,
			Summary:    o.Summary,
			Result:     o.Result,
			Failure:    o.Failure,
			DurationMs: o.Duration().Milliseconds(),
		}
	}
	return StageResponse{Index: s.Index, Tasks: tasks}
}

// Portfolio DTOs

// PortfolioResponse - состав портфеля по убыванию веса.
type PortfolioResponse struct {
	ID           string                  `json:"id"`
	Assets       int                     `json:"assets"`
	TotalWeight  float64                 `json:"total_weight"`
	Constituents []portfolio.Constituent `json:"constituents"`
}

// PortfolioFromConstituents собирает PortfolioResponse.
func PortfolioFromConstituents(id string, cs []portfolio.Constituent) PortfolioResponse {
	total := 0.0
	for _, c := range cs {
		total += c.Weight
	}
	return PortfolioResponse{ID: id, Assets: len(cs), TotalWeight: total, Constituents: cs}
}

// SectorWeightResponse - суммарный вес сектора.
type SectorWeightResponse struct {
	Sector string  `json:"sector"`
	Weight float64 `json:"weight"`
}

// SectorWeightsFromMap сортирует веса секторов по убыванию.
func SectorWeightsFromMap(weights map[string]float64) []SectorWeightResponse {
	out := make([]SectorWeightResponse, 0, len(weights))
	for sector, w := range weights {
		out = append(out, SectorWeightResponse{Sector: sector, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Sector < out[j].Sector
	})
	return out
}

// Catalog DTOs

// ToolResponse - описание инструмента.
type ToolResponse struct {
	tools.Schema
	Required []string `json:"required"`
}

// ToolFromSchema конвертирует tools.Schema в ToolResponse.
func ToolFromSchema(s tools.Schema) ToolResponse {
	required := s.Required()
	if required == nil {
		required = []string{}
	}
	return ToolResponse{Schema: s, Required: required}
}

// ScheduleResponse - расписание и его текущее состояние.
type ScheduleResponse struct {
	Name      string     `json:"name"`
	CronExpr  string     `json:"cron"`
	Timezone  string     `json:"timezone,omitempty"`
	Enabled   bool       `json:"enabled"`
	Stages    int        `json:"stages"`
	NextDueAt *time.Time `json:"next_due_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`
}

// ScheduleFromDomain конвертирует domain.ScheduledPlan в ScheduleResponse.
func ScheduleFromDomain(s domain.ScheduledPlan) ScheduleResponse {
	return ScheduleResponse{
		Name:      s.Name,
		CronExpr:  s.CronExpr,
		Timezone:  s.Timezone,
		Enabled:   s.Enabled,
		Stages:    len(s.Plan.Stages),
		NextDueAt: s.NextDueAt,
		LastRunAt: s.LastRunAt,
		LastRunID: s.LastRunID,
	}
}
