package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/orchestrator"
	"github.com/shaiso/Portfolium/internal/portfolio"
	"github.com/shaiso/Portfolium/internal/repo"
)

// RunExecutor выполняет запуск и сохраняет его итог. Реализуется worker.Worker.
type RunExecutor interface {
	Execute(ctx context.Context, run *domain.PlanRun) error
	Notify()
}

// PendingPublisher сообщает о новом асинхронном запуске. Реализуется mq.Publisher.
type PendingPublisher interface {
	PublishPlanPending(ctx context.Context, runID uuid.UUID) error
}

// ScheduleLister отдаёт текущее состояние расписаний. Реализуется scheduler.Scheduler.
type ScheduleLister interface {
	Schedules() []domain.ScheduledPlan
}

// Handler - главный обработчик API с зависимостями.
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	executor     RunExecutor
	runs         repo.RunStore
	portfolios   *portfolio.Store
	publisher    PendingPublisher
	schedules    ScheduleLister
	threshold    float64
	logger       *slog.Logger
}

// Config - конфигурация для создания Handler.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Executor     RunExecutor
	Runs         repo.RunStore
	Portfolios   *portfolio.Store

	// Publisher и Schedules опциональны.
	Publisher PendingPublisher
	Schedules ScheduleLister

	// ConfidenceThreshold - планы с меньшей уверенностью отклоняются.
	ConfidenceThreshold float64

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orchestrator: cfg.Orchestrator,
		executor:     cfg.Executor,
		runs:         cfg.Runs,
		portfolios:   cfg.Portfolios,
		publisher:    cfg.Publisher,
		schedules:    cfg.Schedules,
		threshold:    cfg.ConfidenceThreshold,
		logger:       logger,
	}
}
