package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/repo"
	"github.com/shaiso/Portfolium/internal/telemetry"
)

// Publisher сообщает о новом запуске. Реализуется mq.Publisher.
type Publisher interface {
	PublishPlanPending(ctx context.Context, runID uuid.UUID) error
}

// Notifier будит исполнителя без брокера. Реализуется worker.Worker.
type Notifier interface {
	Notify()
}

// Scheduler создаёт запуски планов по cron-расписаниям.
//
// Расписания живут в памяти процесса и задаются конфигурацией. Защита от
// дублей при рестарте держится на ключе идемпотентности запуска.
type Scheduler struct {
	mu        sync.Mutex
	schedules []domain.ScheduledPlan

	runs      repo.RunStore
	publisher Publisher
	notifier  Notifier
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Config - конфигурация Scheduler.
type Config struct {
	Schedules []domain.ScheduledPlan
	Runs      repo.RunStore

	// Publisher и Notifier опциональны.
	Publisher Publisher
	Notifier  Notifier

	Metrics *telemetry.Metrics
	Logger  *slog.Logger

	// Now - источник времени (default: time.Now).
	Now func() time.Time
}

// New создаёт Scheduler и вычисляет первое время запуска каждого расписания.
func New(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Scheduler{
		schedules: make([]domain.ScheduledPlan, len(cfg.Schedules)),
		runs:      cfg.Runs,
		publisher: cfg.Publisher,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		logger:    logger.With("component", "scheduler"),
		now:       now,
	}
	copy(s.schedules, cfg.Schedules)

	start := now()
	for i := range s.schedules {
		sched := &s.schedules[i]
		next, err := CalculateNextDue(sched, start)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", sched.Name, err)
		}
		sched.NextDueAt = &next
	}
	return s, nil
}

// Schedules возвращает копию расписаний с текущим состоянием.
func (s *Scheduler) Schedules() []domain.ScheduledPlan {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ScheduledPlan, len(s.schedules))
	copy(out, s.schedules)
	return out
}

// Run вызывает Tick с заданным интервалом до отмены ctx.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "schedules", len(s.schedules), "interval", interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick создаёт запуски для всех расписаний, время которых наступило.
// Ошибка одного расписания не блокирует обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var due, created int
	for i := range s.schedules {
		sched := &s.schedules[i]
		if !sched.IsDue(now) {
			continue
		}
		due++

		runCreated, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_name", sched.Name,
				"error", err,
			)
			continue
		}
		if runCreated {
			created++
		}
	}

	if due > 0 {
		s.logger.Info("scheduler tick completed", "due", due, "runs_created", created)
	}
	if created > 0 && s.notifier != nil {
		s.notifier.Notify()
	}
	return nil
}

// processSchedule создаёт запуск для одного расписания.
// Возвращает true, если запуск создан (а не найден по ключу идемпотентности).
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.ScheduledPlan, now time.Time) (bool, error) {
	// "{name}_{next_due_unix}": один запуск на расписание и момент времени
	idempKey := fmt.Sprintf("%s_%d", sched.Name, sched.NextDueAt.Unix())

	var runID uuid.UUID
	runCreated := false

	existing, err := s.runs.GetByIdempotencyKey(ctx, idempKey)
	switch {
	case err == nil:
		s.logger.Debug("run already exists (idempotency)",
			"schedule_name", sched.Name,
			"run_id", existing.ID,
			"idempotency_key", idempKey,
		)
		runID = existing.ID

	case errors.Is(err, repo.ErrNotFound):
		run := domain.NewPlanRun(sched.Plan, "schedule:"+sched.Name)
		run.IdempotencyKey = idempKey
		run.CreatedAt = now.UTC()

		if err := s.runs.Create(ctx, run); err != nil {
			return false, fmt.Errorf("create run: %w", err)
		}
		s.logger.Info("created run from schedule",
			"run_id", run.ID,
			"schedule_name", sched.Name,
		)
		s.metrics.ObserveScheduledRun(sched.Name)
		runID = run.ID
		runCreated = true

	default:
		return false, fmt.Errorf("check idempotency: %w", err)
	}

	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		return runCreated, fmt.Errorf("calculate next due: %w", err)
	}
	sched.RecordRun(runID, now.UTC(), nextDue)

	if s.publisher != nil && runCreated {
		if err := s.publisher.PublishPlanPending(ctx, runID); err != nil {
			// Запуск уже сохранён, worker заберёт его polling'ом
			s.logger.Warn("failed to publish plan.pending", "run_id", runID, "error", err)
		}
	}
	return runCreated, nil
}
