package orchestrator

import (
	"fmt"
	"sync"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/engine"
)

// RunState - состояние выполнения одного плана в памяти.
//
// Переходы: PENDING → RUNNING → COMPLETED | ABORTED.
//
// Содержит:
//   - Номер текущего этапа
//   - Выход предыдущего этапа для подстановки плейсхолдеров
//   - Накопленные результаты этапов
type RunState struct {
	// Plan - выполняемый план.
	Plan domain.Plan

	status  domain.RunStatus
	stage   int
	prev    engine.Output
	results []domain.StageResult
	abort   *domain.Abort

	// mu - мьютекс для потокобезопасного доступа.
	mu sync.RWMutex
}

// NewRunState создаёт состояние PENDING(stage=0, previousOutput=Absent).
func NewRunState(plan domain.Plan) *RunState {
	return &RunState{
		Plan:    plan,
		status:  domain.RunStatusPending,
		prev:    engine.NoOutput(),
		results: make([]domain.StageResult, 0, len(plan.Stages)),
	}
}

// Start переводит состояние в RUNNING.
func (s *RunState) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.RunStatusPending {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.status, domain.RunStatusRunning)
	}
	s.status = domain.RunStatusRunning
	return nil
}

// HasNext проверяет, остались ли невыполненные этапы.
func (s *RunState) HasNext() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.status == domain.RunStatusRunning && s.stage < len(s.Plan.Stages)
}

// Current возвращает номер и содержимое текущего этапа.
func (s *RunState) Current() (int, domain.Stage) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.stage, s.Plan.Stages[s.stage]
}

// PreviousOutput возвращает выход предыдущего этапа.
func (s *RunState) PreviousOutput() engine.Output {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.prev
}

// CompleteStage сохраняет результат текущего этапа и переходит к следующему.
// Выход этапа становится PreviousOutput.
func (s *RunState) CompleteStage(result domain.StageResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.RunStatusRunning {
		return fmt.Errorf("%w: complete stage in %s", ErrInvalidTransition, s.status)
	}
	if result.Index != s.stage {
		return fmt.Errorf("%w: expected stage %d, got %d", ErrInvalidTransition, s.stage, result.Index)
	}

	s.results = append(s.results, result)
	s.prev = engine.StageOutput(result)
	s.stage++
	return nil
}

// Abort останавливает выполнение на текущем этапе.
func (s *RunState) Abort(failure *domain.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.RunStatusRunning {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.status, domain.RunStatusAborted)
	}
	s.status = domain.RunStatusAborted
	s.abort = &domain.Abort{StageIndex: s.stage, Failure: failure}
	return nil
}

// Finish завершает выполнение после последнего этапа.
func (s *RunState) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.RunStatusRunning || s.stage < len(s.Plan.Stages) {
		return fmt.Errorf("%w: %s at stage %d/%d → %s",
			ErrInvalidTransition, s.status, s.stage, len(s.Plan.Stages), domain.RunStatusCompleted)
	}
	s.status = domain.RunStatusCompleted
	return nil
}

// Status возвращает текущий статус.
func (s *RunState) Status() domain.RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.status
}

// Result возвращает итог выполнения на текущий момент.
func (s *RunState) Result() *domain.PlanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stages := make([]domain.StageResult, len(s.results))
	copy(stages, s.results)

	return &domain.PlanResult{
		Status: s.status,
		Stages: stages,
		Abort:  s.abort,
	}
}

// Stats возвращает статистику выполнения.
func (s *RunState) Stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := RunStats{
		TotalStages:     len(s.Plan.Stages),
		CompletedStages: len(s.results),
		TotalTasks:      s.Plan.TaskCount(),
	}
	for _, r := range s.results {
		stats.AttemptedTasks += len(r.Outcomes)
		stats.FailedTasks += r.Failed()
	}
	return stats
}

// RunStats - статистика выполнения плана.
type RunStats struct {
	TotalStages     int
	CompletedStages int
	TotalTasks      int
	AttemptedTasks  int
	FailedTasks     int
}
