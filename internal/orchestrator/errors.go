package orchestrator

import (
	"errors"
	"fmt"

	"github.com/shaiso/Portfolium/internal/domain"
)

// Ошибки оркестратора.
var (
	// ErrPlanAborted - план остановлен до завершения всех этапов.
	ErrPlanAborted = errors.New("plan aborted")

	// ErrPlanCancelled - контекст отменён до начала очередного этапа.
	ErrPlanCancelled = errors.New("plan cancelled")

	// ErrToolPanic - инструмент запаниковал во время вызова.
	ErrToolPanic = errors.New("tool panicked")

	// ErrNoRegistry - оркестратор создан без реестра инструментов.
	ErrNoRegistry = errors.New("tool registry is not configured")
)

// AbortError - причина остановки плана.
//
// Run возвращает её вместе с частичным PlanResult.
type AbortError struct {
	// Stage - этап, на котором план остановлен.
	Stage int

	// Failure - классифицированная причина.
	Failure *domain.Failure

	// Err - исходная ошибка (*engine.ResolutionError, *engine.ValidationError, ошибка контекста).
	Err error
}

// Error реализует интерфейс error.
func (e *AbortError) Error() string {
	return fmt.Sprintf("plan aborted at stage %d: %s", e.Stage, e.Failure.Message)
}

// Unwrap возвращает исходную ошибку.
func (e *AbortError) Unwrap() error {
	return e.Err
}

// Is позволяет проверять errors.Is(err, ErrPlanAborted).
func (e *AbortError) Is(target error) bool {
	return target == ErrPlanAborted
}

// ErrInvalidTransition - недопустимый переход состояния выполнения.
var ErrInvalidTransition = errors.New("invalid run state transition")
