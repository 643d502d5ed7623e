package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/Portfolium/internal/domain"
)

// Ошибки разбора и валидации плана.
var (
	// ErrMalformedPlan - план не удаётся разобрать.
	ErrMalformedPlan = errors.New("malformed plan")

	// ErrEmptyPlan - план не содержит этапов.
	ErrEmptyPlan = errors.New("plan has no stages")

	// ErrEmptyStage - этап не содержит задач.
	ErrEmptyStage = errors.New("stage has no tasks")

	// ErrUnknownTool - задача ссылается на незарегистрированный инструмент.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrNestedPlaceholder - "$previous" внутри списка или объекта. Подставляется
	// только значение параметра целиком.
	ErrNestedPlaceholder = errors.New("placeholder must be a whole parameter value")

	// ErrStageConflict - в одном этапе пишущая задача и другая задача над тем же портфелем.
	ErrStageConflict = errors.New("conflicting read/write tasks in one stage")
)

// Ошибки DAG-формы плана.
var (
	// ErrEmptyTaskID - задача не имеет ID.
	ErrEmptyTaskID = errors.New("task has empty ID")

	// ErrDuplicateTaskID - несколько задач с одинаковым ID.
	ErrDuplicateTaskID = errors.New("duplicate task ID")

	// ErrMissingDependency - задача зависит от несуществующей задачи.
	ErrMissingDependency = errors.New("task depends on unknown task")

	// ErrCyclicDependency - обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrSelfDependency - задача зависит от самой себя.
	ErrSelfDependency = errors.New("task depends on itself")

	// ErrPlaceholderDependency - задача с "$previous" получила бы выход не тех задач,
	// от которых зависит.
	ErrPlaceholderDependency = errors.New("placeholder does not match task dependencies")
)

// Ошибки подстановки плейсхолдеров.
var (
	// ErrPlaceholderResolution - базовая ошибка подстановки.
	ErrPlaceholderResolution = errors.New("placeholder resolution failed")

	// ErrNoPreviousOutput - предыдущего этапа нет или он не дал выхода.
	ErrNoPreviousOutput = fmt.Errorf("%w: no previous output", ErrPlaceholderResolution)

	// ErrShapeMismatch - форма выхода не подходит параметру.
	ErrShapeMismatch = fmt.Errorf("%w: shape mismatch", ErrPlaceholderResolution)
)

// Ошибки рендеринга итогов.
var (
	// ErrTemplateRender - ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")
)

// ValidationError - ошибка валидации с контекстом.
type ValidationError struct {
	Stage   int    // индекс этапа, -1 если не относится к этапу
	Task    int    // индекс задачи в этапе, -1 если не относится к задаче
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	switch {
	case e.Stage >= 0 && e.Task >= 0:
		return fmt.Sprintf("stage %d task %d: %s", e.Stage, e.Task, e.Message)
	case e.Stage >= 0:
		return fmt.Sprintf("stage %d: %s", e.Stage, e.Message)
	default:
		return e.Message
	}
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stage, task int, field, message string, err error) *ValidationError {
	return &ValidationError{
		Stage:   stage,
		Task:    task,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// ResolutionError - ошибка подстановки плейсхолдера в конкретную задачу.
type ResolutionError struct {
	Stage   int
	Task    int
	Tool    domain.ToolName
	Param   string
	Message string
	Err     error
}

// Error реализует интерфейс error.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("stage %d task %d (%s): parameter %s: %s", e.Stage, e.Task, e.Tool, e.Param, e.Message)
}

// Unwrap возвращает базовую ошибку.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}
