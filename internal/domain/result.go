package domain

import (
	"fmt"
	"time"
)

// FailureKind классифицирует причину неудачи.
type FailureKind string

const (
	// FailurePlaceholderResolution: плейсхолдер нечем заменить
	// или форма выхода не подходит параметру. Останавливает план.
	FailurePlaceholderResolution FailureKind = "PLACEHOLDER_RESOLUTION"

	// FailureUnknownTool: инструмента нет в реестре.
	FailureUnknownTool FailureKind = "UNKNOWN_TOOL"

	// FailureParameterValidation: инструмент отклонил параметры.
	FailureParameterValidation FailureKind = "PARAMETER_VALIDATION"

	// FailureToolExecution: инструмент упал во время выполнения.
	FailureToolExecution FailureKind = "TOOL_EXECUTION"

	// FailureStageFatal: этап нельзя запускать целиком. Останавливает план.
	FailureStageFatal FailureKind = "STAGE_FATAL"

	// FailureCancelled: контекст отменён или истёк таймаут задачи.
	FailureCancelled FailureKind = "CANCELLED"
)

// AbortsPlan возвращает true для видов ошибок, которые останавливают план.
func (k FailureKind) AbortsPlan() bool {
	return k == FailurePlaceholderResolution || k == FailureStageFatal
}

// Failure - человекочитаемая причина неудачи.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// NewFailure создаёт Failure.
func NewFailure(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error реализует error, чтобы Failure можно было логировать как ошибку.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// TaskOutcome - результат одной задачи этапа.
//
// Ровно одно из Result / Failure имеет смысл, в зависимости от Status.
type TaskOutcome struct {
	// Index - позиция задачи в этапе.
	Index int `json:"index"`

	// Task - задача после подстановки плейсхолдеров.
	Task Task `json:"task"`

	Status  TaskStatus `json:"status"`
	Result  any        `json:"result,omitempty"`
	Failure *Failure   `json:"failure,omitempty"`

	// Summary - человекочитаемый итог задачи.
	Summary string `json:"summary,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded возвращает true, если задача выполнилась успешно.
func (o TaskOutcome) Succeeded() bool {
	return o.Status == TaskStatusSucceeded
}

// Duration возвращает время выполнения задачи.
func (o TaskOutcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// StageResult - итоги всех задач одного этапа в порядке объявления.
type StageResult struct {
	Index    int           `json:"index"`
	Outcomes []TaskOutcome `json:"outcomes"`
}

// Output вычисляет выход этапа для следующего этапа.
//
// Одна задача: её результат, если она успешна. Несколько задач: список
// результатов успешных задач в порядке объявления. Если успешных задач нет,
// выхода нет (ok == false).
func (r StageResult) Output() (any, bool) {
	if len(r.Outcomes) == 1 {
		o := r.Outcomes[0]
		if !o.Succeeded() {
			return nil, false
		}
		return o.Result, true
	}

	var results []any
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			results = append(results, o.Result)
		}
	}
	if len(results) == 0 {
		return nil, false
	}
	return results, true
}

// Failed возвращает число неуспешных задач этапа.
func (r StageResult) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			n++
		}
	}
	return n
}

// Abort описывает, на каком этапе и почему план был остановлен.
type Abort struct {
	StageIndex int      `json:"stage_index"`
	Failure    *Failure `json:"failure"`
}

// PlanResult - итог выполнения плана.
//
// Stages содержит результаты всех выполненных этапов, в том числе при ABORTED.
type PlanResult struct {
	Status RunStatus     `json:"status"`
	Stages []StageResult `json:"stages"`
	Abort  *Abort        `json:"abort,omitempty"`
}

// IsAborted возвращает true, если план был остановлен.
func (r *PlanResult) IsAborted() bool {
	return r.Status == RunStatusAborted
}

// Outcomes возвращает итоги всех задач плана в порядке выполнения.
func (r *PlanResult) Outcomes() []TaskOutcome {
	var out []TaskOutcome
	for _, s := range r.Stages {
		out = append(out, s.Outcomes...)
	}
	return out
}
