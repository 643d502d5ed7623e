package domain

import (
	"time"

	"github.com/google/uuid"
)

// PlanRun - запись о запуске плана.
//
// PlanRun создаётся когда:
// - клиент отправляет план через API (синхронно или асинхронно);
// - scheduler запускает план по расписанию;
// - CLI выполняет план локально.
type PlanRun struct {
	// ID - уникальный идентификатор запуска.
	ID uuid.UUID `json:"id"`

	// Status - текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Plan - план, который выполняется.
	Plan Plan `json:"plan"`

	// Result - итог выполнения. Nil, пока план не завершён.
	Result *PlanResult `json:"result,omitempty"`

	// Error - текст ошибки для ABORTED и FAILED.
	Error string `json:"error,omitempty"`

	// Confidence - уверенность планировщика, если она была передана.
	Confidence *float64 `json:"confidence,omitempty"`

	// IdempotencyKey - ключ для защиты от повторного создания.
	// Для запусков по расписанию: "{schedule}_{next_due_unix}".
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// Source - откуда пришёл план: "api", "schedule:<name>", "cli".
	Source string `json:"source,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewPlanRun создаёт запуск в статусе PENDING.
func NewPlanRun(plan Plan, source string) *PlanRun {
	return &PlanRun{
		ID:        uuid.New(),
		Status:    RunStatusPending,
		Plan:      plan,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *PlanRun) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *PlanRun) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *PlanRun) MarkRunning() {
	now := time.Now().UTC()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkFinished записывает итог выполнения плана.
// Статус берётся из результата; err заполняет Error для остановленного плана.
func (r *PlanRun) MarkFinished(result *PlanResult, err error) {
	now := time.Now().UTC()
	r.Result = result
	r.FinishedAt = &now
	if result != nil {
		r.Status = result.Status
	} else {
		r.Status = RunStatusFailed
	}
	if err != nil {
		r.Error = err.Error()
	}
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *PlanRun) MarkFailed(err string) {
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}
