package domain

// RunStatus - статус выполнения плана.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ ABORTED (ошибка резолвинга или фатальная ошибка этапа)
//	(или) → FAILED (план не удалось даже запустить)
type RunStatus string

const (
	// RunStatusPending: план принят, но ещё не запущен.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning: этапы выполняются.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusCompleted: все этапы выполнены (отдельные задачи могли упасть).
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusAborted: план остановлен до выполнения всех этапов.
	RunStatusAborted RunStatus = "ABORTED"

	// RunStatusFailed: план не прошёл разбор или валидацию либо
	// запуск не удалось выполнить (нет исполнителя, сбой хранилища).
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusAborted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// ParseRunStatus парсит строку в RunStatus.
// Неизвестные значения считаются PENDING.
func ParseRunStatus(s string) RunStatus {
	switch s {
	case "RUNNING":
		return RunStatusRunning
	case "COMPLETED":
		return RunStatusCompleted
	case "ABORTED":
		return RunStatusAborted
	case "FAILED":
		return RunStatusFailed
	default:
		return RunStatusPending
	}
}

// TaskStatus - итог одной задачи этапа.
type TaskStatus string

const (
	// TaskStatusSucceeded: инструмент вернул результат.
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"

	// TaskStatusFailed: задача завершилась ошибкой; причина в Failure.
	TaskStatusFailed TaskStatus = "FAILED"
)
