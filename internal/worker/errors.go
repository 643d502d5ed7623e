package worker

import "errors"

// Ошибки воркера.
var (
	// ErrRunNotFound - запуск не найден в хранилище.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunNotPending - запуск уже взят или завершён.
	ErrRunNotPending = errors.New("run is not in PENDING status")

	// ErrRunInProgress - запуск уже выполняется в этом процессе.
	ErrRunInProgress = errors.New("run is already in progress")

	// ErrNoRunner - не задан исполнитель планов.
	ErrNoRunner = errors.New("plan runner is not configured")
)
