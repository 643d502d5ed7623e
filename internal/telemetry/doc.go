// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go: structured logging через slog
//   - metrics.go: Prometheus метрики выполнения планов
//
// Все сервисы используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
