// Package orchestrator выполняет план по этапам.
//
// Orchestrator отвечает за:
//   - Строгий порядок этапов: этап i+1 начинается только после того,
//     как все задачи этапа i завершились
//   - Подстановку выхода предыдущего этапа в плейсхолдеры (engine.Resolve)
//   - Одновременный запуск всех задач этапа (StageExecutor)
//   - Изоляцию задач: ошибка одной задачи не отменяет соседние
//     и не останавливает план
//   - Остановку плана (ABORTED) при ошибке подстановки, конфликте этапа
//     в строгом режиме или отмене контекста
//
// Orchestrator не владеет состоянием портфелей: инструменты работают
// с общим portfolio.Store. Изоляции между планами нет. Пишущая задача
// держит блокировку своего портфеля только на время вызова, поэтому
// чтение другого плана может увидеть состояние между двумя этапами.
package orchestrator
