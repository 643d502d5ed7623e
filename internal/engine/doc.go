// Package engine содержит разбор и подготовку планов к выполнению.
//
// Включает:
//   - parser.go    - разбор плана из JSON/YAML и валидация
//   - dag.go       - раскладка задач с depends_on по этапам (алгоритм Кана)
//   - resolver.go  - подстановка выхода предыдущего этапа вместо "$previous"
//   - conflicts.go - строгий режим: конфликты read/write внутри этапа
//   - summary.go   - человекочитаемые итоги задач (Go templates)
//
// Engine ничего не выполняет: он отвечает за структуру плана и за то,
// какие параметры получит каждая задача.
package engine
