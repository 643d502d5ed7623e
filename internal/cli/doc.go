// Package cli реализует инструмент командной строки Portfolium.
//
// # Обзор
//
// CLI работает с сервером через HTTP API и не импортирует internal/api:
// типы ответов продублированы в client.go. Исключение составляет
// plan exec, который выполняет план в текущем процессе на свежем
// портфельном хранилище и поэтому использует engine, orchestrator и tools.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Portfolium API. Инкапсулирует запросы, разбор ответов
// (DataResponse, ListResponse, ErrorResponse) и ошибки сервера (APIError).
//
//	client := cli.NewClient("http://localhost:8080")
//	run, err := client.ExecutePlan(req)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter), по умолчанию
//   - JSON с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) в stderr.
// Это позволяет использовать pipe: portfolium run list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - plan: run, submit, validate, exec
//   - run: list, show
//   - portfolio: list, show, generate, sectors
//   - tools: list
//   - schedule: list
//
// Каждая группа создаётся через фабричную функцию (NewPlanCmd и т.д.),
// принимающую clientFn и outputFn: замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
