// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           - Handler с зависимостями
//   - routes.go            - регистрация маршрутов
//   - middleware.go        - middleware (logging, recovery)
//   - response.go          - унифицированные JSON-ответы и обработка ошибок
//   - dto.go               - Data Transfer Objects (request/response)
//   - plan_handler.go      - выполнение планов (/plans)
//   - run_handler.go       - история запусков (/runs)
//   - portfolio_handler.go - портфели (/portfolios)
//   - tool_handler.go      - каталог инструментов и расписаний
package api
