// Package tools содержит реестр инструментов, которые вызывает план.
//
// # Обзор
//
// Инструмент - типизированный обработчик над общим хранилищем портфелей.
// Каждый инструмент:
//   - объявляет схему параметров и доступ (read/write)
//   - сам проверяет параметры (ErrInvalidParams)
//   - возвращает типизированный результат или ошибку выполнения (ErrExecution)
//
// # Интерфейс Tool
//
//	type Tool interface {
//	    Name() domain.ToolName
//	    Access() domain.Access
//	    Schema() Schema
//	    Invoke(ctx context.Context, params domain.Params) (any, error)
//	}
//
// # Registry
//
//	registry := tools.DefaultRegistry(store)
//	tool, err := registry.Lookup(domain.ToolShowTopConstituents)
//	if errors.Is(err, tools.ErrToolNotFound) {
//	    // неизвестный инструмент
//	}
//
// Реестр заполняется один раз при старте и дальше только читается.
//
// # Результаты
//
// Результаты, содержащие активы (show_top_constituents, lookup_sectors,
// lookup_prices, adjust_sector_exposure, create_portfolio), реализуют
// AssetIDs() []string. Резолвер плейсхолдеров использует эту проекцию,
// когда следующий этап ждёт список asset_id.
package tools
