package domain

// ToolName задаёт идентификатор инструмента из фиксированного перечня.
//
// В пути исполнения используются только эти константы; строки из плана
// превращаются в ToolName на этапе парсинга.
type ToolName string

const (
	// ToolAdjustSectorExposure изменяет вес сектора (абсолютно или относительно).
	ToolAdjustSectorExposure ToolName = "adjust_sector_exposure"

	// ToolShowTopConstituents показывает N крупнейших позиций портфеля.
	ToolShowTopConstituents ToolName = "show_top_constituents"

	// ToolMoveWeight переносит вес из одного сектора в несколько других.
	ToolMoveWeight ToolName = "move_weight"

	// ToolResetPortfolio возвращает портфель к исходному составу.
	ToolResetPortfolio ToolName = "reset_portfolio"

	// ToolBatchAdjustSectors применяет пачку изменений секторов одной транзакцией.
	ToolBatchAdjustSectors ToolName = "batch_adjust_sectors"

	// ToolLookupSectors возвращает сектор для каждого asset_id.
	ToolLookupSectors ToolName = "lookup_sectors"

	// ToolLookupPrices возвращает цену для каждого asset_id.
	ToolLookupPrices ToolName = "lookup_prices"

	// ToolCreatePortfolio создаёт портфель с заданным составом.
	ToolCreatePortfolio ToolName = "create_portfolio"
)

// KnownTools перечисляет все встроенные инструменты в стабильном порядке.
func KnownTools() []ToolName {
	return []ToolName{
		ToolAdjustSectorExposure,
		ToolShowTopConstituents,
		ToolMoveWeight,
		ToolResetPortfolio,
		ToolBatchAdjustSectors,
		ToolLookupSectors,
		ToolLookupPrices,
		ToolCreatePortfolio,
	}
}

// IsKnown возвращает true для встроенных инструментов.
func (n ToolName) IsKnown() bool {
	for _, t := range KnownTools() {
		if t == n {
			return true
		}
	}
	return false
}

// String возвращает строковое представление ToolName.
func (n ToolName) String() string {
	return string(n)
}

// Access описывает, как инструмент обращается с общим состоянием.
type Access string

const (
	// AccessRead: инструмент только читает портфель.
	AccessRead Access = "read"

	// AccessWrite: инструмент может изменять портфель.
	AccessWrite Access = "write"
)

// IsWrite возвращает true для пишущих инструментов.
func (a Access) IsWrite() bool {
	return a == AccessWrite
}
