package portfolio

import "fmt"

// Snapshot возвращает рабочий состав портфеля по убыванию веса.
func (s *Store) Snapshot(portfolioID string) ([]Constituent, error) {
	var out []Constituent
	err := s.view(portfolioID, func(comp composition) error {
		out = comp.constituents(nil)
		return nil
	})
	return out, err
}

// SectorWeights возвращает суммарный вес каждого сектора, включая пустые.
func (s *Store) SectorWeights(portfolioID string) (map[string]float64, error) {
	out := make(map[string]float64, len(Sectors))
	err := s.view(portfolioID, func(comp composition) error {
		for _, sector := range Sectors {
			out[sector] = comp.sectorWeight(sector)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Constituents - упорядоченный список позиций (результат show_top_constituents).
type Constituents []Constituent

// AssetIDs возвращает идентификаторы в том же порядке.
func (c Constituents) AssetIDs() []string {
	return constituentIDs(c)
}

// TopConstituents возвращает n крупнейших позиций, опционально внутри сектора.
// Пустой результат не является ошибкой.
func (s *Store) TopConstituents(portfolioID string, n int, sector string) (Constituents, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: n must be positive, got %d", ErrInvalidArgument, n)
	}

	var filter func(Holding) bool
	if sector != "" {
		if !IsSector(sector) {
			return nil, fmt.Errorf("%w: %q, use one of %v", ErrUnknownSector, sector, Sectors)
		}
		filter = func(h Holding) bool { return h.Sector == sector }
	}

	var out Constituents
	err := s.view(portfolioID, func(comp composition) error {
		all := comp.constituents(filter)
		if len(all) > n {
			all = all[:n]
		}
		out = all
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SectorLookup - сектор актива или NotFound.
type SectorLookup struct {
	AssetID string `json:"asset_id"`
	Sector  string `json:"sector"`
}

// SectorLookups - результат lookup_sectors в порядке запроса.
type SectorLookups []SectorLookup

// AssetIDs возвращает запрошенные идентификаторы в исходном порядке.
func (l SectorLookups) AssetIDs() []string {
	ids := make([]string, len(l))
	for i, e := range l {
		ids[i] = e.AssetID
	}
	return ids
}

// LookupSectors возвращает сектор для каждого asset_id.
// Неизвестные активы получают сектор NotFound.
func (s *Store) LookupSectors(assetIDs []string) SectorLookups {
	out := make(SectorLookups, len(assetIDs))
	for i, id := range assetIDs {
		sector, ok := s.universe.Sector(id)
		if !ok {
			sector = NotFound
		}
		out[i] = SectorLookup{AssetID: id, Sector: sector}
	}
	return out
}

// PriceLookup - цена актива.
type PriceLookup struct {
	AssetID string  `json:"asset_id"`
	Price   float64 `json:"price"`
	Found   bool    `json:"found"`
}

// PriceLookups - результат lookup_prices в порядке запроса.
type PriceLookups []PriceLookup

// AssetIDs возвращает запрошенные идентификаторы в исходном порядке.
func (l PriceLookups) AssetIDs() []string {
	ids := make([]string, len(l))
	for i, e := range l {
		ids[i] = e.AssetID
	}
	return ids
}

// LookupPrices возвращает цену для каждого asset_id.
func (s *Store) LookupPrices(assetIDs []string) PriceLookups {
	out := make(PriceLookups, len(assetIDs))
	for i, id := range assetIDs {
		price, ok := s.universe.Price(id)
		out[i] = PriceLookup{AssetID: id, Price: price, Found: ok}
	}
	return out
}
