package portfolio

import (
	"fmt"
	"math"
	"sort"
)

const (
	// weightTolerance - погрешность сравнения весов с 0 и 1.
	weightTolerance = 1e-9

	// ChangeTolerance - изменение веса меньше этого порога считается нулевым.
	ChangeTolerance = 1e-6
)

// Adjustment задаёт изменение веса сектора. Должно быть задано ровно одно поле.
type Adjustment struct {
	SetWeight        *float64
	IncreaseByWeight *float64
	DecreaseByWeight *float64
}

func (a Adjustment) count() int {
	n := 0
	for _, p := range []*float64{a.SetWeight, a.IncreaseByWeight, a.DecreaseByWeight} {
		if p != nil {
			n++
		}
	}
	return n
}

func (a Adjustment) target(current float64) float64 {
	switch {
	case a.SetWeight != nil:
		return *a.SetWeight
	case a.IncreaseByWeight != nil:
		return current + *a.IncreaseByWeight
	default:
		return current - *a.DecreaseByWeight
	}
}

// WeightChange - вес актива до и после изменения.
type WeightChange struct {
	AssetID   string  `json:"asset_id"`
	OldWeight float64 `json:"old_weight"`
	NewWeight float64 `json:"new_weight"`
}

// AdjustResult - итог adjust_sector_exposure.
type AdjustResult struct {
	PortfolioID string `json:"portfolio_id"`
	Sector      string `json:"sector"`

	// ChangedAssets - активы сектора по убыванию нового веса.
	ChangedAssets []WeightChange `json:"changed_assets"`

	FinalTargetWeight float64 `json:"final_target_weight"`
}

// Unchanged возвращает true, если ни один вес не изменился заметно.
func (r *AdjustResult) Unchanged() bool {
	for _, c := range r.ChangedAssets {
		if math.Abs(c.NewWeight-c.OldWeight) >= ChangeTolerance {
			return false
		}
	}
	return true
}

// AssetIDs возвращает активы сектора в порядке ChangedAssets.
func (r *AdjustResult) AssetIDs() []string {
	ids := make([]string, len(r.ChangedAssets))
	for i, c := range r.ChangedAssets {
		ids[i] = c.AssetID
	}
	return ids
}

// AdjustSector меняет вес сектора до целевого значения.
//
// Обычный случай: веса сектора и остальных активов меняются пропорционально.
// Если сектор пуст по весу и его нужно увеличить, новый вес делится поровну
// между его активами. Если сектор занимает весь портфель и его нужно
// уменьшить, освободившийся вес делится поровну между остальными активами.
func (s *Store) AdjustSector(portfolioID, sector string, adj Adjustment) (*AdjustResult, error) {
	if adj.count() != 1 {
		return nil, ErrAmbiguousAdjustment
	}
	if !IsSector(sector) {
		return nil, fmt.Errorf("%w: %q, use one of %v", ErrUnknownSector, sector, Sectors)
	}

	var result *AdjustResult
	err := s.update(portfolioID, func(comp composition) (composition, error) {
		current := comp.sectorWeight(sector)
		target := adj.target(current)
		if target < -weightTolerance || target > 1+weightTolerance {
			return nil, fmt.Errorf("%w: the requested change results in a target weight of %.2f%%, must be between 0%% and 100%%",
				ErrInvalidWeight, target*100)
		}
		target = clamp01(target)

		assets := comp.sectorAssets(sector)
		if len(assets) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptySector, sector)
		}

		old := make(map[string]float64, len(assets))
		for _, id := range assets {
			old[id] = comp[id].Weight
		}

		delta := target - current
		switch {
		case math.Abs(delta) <= weightTolerance:
			// уже на целевом весе

		case current <= weightTolerance && delta > 0:
			share := target / float64(len(assets))
			for id, h := range comp {
				if h.Sector == sector {
					h.Weight = share
				} else {
					h.Weight *= 1 - target
				}
				comp[id] = h
			}

		case current >= 1-weightTolerance && delta < 0:
			var others []string
			for id, h := range comp {
				if h.Sector == sector {
					h.Weight *= target
					comp[id] = h
				} else {
					others = append(others, id)
				}
			}
			if len(others) > 0 {
				share := (1 - target) / float64(len(others))
				for _, id := range others {
					h := comp[id]
					h.Weight = share
					comp[id] = h
				}
			}

		default:
			other := 1 - current
			if current <= weightTolerance || other <= weightTolerance {
				return nil, ErrZeroWeightSlice
			}
			for id, h := range comp {
				if h.Sector == sector {
					h.Weight += delta * h.Weight / current
				} else {
					h.Weight -= delta * h.Weight / other
				}
				h.Weight = nonNegative(h.Weight)
				comp[id] = h
			}
		}

		changes := make([]WeightChange, 0, len(assets))
		for _, id := range assets {
			changes = append(changes, WeightChange{AssetID: id, OldWeight: old[id], NewWeight: comp[id].Weight})
		}
		sort.SliceStable(changes, func(i, j int) bool {
			return changes[i].NewWeight > changes[j].NewWeight
		})

		result = &AdjustResult{
			PortfolioID:       portfolioID,
			Sector:            sector,
			ChangedAssets:     changes,
			FinalTargetWeight: target,
		}
		return comp, nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// SectorAmount - вес, добавляемый сектору-получателю.
type SectorAmount struct {
	Sector      string  `json:"sector"`
	WeightToAdd float64 `json:"weight_to_add"`
}

// MoveResult - итог move_weight.
type MoveResult struct {
	PortfolioID string         `json:"portfolio_id"`
	FromSector  string         `json:"from_sector"`
	ToSectors   []SectorAmount `json:"to_sectors"`
	Amount      float64        `json:"amount"`
}

// Destinations возвращает сектора-получатели по порядку.
func (r *MoveResult) Destinations() []string {
	out := make([]string, len(r.ToSectors))
	for i, t := range r.ToSectors {
		out[i] = t.Sector
	}
	return out
}

// MoveWeight переносит вес из одного сектора в несколько других.
//
// Источник уменьшается пропорционально. Получатель с ненулевым весом
// увеличивается пропорционально, с нулевым получает равные доли.
func (s *Store) MoveWeight(portfolioID, fromSector string, to []SectorAmount) (*MoveResult, error) {
	if !IsSector(fromSector) {
		return nil, fmt.Errorf("%w: invalid source sector %q", ErrUnknownSector, fromSector)
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("%w: to_sectors is empty", ErrInvalidArgument)
	}

	var total float64
	for _, t := range to {
		if !IsSector(t.Sector) {
			return nil, fmt.Errorf("%w: invalid destination sector %q", ErrUnknownSector, t.Sector)
		}
		if t.WeightToAdd < 0 {
			return nil, fmt.Errorf("%w: weight_to_add for %s is negative", ErrInvalidWeight, t.Sector)
		}
		total += t.WeightToAdd
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: total weight to move must be positive", ErrInvalidWeight)
	}

	err := s.update(portfolioID, func(comp composition) (composition, error) {
		before := comp.clone()

		current := before.sectorWeight(fromSector)
		if current <= weightTolerance {
			return nil, fmt.Errorf("%w: cannot move weight from %s as it has no weight in the portfolio",
				ErrInsufficientWeight, fromSector)
		}
		if current+weightTolerance < total {
			return nil, fmt.Errorf("%w: cannot move %.2f%% from %s as it only has %.2f%%",
				ErrInsufficientWeight, total*100, fromSector, current*100)
		}

		reduction := nonNegative(1 - total/current)
		for id, h := range comp {
			if h.Sector == fromSector {
				h.Weight *= reduction
				comp[id] = h
			}
		}

		for _, t := range to {
			destWeight := before.sectorWeight(t.Sector)
			if destWeight > weightTolerance {
				factor := 1 + t.WeightToAdd/destWeight
				for id, h := range comp {
					if h.Sector == t.Sector {
						h.Weight *= factor
						comp[id] = h
					}
				}
				continue
			}

			dest := before.sectorAssets(t.Sector)
			if len(dest) == 0 {
				return nil, fmt.Errorf("%w: %s", ErrEmptySector, t.Sector)
			}
			share := t.WeightToAdd / float64(len(dest))
			for _, id := range dest {
				h := comp[id]
				h.Weight = share
				comp[id] = h
			}
		}

		return comp, nil
	})
	if err != nil {
		return nil, err
	}

	return &MoveResult{
		PortfolioID: portfolioID,
		FromSector:  fromSector,
		ToSectors:   append([]SectorAmount(nil), to...),
		Amount:      total,
	}, nil
}

// SectorChange - одно изменение в пакетной корректировке.
type SectorChange struct {
	Sector           string  `json:"sector"`
	IncreaseByWeight float64 `json:"increase_by_weight,omitempty"`
	DecreaseByWeight float64 `json:"decrease_by_weight,omitempty"`
}

func (c SectorChange) net() float64 {
	return c.IncreaseByWeight - c.DecreaseByWeight
}

// BatchResult - итог batch_adjust_sectors.
type BatchResult struct {
	PortfolioID string         `json:"portfolio_id"`
	Message     string         `json:"message"`
	Adjustments []SectorChange `json:"adjustments"`
}

// BatchAdjust применяет несколько изменений секторов одной операцией.
//
// Чистое изменение финансируется пропорционально из секторов, не упомянутых
// в пакете; затем каждый упомянутый сектор меняется на свою величину.
func (s *Store) BatchAdjust(portfolioID string, changes []SectorChange) (*BatchResult, error) {
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: adjustments is empty", ErrInvalidArgument)
	}

	var net float64
	mentioned := make(map[string]bool, len(changes))
	for _, c := range changes {
		if !IsSector(c.Sector) {
			return nil, fmt.Errorf("%w: invalid sector in batch adjustments %q", ErrUnknownSector, c.Sector)
		}
		if c.IncreaseByWeight < 0 || c.DecreaseByWeight < 0 {
			return nil, fmt.Errorf("%w: adjustment for %s is negative", ErrInvalidWeight, c.Sector)
		}
		mentioned[c.Sector] = true
		net += c.net()
	}

	err := s.update(portfolioID, func(comp composition) (composition, error) {
		before := comp.clone()

		var unmentioned float64
		for _, h := range before {
			if !mentioned[h.Sector] {
				unmentioned += h.Weight
			}
		}

		if unmentioned <= weightTolerance && math.Abs(net) > weightTolerance {
			return nil, fmt.Errorf("%w: no weight in unmentioned sectors to source from or allocate to", ErrZeroWeightSlice)
		}

		funding := 1.0
		if unmentioned > weightTolerance {
			funding = 1 - net/unmentioned
		}
		if funding < -weightTolerance {
			return nil, fmt.Errorf("%w: net change %.2f%% exceeds unmentioned weight %.2f%%",
				ErrInsufficientWeight, net*100, unmentioned*100)
		}
		for id, h := range comp {
			if !mentioned[h.Sector] {
				h.Weight = nonNegative(h.Weight * funding)
				comp[id] = h
			}
		}

		for _, c := range changes {
			change := c.net()
			current := before.sectorWeight(c.Sector)

			switch {
			case current > weightTolerance:
				factor := 1 + change/current
				if factor < -weightTolerance {
					return nil, fmt.Errorf("%w: cannot decrease %s by %.2f%% as it only has %.2f%%",
						ErrInsufficientWeight, c.Sector, c.DecreaseByWeight*100, current*100)
				}
				for id, h := range comp {
					if h.Sector == c.Sector {
						h.Weight = nonNegative(h.Weight * factor)
						comp[id] = h
					}
				}

			case change > weightTolerance:
				assets := before.sectorAssets(c.Sector)
				if len(assets) == 0 {
					return nil, fmt.Errorf("%w: %s", ErrEmptySector, c.Sector)
				}
				share := change / float64(len(assets))
				for _, id := range assets {
					h := comp[id]
					h.Weight += share
					comp[id] = h
				}

			case change < -weightTolerance:
				return nil, fmt.Errorf("%w: cannot decrease %s as it has no weight in the portfolio",
					ErrInsufficientWeight, c.Sector)
			}
		}

		return comp, nil
	})
	if err != nil {
		return nil, err
	}

	return &BatchResult{
		PortfolioID: portfolioID,
		Message:     "Batch adjustments applied successfully.",
		Adjustments: append([]SectorChange(nil), changes...),
	}, nil
}

func clamp01(w float64) float64 {
	return math.Min(1, math.Max(0, w))
}

func nonNegative(w float64) float64 {
	if w < 0 {
		return 0
	}
	return w
}
