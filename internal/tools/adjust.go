package tools

import (
	"context"
	"fmt"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/portfolio"
)

// AdjustSectorExposure меняет вес сектора: абсолютно (set_weight)
// или относительно (increase_by_weight / decrease_by_weight).
//
// Параметры:
//
//	{"portfolio_id": "P1", "sector": "Energy", "set_weight": 0.15}
//
// Результат: *portfolio.AdjustResult.
type AdjustSectorExposure struct {
	base
	store *portfolio.Store
}

// NewAdjustSectorExposure создаёт инструмент adjust_sector_exposure.
func NewAdjustSectorExposure(store *portfolio.Store) *AdjustSectorExposure {
	return &AdjustSectorExposure{
		store: store,
		base: base{schema: Schema{
			Name:        domain.ToolAdjustSectorExposure,
			Description: "Adjusts the weight of a specific sector by setting an absolute target, or increasing/decreasing by a relative amount.",
			Access:      domain.AccessWrite,
			Params: []Param{
				portfolioParam("The ID of the portfolio to modify (e.g., \"P1\")."),
				{Name: "sector", Kind: KindString, Required: true,
					Description: fmt.Sprintf("The sector to adjust. Available sectors are %v.", portfolio.Sectors)},
				{Name: "set_weight", Kind: KindNumber,
					Description: "The absolute target weight for the sector (e.g., 0.25 for 25%)."},
				{Name: "increase_by_weight", Kind: KindNumber,
					Description: "The relative amount to increase the sector's weight by (e.g., 0.05 for 5%)."},
				{Name: "decrease_by_weight", Kind: KindNumber,
					Description: "The relative amount to decrease the sector's weight by (e.g., 0.05 for 5%)."},
			},
		}},
	}
}

// Invoke выполняет корректировку.
func (t *AdjustSectorExposure) Invoke(ctx context.Context, params domain.Params) (any, error) {
	if err := t.prepare(ctx, params); err != nil {
		return nil, err
	}

	id, err := stringParam(t.Name(), params, "portfolio_id")
	if err != nil {
		return nil, err
	}
	sector, err := stringParam(t.Name(), params, "sector")
	if err != nil {
		return nil, err
	}

	var adj portfolio.Adjustment
	if adj.SetWeight, err = floatParam(t.Name(), params, "set_weight"); err != nil {
		return nil, err
	}
	if adj.IncreaseByWeight, err = floatParam(t.Name(), params, "increase_by_weight"); err != nil {
		return nil, err
	}
	if adj.DecreaseByWeight, err = floatParam(t.Name(), params, "decrease_by_weight"); err != nil {
		return nil, err
	}

	res, err := t.store.AdjustSector(id, sector, adj)
	if err != nil {
		return nil, classify(t.Name(), err)
	}
	return res, nil
}

func portfolioParam(description string) Param {
	return Param{Name: "portfolio_id", Kind: KindString, Required: true, Description: description}
}
