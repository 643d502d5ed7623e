package tools

import (
	"context"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/portfolio"
)

// BatchAdjustSectors применяет пачку изменений секторов одной сбалансированной операцией.
//
// Параметры:
//
//	{
//	    "portfolio_id": "P1",
//	    "adjustments": [
//	        {"sector": "Energy", "increase_by_weight": 0.02},
//	        {"sector": "Financials", "decrease_by_weight": 0.01}
//	    ]
//	}
type BatchAdjustSectors struct {
	base
	store *portfolio.Store
}

// NewBatchAdjustSectors создаёт инструмент batch_adjust_sectors.
func NewBatchAdjustSectors(store *portfolio.Store) *BatchAdjustSectors {
	return &BatchAdjustSectors{
		store: store,
		base: base{schema: Schema{
			Name:        domain.ToolBatchAdjustSectors,
			Description: "Applies a batch of adjustments to multiple sectors in a single, balanced transaction.",
			Access:      domain.AccessWrite,
			Params: []Param{
				portfolioParam("The ID of the portfolio to modify (e.g., \"P1\")."),
				{Name: "adjustments", Kind: KindObjectList, Required: true,
					Description: "A list of adjustments to perform: [{sector, increase_by_weight, decrease_by_weight}]."},
			},
		}},
	}
}

// Invoke применяет пачку.
func (t *BatchAdjustSectors) Invoke(ctx context.Context, params domain.Params) (any, error) {
	if err := t.prepare(ctx, params); err != nil {
		return nil, err
	}

	id, err := stringParam(t.Name(), params, "portfolio_id")
	if err != nil {
		return nil, err
	}
	var changes []portfolio.SectorChange
	if err := decodeParam(t.Name(), params, "adjustments", &changes); err != nil {
		return nil, err
	}

	res, err := t.store.BatchAdjust(id, changes)
	if err != nil {
		return nil, classify(t.Name(), err)
	}
	return res, nil
}
