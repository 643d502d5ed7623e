package tools

import (
	"context"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/portfolio"
)

// MoveWeight переносит вес из одного сектора в один или несколько других.
//
// Параметры:
//
//	{
//	    "portfolio_id": "P1",
//	    "from_sector": "Financials",
//	    "to_sectors": [
//	        {"sector": "Energy", "weight_to_add": 0.02},
//	        {"sector": "Textiles", "weight_to_add": 0.03}
//	    ]
//	}
type MoveWeight struct {
	base
	store *portfolio.Store
}

// NewMoveWeight создаёт инструмент move_weight.
func NewMoveWeight(store *portfolio.Store) *MoveWeight {
	return &MoveWeight{
		store: store,
		base: base{schema: Schema{
			Name:        domain.ToolMoveWeight,
			Description: "Moves a specified percentage of weight from a single source sector to one or more destination sectors.",
			Access:      domain.AccessWrite,
			Params: []Param{
				portfolioParam("The ID of the portfolio to modify (e.g., \"P1\")."),
				{Name: "from_sector", Kind: KindString, Required: true,
					Description: "The single sector from which to move weight."},
				{Name: "to_sectors", Kind: KindObjectList, Required: true,
					Description: "A list of destination sectors and the absolute weight to add to each: [{sector, weight_to_add}]."},
			},
		}},
	}
}

// Invoke выполняет перенос.
func (t *MoveWeight) Invoke(ctx context.Context, params domain.Params) (any, error) {
	if err := t.prepare(ctx, params); err != nil {
		return nil, err
	}

	id, err := stringParam(t.Name(), params, "portfolio_id")
	if err != nil {
		return nil, err
	}
	from, err := stringParam(t.Name(), params, "from_sector")
	if err != nil {
		return nil, err
	}
	var to []portfolio.SectorAmount
	if err := decodeParam(t.Name(), params, "to_sectors", &to); err != nil {
		return nil, err
	}

	res, err := t.store.MoveWeight(id, from, to)
	if err != nil {
		return nil, classify(t.Name(), err)
	}
	return res, nil
}
