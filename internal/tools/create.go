package tools

import (
	"context"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/portfolio"
)

// CreatePortfolio создаёт портфель с заданным составом.
// Состав становится исходным состоянием для reset_portfolio.
type CreatePortfolio struct {
	base
	store *portfolio.Store
}

// NewCreatePortfolio создаёт инструмент create_portfolio.
func NewCreatePortfolio(store *portfolio.Store) *CreatePortfolio {
	return &CreatePortfolio{
		store: store,
		base: base{schema: Schema{
			Name:        domain.ToolCreatePortfolio,
			Description: "Creates a new portfolio with the given composition.",
			Access:      domain.AccessWrite,
			Params: []Param{
				portfolioParam("The ID of the new portfolio (e.g., \"P2\")."),
				{Name: "initial_composition", Kind: KindObjectList, Required: true,
					Description: "A list of assets and their weights: [{asset_id, weight}]."},
			},
		}},
	}
}

// Invoke создаёт портфель.
func (t *CreatePortfolio) Invoke(ctx context.Context, params domain.Params) (any, error) {
	if err := t.prepare(ctx, params); err != nil {
		return nil, err
	}

	id, err := stringParam(t.Name(), params, "portfolio_id")
	if err != nil {
		return nil, err
	}
	var allocations []portfolio.Allocation
	if err := decodeParam(t.Name(), params, "initial_composition", &allocations); err != nil {
		return nil, err
	}

	res, err := t.store.Create(id, allocations)
	if err != nil {
		return nil, classify(t.Name(), err)
	}
	return res, nil
}
