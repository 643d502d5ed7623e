package tools

import (
	"context"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/portfolio"
)

// ResetPortfolio возвращает портфель к исходному составу.
// Повторный вызов ничего не меняет.
type ResetPortfolio struct {
	base
	store *portfolio.Store
}

// NewResetPortfolio создаёт инструмент reset_portfolio.
func NewResetPortfolio(store *portfolio.Store) *ResetPortfolio {
	return &ResetPortfolio{
		store: store,
		base: base{schema: Schema{
			Name:        domain.ToolResetPortfolio,
			Description: "Resets a portfolio to its original composition from the start of the session.",
			Access:      domain.AccessWrite,
			Params: []Param{
				portfolioParam("The ID of the portfolio to reset (e.g., \"P1\")."),
			},
		}},
	}
}

// Invoke выполняет сброс.
func (t *ResetPortfolio) Invoke(ctx context.Context, params domain.Params) (any, error) {
	if err := t.prepare(ctx, params); err != nil {
		return nil, err
	}

	id, err := stringParam(t.Name(), params, "portfolio_id")
	if err != nil {
		return nil, err
	}

	res, err := t.store.Reset(id)
	if err != nil {
		return nil, classify(t.Name(), err)
	}
	return res, nil
}
