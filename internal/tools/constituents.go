package tools

import (
	"context"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/portfolio"
)

// DefaultTopN - значение n для show_top_constituents по умолчанию.
const DefaultTopN = 20

// ShowTopConstituents возвращает N крупнейших позиций портфеля,
// опционально в пределах одного сектора.
//
// Результат: portfolio.Constituents (по убыванию веса).
type ShowTopConstituents struct {
	base
	store *portfolio.Store
}

// NewShowTopConstituents создаёт инструмент show_top_constituents.
func NewShowTopConstituents(store *portfolio.Store) *ShowTopConstituents {
	return &ShowTopConstituents{
		store: store,
		base: base{schema: Schema{
			Name:        domain.ToolShowTopConstituents,
			Description: "Shows the top N constituents of a portfolio, sorted by weight. Can be filtered by sector.",
			Access:      domain.AccessRead,
			Params: []Param{
				portfolioParam("The ID of the portfolio to view (e.g., \"P1\")."),
				{Name: "n", Kind: KindInteger,
					Description: "The number of top constituents to show. Defaults to 20."},
				{Name: "sector", Kind: KindString,
					Description: "Optional: the specific sector to view. If omitted, shows top constituents from the entire portfolio."},
			},
		}},
	}
}

// Invoke читает портфель.
func (t *ShowTopConstituents) Invoke(ctx context.Context, params domain.Params) (any, error) {
	if err := t.prepare(ctx, params); err != nil {
		return nil, err
	}

	id, err := stringParam(t.Name(), params, "portfolio_id")
	if err != nil {
		return nil, err
	}
	n, err := intParam(t.Name(), params, "n", DefaultTopN)
	if err != nil {
		return nil, err
	}
	sector, err := stringParam(t.Name(), params, "sector")
	if err != nil {
		return nil, err
	}

	top, err := t.store.TopConstituents(id, n, sector)
	if err != nil {
		return nil, classify(t.Name(), err)
	}
	return top, nil
}
