package tools

import (
	"context"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/portfolio"
)

// LookupSectors возвращает сектор каждого актива.
// Неизвестные активы получают "Not Found", а не ошибку.
type LookupSectors struct {
	base
	store *portfolio.Store
}

// NewLookupSectors создаёт инструмент lookup_sectors.
func NewLookupSectors(store *portfolio.Store) *LookupSectors {
	return &LookupSectors{
		store: store,
		base: base{schema: Schema{
			Name:        domain.ToolLookupSectors,
			Description: "Looks up the sector for a given list of asset IDs.",
			Access:      domain.AccessRead,
			Params:      []Param{assetIDsParam()},
		}},
	}
}

// Invoke выполняет поиск.
func (t *LookupSectors) Invoke(ctx context.Context, params domain.Params) (any, error) {
	if err := t.prepare(ctx, params); err != nil {
		return nil, err
	}

	ids, err := stringListParam(t.Name(), params, "asset_ids")
	if err != nil {
		return nil, err
	}
	return t.store.LookupSectors(ids), nil
}

// LookupPrices возвращает цену каждого актива.
type LookupPrices struct {
	base
	store *portfolio.Store
}

// NewLookupPrices создаёт инструмент lookup_prices.
func NewLookupPrices(store *portfolio.Store) *LookupPrices {
	return &LookupPrices{
		store: store,
		base: base{schema: Schema{
			Name:        domain.ToolLookupPrices,
			Description: "Looks up the price for a given list of asset IDs.",
			Access:      domain.AccessRead,
			Params:      []Param{assetIDsParam()},
		}},
	}
}

// Invoke выполняет поиск.
func (t *LookupPrices) Invoke(ctx context.Context, params domain.Params) (any, error) {
	if err := t.prepare(ctx, params); err != nil {
		return nil, err
	}

	ids, err := stringListParam(t.Name(), params, "asset_ids")
	if err != nil {
		return nil, err
	}
	return t.store.LookupPrices(ids), nil
}

func assetIDsParam() Param {
	return Param{
		Name:        "asset_ids",
		Kind:        KindStringList,
		Required:    true,
		Description: "A list of asset IDs to look up.",
	}
}
