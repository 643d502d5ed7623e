package portfolio

import (
	"math"
	"math/rand/v2"
	"strconv"
)

// Sectors - сектора вселенной в стабильном порядке.
var Sectors = []string{"Financials", "Energy", "Banking", "Industrials", "Textiles"}

const (
	// DefaultAssetsPerSector: число активов в каждом секторе.
	DefaultAssetsPerSector = 4000

	// DefaultPortfolioSize: число активов в сгенерированном портфеле.
	DefaultPortfolioSize = 100

	// NotFound возвращается lookup_sectors для неизвестных активов.
	NotFound = "Not Found"

	assetPrefix = "BBID"
	minPrice    = 1.0
	maxPrice    = 5.0
)

// IsSector проверяет, что сектор есть во вселенной.
func IsSector(sector string) bool {
	for _, s := range Sectors {
		if s == sector {
			return true
		}
	}
	return false
}

// AssetID возвращает идентификатор актива по сквозному номеру (с 1).
func AssetID(n int) string {
	return assetPrefix + strconv.Itoa(n)
}

// Universe - неизменяемый справочник активов: сектор и цена.
type Universe struct {
	ids     []string
	sectors map[string]string
	prices  map[string]float64
}

// NewUniverse строит вселенную из len(Sectors)*assetsPerSector активов.
//
// Активы сектора i получают номера i*assetsPerSector+1 .. (i+1)*assetsPerSector,
// цены случайны в [1, 5] с точностью до цента.
func NewUniverse(assetsPerSector int, rnd *rand.Rand) *Universe {
	if assetsPerSector <= 0 {
		assetsPerSector = DefaultAssetsPerSector
	}

	total := len(Sectors) * assetsPerSector
	u := &Universe{
		ids:     make([]string, 0, total),
		sectors: make(map[string]string, total),
		prices:  make(map[string]float64, total),
	}

	for i, sector := range Sectors {
		for j := 1; j <= assetsPerSector; j++ {
			id := AssetID(i*assetsPerSector + j)
			price := minPrice + rnd.Float64()*(maxPrice-minPrice)

			u.ids = append(u.ids, id)
			u.sectors[id] = sector
			u.prices[id] = math.Round(price*100) / 100
		}
	}

	return u
}

// Sector возвращает сектор актива.
func (u *Universe) Sector(assetID string) (string, bool) {
	s, ok := u.sectors[assetID]
	return s, ok
}

// Price возвращает цену актива.
func (u *Universe) Price(assetID string) (float64, bool) {
	p, ok := u.prices[assetID]
	return p, ok
}

// Size возвращает число активов.
func (u *Universe) Size() int {
	return len(u.ids)
}
