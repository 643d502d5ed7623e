package portfolio

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// Holding - позиция в портфеле.
type Holding struct {
	Weight float64 `json:"weight"`
	Sector string  `json:"sector"`
}

// Constituent - позиция вместе с идентификатором актива.
type Constituent struct {
	AssetID string  `json:"asset_id"`
	Weight  float64 `json:"weight"`
	Sector  string  `json:"sector"`
}

// composition - состав портфеля: asset_id → позиция.
type composition map[string]Holding

func (c composition) clone() composition {
	out := make(composition, len(c))
	for id, h := range c {
		out[id] = h
	}
	return out
}

func (c composition) sectorWeight(sector string) float64 {
	var total float64
	for _, h := range c {
		if h.Sector == sector {
			total += h.Weight
		}
	}
	return total
}

// sectorAssets возвращает активы сектора в отсортированном порядке.
func (c composition) sectorAssets(sector string) []string {
	var ids []string
	for id, h := range c {
		if h.Sector == sector {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// constituents возвращает позиции, отсортированные по убыванию веса.
// При равных весах порядок определяется asset_id.
func (c composition) constituents(filter func(Holding) bool) []Constituent {
	out := make([]Constituent, 0, len(c))
	for id, h := range c {
		if filter != nil && !filter(h) {
			continue
		}
		out = append(out, Constituent{AssetID: id, Weight: h.Weight, Sector: h.Sector})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].AssetID < out[j].AssetID
	})
	return out
}

// book - рабочее и исходное состояние одного портфеля.
//
// mu - блокировка по ключу portfolio_id: изменения портфеля держат её
// эксклюзивно на всё время операции.
type book struct {
	mu       sync.RWMutex
	working  composition
	original composition
}

// Config - конфигурация Store.
type Config struct {
	// Seed - зерно генератора цен и случайных портфелей.
	// 0 означает зерно от текущего времени.
	Seed uint64

	// AssetsPerSector - число активов в секторе (default: 4000).
	AssetsPerSector int

	// PortfolioSize - число активов в сгенерированном портфеле (default: 100).
	PortfolioSize int

	Logger *slog.Logger
}

// Store хранит портфели в памяти.
//
// Состояние не переживает перезапуск процесса.
type Store struct {
	universe *Universe
	size     int

	mu    sync.RWMutex
	books map[string]*book

	rndMu sync.Mutex
	rnd   *rand.Rand

	logger *slog.Logger
}

// New создаёт Store и генерирует вселенную активов.
func New(cfg Config) *Store {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	size := cfg.PortfolioSize
	if size <= 0 {
		size = DefaultPortfolioSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rnd := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	universe := NewUniverse(cfg.AssetsPerSector, rnd)
	if size > universe.Size() {
		size = universe.Size()
	}

	return &Store{
		universe: universe,
		size:     size,
		books:    make(map[string]*book),
		rnd:      rnd,
		logger:   logger,
	}
}

// Universe возвращает справочник активов.
func (s *Store) Universe() *Universe {
	return s.universe
}

// Has проверяет, существует ли портфель.
func (s *Store) Has(portfolioID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.books[portfolioID]
	return ok
}

// IDs возвращает отсортированный список портфелей.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.books))
	for id := range s.books {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Generate создаёт случайный равновесный портфель.
// Существующий портфель с тем же ID заменяется вместе с исходным состоянием.
func (s *Store) Generate(portfolioID string) ([]Constituent, error) {
	if portfolioID == "" {
		return nil, fmt.Errorf("%w: empty portfolio_id", ErrInvalidArgument)
	}

	s.rndMu.Lock()
	picks := s.rnd.Perm(s.universe.Size())[:s.size]
	s.rndMu.Unlock()

	weight := 1.0 / float64(s.size)
	comp := make(composition, s.size)
	for _, idx := range picks {
		id := s.universe.ids[idx]
		comp[id] = Holding{Weight: weight, Sector: s.universe.sectors[id]}
	}

	s.install(portfolioID, comp)

	s.logger.Debug("portfolio generated",
		"portfolio_id", portfolioID,
		"assets", len(comp),
	)

	return comp.constituents(nil), nil
}

// Allocation - актив и его вес при создании портфеля.
type Allocation struct {
	AssetID string  `json:"asset_id"`
	Weight  float64 `json:"weight"`
}

// CreateResult - итог создания портфеля.
type CreateResult struct {
	PortfolioID string        `json:"portfolio_id"`
	Assets      int           `json:"assets"`
	TotalWeight float64       `json:"total_weight"`
	Composition []Constituent `json:"composition"`
}

// AssetIDs возвращает активы созданного портфеля.
func (r *CreateResult) AssetIDs() []string {
	return constituentIDs(r.Composition)
}

// Create создаёт портфель с заданным составом.
// Состав становится и рабочим, и исходным состоянием.
func (s *Store) Create(portfolioID string, allocations []Allocation) (*CreateResult, error) {
	if portfolioID == "" {
		return nil, fmt.Errorf("%w: empty portfolio_id", ErrInvalidArgument)
	}
	if len(allocations) == 0 {
		return nil, fmt.Errorf("%w: initial_composition is empty", ErrInvalidArgument)
	}

	comp := make(composition, len(allocations))
	var total float64
	for _, a := range allocations {
		sector, ok := s.universe.Sector(a.AssetID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, a.AssetID)
		}
		if _, dup := comp[a.AssetID]; dup {
			return nil, fmt.Errorf("%w: duplicate asset %s", ErrInvalidArgument, a.AssetID)
		}
		if a.Weight < 0 || a.Weight > 1 {
			return nil, fmt.Errorf("%w: %s has weight %.4f", ErrInvalidWeight, a.AssetID, a.Weight)
		}
		comp[a.AssetID] = Holding{Weight: a.Weight, Sector: sector}
		total += a.Weight
	}
	if total > 1+weightTolerance {
		return nil, fmt.Errorf("%w: total weight %.4f exceeds 100%%", ErrInvalidWeight, total)
	}

	s.mu.Lock()
	if _, exists := s.books[portfolioID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPortfolioExists, portfolioID)
	}
	s.books[portfolioID] = &book{working: comp, original: comp.clone()}
	s.mu.Unlock()

	return &CreateResult{
		PortfolioID: portfolioID,
		Assets:      len(comp),
		TotalWeight: total,
		Composition: comp.constituents(nil),
	}, nil
}

// ResetResult - итог сброса портфеля.
type ResetResult struct {
	PortfolioID string `json:"portfolio_id"`
	Message     string `json:"message"`
}

// Reset возвращает рабочее состояние к исходному. Операция идемпотентна.
func (s *Store) Reset(portfolioID string) (*ResetResult, error) {
	b, err := s.book(portfolioID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s has no original state to reset to", ErrPortfolioNotFound, portfolioID)
	}

	b.mu.Lock()
	b.working = b.original.clone()
	b.mu.Unlock()

	return &ResetResult{
		PortfolioID: portfolioID,
		Message:     fmt.Sprintf("Portfolio %s has been successfully reset to its original composition.", portfolioID),
	}, nil
}

// install заменяет состояние портфеля целиком.
func (s *Store) install(portfolioID string, comp composition) {
	s.mu.Lock()
	b, exists := s.books[portfolioID]
	if !exists {
		s.books[portfolioID] = &book{working: comp, original: comp.clone()}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	b.mu.Lock()
	b.working = comp
	b.original = comp.clone()
	b.mu.Unlock()
}

func (s *Store) book(portfolioID string) (*book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[portfolioID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPortfolioNotFound, portfolioID)
	}
	return b, nil
}

// update применяет fn к копии рабочего состояния и сохраняет результат,
// если fn не вернула ошибку. Блокировка портфеля держится всё это время.
func (s *Store) update(portfolioID string, fn func(current composition) (composition, error)) error {
	b, err := s.book(portfolioID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := fn(b.working.clone())
	if err != nil {
		return err
	}
	b.working = next
	return nil
}

// view вызывает fn с рабочим состоянием под блокировкой на чтение.
// fn не должна изменять или сохранять переданный состав.
func (s *Store) view(portfolioID string, fn func(current composition) error) error {
	b, err := s.book(portfolioID)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	return fn(b.working)
}

func constituentIDs(cs []Constituent) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.AssetID
	}
	return ids
}
