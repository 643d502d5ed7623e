package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/portfolio"
)

// Registry - реестр инструментов.
//
// Заполняется при старте, дальше только читается. Потокобезопасен.
type Registry struct {
	mu    sync.RWMutex
	tools map[domain.ToolName]Tool
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[domain.ToolName]Tool),
	}
}

// DefaultRegistry создаёт реестр со всеми встроенными инструментами над store.
func DefaultRegistry(store *portfolio.Store) *Registry {
	r := NewRegistry()

	r.Register(NewAdjustSectorExposure(store))
	r.Register(NewShowTopConstituents(store))
	r.Register(NewMoveWeight(store))
	r.Register(NewResetPortfolio(store))
	r.Register(NewBatchAdjustSectors(store))
	r.Register(NewLookupSectors(store))
	r.Register(NewLookupPrices(store))
	r.Register(NewCreatePortfolio(store))

	return r
}

// Register регистрирует инструмент.
// Инструмент с тем же именем будет перезаписан.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Lookup возвращает инструмент по имени.
// Возвращает ErrToolNotFound, если инструмент не зарегистрирован.
func (r *Registry) Lookup(name domain.ToolName) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return tool, nil
}

// Has проверяет, зарегистрирован ли инструмент.
func (r *Registry) Has(name domain.ToolName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.tools[name]
	return exists
}

// Names возвращает отсортированный список имён.
func (r *Registry) Names() []domain.ToolName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]domain.ToolName, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Schemas возвращает схемы всех инструментов, отсортированные по имени.
func (r *Registry) Schemas() []Schema {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Schema, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			out = append(out, tool.Schema())
		}
	}
	return out
}

// Count возвращает количество инструментов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
