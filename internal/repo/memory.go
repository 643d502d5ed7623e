package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Portfolium/internal/domain"
)

// MemoryRunRepo - хранилище запусков в памяти процесса.
// Используется, когда БД не настроена, и в тестах.
type MemoryRunRepo struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]domain.PlanRun
	byKey map[string]uuid.UUID
}

// NewMemoryRunRepo создаёт пустое хранилище.
func NewMemoryRunRepo() *MemoryRunRepo {
	return &MemoryRunRepo{
		runs:  make(map[uuid.UUID]domain.PlanRun),
		byKey: make(map[string]uuid.UUID),
	}
}

// Create сохраняет новый запуск.
func (r *MemoryRunRepo) Create(_ context.Context, run *domain.PlanRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; exists {
		return ErrAlreadyExists
	}
	if run.IdempotencyKey != "" {
		if _, exists := r.byKey[run.IdempotencyKey]; exists {
			return ErrAlreadyExists
		}
		r.byKey[run.IdempotencyKey] = run.ID
	}
	r.runs[run.ID] = *run
	return nil
}

// GetByID возвращает копию запуска.
func (r *MemoryRunRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.PlanRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &run, nil
}

// GetByIdempotencyKey возвращает запуск по ключу идемпотентности.
func (r *MemoryRunRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PlanRun, error) {
	r.mu.RLock()
	id, ok := r.byKey[key]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// List возвращает запуски с фильтрацией, новые первыми.
func (r *MemoryRunRepo) List(_ context.Context, filter RunFilter) ([]domain.PlanRun, error) {
	r.mu.RLock()
	var runs []domain.PlanRun
	for _, run := range r.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if filter.Source != "" && run.Source != filter.Source {
			continue
		}
		runs = append(runs, run)
	}
	r.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return page(runs, filter.Offset, filter.limit()), nil
}

// Update заменяет сохранённый запуск.
func (r *MemoryRunRepo) Update(_ context.Context, run *domain.PlanRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.runs[run.ID]
	if !ok {
		return ErrNotFound
	}
	updated := *run
	updated.IdempotencyKey = stored.IdempotencyKey
	r.runs[run.ID] = updated
	return nil
}

// ListPending возвращает запуски в статусе PENDING, старые первыми.
func (r *MemoryRunRepo) ListPending(_ context.Context, limit int) ([]domain.PlanRun, error) {
	r.mu.RLock()
	var runs []domain.PlanRun
	for _, run := range r.runs {
		if run.Status == domain.RunStatusPending {
			runs = append(runs, run)
		}
	}
	r.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return page(runs, 0, limit), nil
}

func page(runs []domain.PlanRun, offset, limit int) []domain.PlanRun {
	if offset >= len(runs) {
		return nil
	}
	runs = runs[offset:]
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}
