package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/shaiso/Portfolium/internal/domain"
)

// RunStore - хранилище запусков планов.
//
// Реализации: RunRepo (Postgres), SQLiteRunRepo (локальный файл)
// и MemoryRunRepo (процесс без БД, тесты).
type RunStore interface {
	Create(ctx context.Context, run *domain.PlanRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PlanRun, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.PlanRun, error)
	List(ctx context.Context, filter RunFilter) ([]domain.PlanRun, error)
	Update(ctx context.Context, run *domain.PlanRun) error
	ListPending(ctx context.Context, limit int) ([]domain.PlanRun, error)
}

// RunFilter - параметры фильтрации запусков.
type RunFilter struct {
	Status domain.RunStatus
	Source string
	Limit  int
	Offset int
}

// DefaultListLimit используется, если Limit не задан.
const DefaultListLimit = 50

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

var (
	_ RunStore = (*RunRepo)(nil)
	_ RunStore = (*MemoryRunRepo)(nil)
	_ RunStore = (*SQLiteRunRepo)(nil)
)
