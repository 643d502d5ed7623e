package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Portfolium/internal/domain"
)

// uniqueViolation - код ошибки Postgres для нарушения UNIQUE.
const uniqueViolation = "23505"

const runColumns = `id, status, plan, result, error, confidence, source,
	       idempotency_key, created_at, started_at, finished_at`

// RunRepo - репозиторий запусков в Postgres.
// План и результат хранятся в JSONB.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Create создаёт новый запуск.
func (r *RunRepo) Create(ctx context.Context, run *domain.PlanRun) error {
	planJSON, err := json.Marshal(run.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	resultJSON, err := marshalResult(run.Result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO plan_runs (id, status, plan, result, error, confidence, source,
		                       idempotency_key, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		planJSON,
		resultJSON,
		nullString(run.Error),
		run.Confidence,
		nullString(run.Source),
		nullString(run.IdempotencyKey),
		run.CreatedAt,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает запуск по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PlanRun, error) {
	query := `SELECT ` + runColumns + ` FROM plan_runs WHERE id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey возвращает запуск по ключу идемпотентности.
func (r *RunRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PlanRun, error) {
	query := `SELECT ` + runColumns + ` FROM plan_runs WHERE idempotency_key = $1`
	return scanRun(r.pool.QueryRow(ctx, query, key))
}

// List возвращает запуски с фильтрацией, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.PlanRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM plan_runs
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR source = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		nullString(filter.Source),
		filter.limit(),
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return collectRuns(rows)
}

// Update сохраняет статус, результат и временные метки запуска.
func (r *RunRepo) Update(ctx context.Context, run *domain.PlanRun) error {
	resultJSON, err := marshalResult(run.Result)
	if err != nil {
		return err
	}

	query := `
		UPDATE plan_runs
		SET status = $2, result = $3, error = $4, started_at = $5, finished_at = $6
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		resultJSON,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPending возвращает запуски в статусе PENDING, старые первыми.
func (r *RunRepo) ListPending(ctx context.Context, limit int) ([]domain.PlanRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM plan_runs
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending runs: %w", err)
	}
	return collectRuns(rows)
}

// --- Helpers ---

func collectRuns(rows pgx.Rows) ([]domain.PlanRun, error) {
	defer rows.Close()

	var runs []domain.PlanRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanRun сканирует одну строку в PlanRun. pgx.Rows тоже реализует pgx.Row.
func scanRun(row pgx.Row) (*domain.PlanRun, error) {
	var run domain.PlanRun
	var planJSON, resultJSON []byte
	var runError, source, idempotencyKey *string

	err := row.Scan(
		&run.ID,
		&run.Status,
		&planJSON,
		&resultJSON,
		&runError,
		&run.Confidence,
		&source,
		&idempotencyKey,
		&run.CreatedAt,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if err := json.Unmarshal(planJSON, &run.Plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	if resultJSON != nil {
		run.Result = &domain.PlanResult{}
		if err := json.Unmarshal(resultJSON, run.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}

	if runError != nil {
		run.Error = *runError
	}
	if source != nil {
		run.Source = *source
	}
	if idempotencyKey != nil {
		run.IdempotencyKey = *idempotencyKey
	}

	return &run, nil
}

func marshalResult(result *domain.PlanResult) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return data, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
