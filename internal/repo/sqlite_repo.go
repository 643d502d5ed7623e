package repo

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/shaiso/Portfolium/internal/domain"
)

//go:embed sqlite_schema.sql
var sqliteSchemaSQL string

// SQLiteScheme - префикс database.url для файловой истории запусков.
const SQLiteScheme = "sqlite://"

// Время хранится текстом с фиксированной шириной, чтобы ORDER BY совпадал с хронологией.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRunRepo - история запусков в локальном файле SQLite.
// Подходит для одиночного сервера без Postgres.
type SQLiteRunRepo struct {
	db *sql.DB
}

// IsSQLiteURL сообщает, указывает ли database.url на файл SQLite.
func IsSQLiteURL(url string) bool {
	return strings.HasPrefix(url, SQLiteScheme)
}

// OpenSQLite открывает (или создаёт) файл базы и применяет схему.
// Принимает путь или URL вида sqlite:///var/lib/portfolium/runs.db.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRunRepo, error) {
	path = strings.TrimPrefix(path, SQLiteScheme)
	if path == "" {
		return nil, fmt.Errorf("open sqlite: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Один писатель: SQLite сериализует записи на уровне файла.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &SQLiteRunRepo{db: db}, nil
}

// Close закрывает файл базы.
func (r *SQLiteRunRepo) Close() error {
	return r.db.Close()
}

// Create сохраняет новый запуск.
func (r *SQLiteRunRepo) Create(ctx context.Context, run *domain.PlanRun) error {
	planJSON, err := json.Marshal(run.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	resultJSON, err := marshalResult(run.Result)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO plan_runs (id, status, plan, result, error, confidence, source,
		                       idempotency_key, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(),
		string(run.Status),
		string(planJSON),
		nullText(resultJSON),
		nullString(run.Error),
		run.Confidence,
		nullString(run.Source),
		nullString(run.IdempotencyKey),
		formatTime(run.CreatedAt),
		formatTimePtr(run.StartedAt),
		formatTimePtr(run.FinishedAt),
	)
	if err != nil {
		var sqlErr *sqlite.Error
		if errors.As(err, &sqlErr) && (sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает запуск по ID.
func (r *SQLiteRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PlanRun, error) {
	query := `SELECT ` + runColumns + ` FROM plan_runs WHERE id = ?`
	return scanSQLiteRun(r.db.QueryRowContext(ctx, query, id.String()))
}

// GetByIdempotencyKey возвращает запуск по ключу идемпотентности.
func (r *SQLiteRunRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PlanRun, error) {
	query := `SELECT ` + runColumns + ` FROM plan_runs WHERE idempotency_key = ?`
	return scanSQLiteRun(r.db.QueryRowContext(ctx, query, key))
}

// List возвращает запуски с фильтрацией, новые первыми.
func (r *SQLiteRunRepo) List(ctx context.Context, filter RunFilter) ([]domain.PlanRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM plan_runs
		WHERE (? IS NULL OR status = ?)
		  AND (? IS NULL OR source = ?)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`
	status, source := nullString(string(filter.Status)), nullString(filter.Source)
	rows, err := r.db.QueryContext(ctx, query,
		status, status,
		source, source,
		filter.limit(),
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return collectSQLiteRuns(rows)
}

// Update сохраняет статус, результат и временные метки запуска.
func (r *SQLiteRunRepo) Update(ctx context.Context, run *domain.PlanRun) error {
	resultJSON, err := marshalResult(run.Result)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE plan_runs
		SET status = ?, result = ?, error = ?, started_at = ?, finished_at = ?
		WHERE id = ?`,
		string(run.Status),
		nullText(resultJSON),
		nullString(run.Error),
		formatTimePtr(run.StartedAt),
		formatTimePtr(run.FinishedAt),
		run.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPending возвращает запуски в статусе PENDING, старые первыми.
func (r *SQLiteRunRepo) ListPending(ctx context.Context, limit int) ([]domain.PlanRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM plan_runs
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending runs: %w", err)
	}
	return collectSQLiteRuns(rows)
}

// --- Helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func collectSQLiteRuns(rows *sql.Rows) ([]domain.PlanRun, error) {
	defer rows.Close()

	var runs []domain.PlanRun
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanSQLiteRun(row rowScanner) (*domain.PlanRun, error) {
	var run domain.PlanRun
	var id, status, planJSON, createdAt string
	var resultJSON, runError, source, idempotencyKey, startedAt, finishedAt sql.NullString
	var confidence sql.NullFloat64

	err := row.Scan(
		&id,
		&status,
		&planJSON,
		&resultJSON,
		&runError,
		&confidence,
		&source,
		&idempotencyKey,
		&createdAt,
		&startedAt,
		&finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	run.Status = domain.RunStatus(status)

	if err := json.Unmarshal([]byte(planJSON), &run.Plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	if resultJSON.Valid {
		run.Result = &domain.PlanResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), run.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}

	if confidence.Valid {
		c := confidence.Float64
		run.Confidence = &c
	}
	run.Error = runError.String
	run.Source = source.String
	run.IdempotencyKey = idempotencyKey.String

	if run.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if run.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = parseTimePtr(finishedAt); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}

	return &run, nil
}

func nullText(data []byte) *string {
	if data == nil {
		return nil
	}
	s := string(data)
	return &s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(sqliteTimeLayout, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
