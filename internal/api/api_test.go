package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/orchestrator"
	"github.com/shaiso/Portfolium/internal/portfolio"
	"github.com/shaiso/Portfolium/internal/repo"
	"github.com/shaiso/Portfolium/internal/tools"
	"github.com/shaiso/Portfolium/internal/worker"
)

// countingExecutor выполняет запуски через worker и считает Notify.
type countingExecutor struct {
	*worker.Worker

	mu       sync.Mutex
	notified int
}

func (e *countingExecutor) Notify() {
	e.mu.Lock()
	e.notified++
	e.mu.Unlock()
}

func (e *countingExecutor) Notified() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notified
}

type fakePendingPublisher struct {
	ids []uuid.UUID
	err error
}

func (p *fakePendingPublisher) PublishPlanPending(_ context.Context, id uuid.UUID) error {
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, id)
	return nil
}

type staticSchedules []domain.ScheduledPlan

func (s staticSchedules) Schedules() []domain.ScheduledPlan { return s }

type testEnv struct {
	server     *httptest.Server
	runs       *repo.MemoryRunRepo
	executor   *countingExecutor
	portfolios *portfolio.Store
	registry   *tools.Registry
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := portfolio.New(portfolio.Config{Seed: 3, AssetsPerSector: 20, PortfolioSize: 10})
	if _, err := store.Generate("P1"); err != nil {
		t.Fatalf("generate portfolio: %v", err)
	}

	registry := tools.DefaultRegistry(store)
	orch := orchestrator.New(orchestrator.Config{Registry: registry, Logger: logger})
	runs := repo.NewMemoryRunRepo()
	exec := &countingExecutor{Worker: worker.New(worker.Config{Runs: runs, Runner: orch, Logger: logger})}

	cfg.Orchestrator = orch
	cfg.Executor = exec
	cfg.Runs = runs
	cfg.Portfolios = store
	cfg.Logger = logger
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = 0.7
	}

	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testEnv{server: server, runs: runs, executor: exec, portfolios: store, registry: registry}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

type dataOf[T any] struct {
	Data  T   `json:"data"`
	Total int `json:"total"`
}

const resetAndShow = `{"plan": [
	[{"tool_name": "reset_portfolio", "parameters": {"portfolio_id": "P1"}}],
	[{"tool_name": "show_top_constituents", "parameters": {"portfolio_id": "P1", "n": 3}}]
], "confidence": 0.9}`

func TestExecutePlan_ExecutorErrorClosesRun(t *testing.T) {
	env := newTestEnv(t, Config{})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(Config{
		Orchestrator:        orchestrator.New(orchestrator.Config{Registry: env.registry, Logger: logger}),
		Executor:            worker.New(worker.Config{Runs: env.runs, Logger: logger}),
		Runs:                env.runs,
		Portfolios:          env.portfolios,
		Logger:              logger,
		ConfidenceThreshold: 0.7,
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans", bytes.NewBufferString(resetAndShow))
	h.ExecutePlan(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	runs, err := env.runs.List(context.Background(), repo.RunFilter{})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Status != domain.RunStatusFailed || runs[0].FinishedAt == nil {
		t.Errorf("expected FAILED run with finish time, got %s", runs[0].Status)
	}
	if runs[0].Error != worker.ErrNoRunner.Error() {
		t.Errorf("expected runner error to be recorded, got %q", runs[0].Error)
	}
}

func TestExecutePlan_Completes(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp := env.do(t, http.MethodPost, "/api/v1/plans", resetAndShow)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("expected request id header")
	}

	run := decode[dataOf[RunResponse]](t, resp).Data
	if run.Status != domain.RunStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", run.Status, run.Error)
	}
	if run.TotalStages != 2 || len(run.Stages) != 2 {
		t.Fatalf("expected 2 stages, got total=%d stages=%d", run.TotalStages, len(run.Stages))
	}
	if run.FailedTasks != 0 || run.Abort != nil {
		t.Errorf("unexpected failures: %+v", run)
	}

	reset := run.Stages[0].Tasks[0]
	if reset.Summary != "Portfolio P1 has been successfully reset to its original composition." {
		t.Errorf("unexpected reset summary %q", reset.Summary)
	}
	if top := run.Stages[1].Tasks[0]; top.Summary != "Top 3 constituents by weight for portfolio P1:" {
		t.Errorf("unexpected top summary %q", top.Summary)
	}

	stored, err := env.runs.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("run not stored: %v", err)
	}
	if stored.Source != "api" || stored.Confidence == nil || *stored.Confidence != 0.9 {
		t.Errorf("unexpected stored run: source=%q confidence=%v", stored.Source, stored.Confidence)
	}
	if env.executor.Notified() != 0 {
		t.Error("sync execution must not wake the worker")
	}
}

func TestExecutePlan_AbortIsNotRequestError(t *testing.T) {
	env := newTestEnv(t, Config{})

	body := `{"plan": [[{"tool_name": "lookup_sectors", "parameters": {"asset_ids": "$previous"}}]]}`
	resp := env.do(t, http.MethodPost, "/api/v1/plans", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	run := decode[dataOf[RunResponse]](t, resp).Data
	if run.Status != domain.RunStatusAborted {
		t.Fatalf("expected ABORTED, got %s", run.Status)
	}
	if run.Abort == nil || run.Abort.Kind != domain.FailurePlaceholderResolution || run.Abort.Stage != 0 {
		t.Errorf("unexpected abort: %+v", run.Abort)
	}
}

func TestExecutePlan_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   ErrorCode
	}{
		{
			name:   "low confidence",
			body:   `{"plan": [[{"tool_name": "reset_portfolio", "parameters": {"portfolio_id": "P1"}}]], "confidence": 0.3}`,
			status: http.StatusUnprocessableEntity,
			code:   ErrCodeLowConfidence,
		},
		{
			name:   "unknown tool",
			body:   `{"plan": [[{"tool_name": "launch_rocket", "parameters": {}}]]}`,
			status: http.StatusBadRequest,
			code:   ErrCodeInvalidPlan,
		},
		{
			name:   "empty stage",
			body:   `{"plan": [[]]}`,
			status: http.StatusBadRequest,
			code:   ErrCodeInvalidPlan,
		},
		{
			name:   "malformed body",
			body:   `{"plan":`,
			status: http.StatusBadRequest,
			code:   ErrCodeBadRequest,
		},
		{
			name:   "confidence out of range",
			body:   `{"plan": [[{"tool_name": "reset_portfolio", "parameters": {"portfolio_id": "P1"}}]], "confidence": 1.5}`,
			status: http.StatusBadRequest,
			code:   ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Config{})

			resp := env.do(t, http.MethodPost, "/api/v1/plans", tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			if got := decode[ErrorResponse](t, resp); got.Error.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, got.Error.Code)
			}

			runs, _ := env.runs.List(context.Background(), repo.RunFilter{})
			if len(runs) != 0 {
				t.Errorf("rejected plan must not be recorded, got %d runs", len(runs))
			}
		})
	}
}

func TestSubmitPlan_NotifiesWorker(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp := env.do(t, http.MethodPost, "/api/v1/plans/async", resetAndShow)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	run := decode[dataOf[RunResponse]](t, resp).Data
	if run.Status != domain.RunStatusPending {
		t.Errorf("expected PENDING, got %s", run.Status)
	}
	if run.Stages != nil {
		t.Error("async response must not carry results")
	}
	if env.executor.Notified() != 1 {
		t.Errorf("expected worker to be notified once, got %d", env.executor.Notified())
	}

	pending, _ := env.runs.ListPending(context.Background(), 10)
	if len(pending) != 1 || pending[0].ID != run.ID {
		t.Errorf("expected run in pending list, got %+v", pending)
	}
}

func TestSubmitPlan_Publishes(t *testing.T) {
	pub := &fakePendingPublisher{}
	env := newTestEnv(t, Config{Publisher: pub})

	resp := env.do(t, http.MethodPost, "/api/v1/plans/async", resetAndShow)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	run := decode[dataOf[RunResponse]](t, resp).Data

	if len(pub.ids) != 1 || pub.ids[0] != run.ID {
		t.Errorf("expected plan.pending for %s, got %v", run.ID, pub.ids)
	}
	if env.executor.Notified() != 0 {
		t.Error("published run must not wake the worker directly")
	}
}

func TestSubmitPlan_PublishFailureFallsBackToNotify(t *testing.T) {
	env := newTestEnv(t, Config{Publisher: &fakePendingPublisher{err: io.ErrClosedPipe}})

	resp := env.do(t, http.MethodPost, "/api/v1/plans/async", resetAndShow)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if env.executor.Notified() != 1 {
		t.Errorf("expected fallback notify, got %d", env.executor.Notified())
	}
}

func TestValidatePlan(t *testing.T) {
	env := newTestEnv(t, Config{})

	body := `{"plan": {"stages": [
		{"tasks": [{"tool": "show_top_constituents", "params": {"portfolio_id": "P1"}}]},
		[{"tool_name": "lookup_sectors", "parameters": {"asset_ids": "$previous"}},
		 {"tool_name": "lookup_prices", "parameters": {"asset_ids": "$previous"}}]
	]}, "confidence": 0.1}`

	resp := env.do(t, http.MethodPost, "/api/v1/plans/validate", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	got := decode[dataOf[ValidateResponse]](t, resp).Data
	if !got.Valid || got.Stages != 2 || got.Tasks != 3 {
		t.Errorf("unexpected validation: %+v", got)
	}

	runs, _ := env.runs.List(context.Background(), repo.RunFilter{})
	if len(runs) != 0 {
		t.Error("validation must not create runs")
	}
}

func TestRuns_ListAndGet(t *testing.T) {
	env := newTestEnv(t, Config{})

	env.do(t, http.MethodPost, "/api/v1/plans", resetAndShow)
	env.do(t, http.MethodPost, "/api/v1/plans/async", resetAndShow)

	resp := env.do(t, http.MethodGet, "/api/v1/runs", "")
	list := decode[dataOf[[]RunResponse]](t, resp)
	if list.Total != 2 || len(list.Data) != 2 {
		t.Fatalf("expected 2 runs, got %d", list.Total)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/runs?status=PENDING", "")
	pending := decode[dataOf[[]RunResponse]](t, resp).Data
	if len(pending) != 1 || pending[0].Status != domain.RunStatusPending {
		t.Fatalf("expected one pending run, got %+v", pending)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/runs/"+pending[0].ID.String(), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	run := decode[dataOf[RunResponse]](t, resp).Data
	if run.Plan == nil || len(run.Plan.Stages) != 2 {
		t.Errorf("detailed run must include plan, got %+v", run.Plan)
	}

	if resp := env.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/api/v1/runs/not-a-uuid", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPortfolios(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp := env.do(t, http.MethodGet, "/api/v1/portfolios", "")
	if ids := decode[dataOf[[]string]](t, resp).Data; len(ids) != 1 || ids[0] != "P1" {
		t.Fatalf("expected [P1], got %v", ids)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/portfolios/P1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	p := decode[dataOf[PortfolioResponse]](t, resp).Data
	if p.Assets != 10 || len(p.Constituents) != 10 {
		t.Errorf("expected 10 constituents, got %d", p.Assets)
	}
	if p.TotalWeight < 0.999 || p.TotalWeight > 1.001 {
		t.Errorf("expected total weight 1, got %f", p.TotalWeight)
	}

	if resp := env.do(t, http.MethodGet, "/api/v1/portfolios/P404", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/portfolios/P2", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if !env.portfolios.Has("P2") {
		t.Error("portfolio P2 not generated")
	}

	resp = env.do(t, http.MethodGet, "/api/v1/portfolios/P1/sectors", "")
	sectors := decode[dataOf[[]SectorWeightResponse]](t, resp).Data
	if len(sectors) != len(portfolio.Sectors) {
		t.Fatalf("expected %d sectors, got %d", len(portfolio.Sectors), len(sectors))
	}
	for i := 1; i < len(sectors); i++ {
		if sectors[i].Weight > sectors[i-1].Weight {
			t.Errorf("sectors not sorted by weight: %+v", sectors)
			break
		}
	}
}

func TestCatalog(t *testing.T) {
	t.Run("tools", func(t *testing.T) {
		env := newTestEnv(t, Config{})

		resp := env.do(t, http.MethodGet, "/api/v1/tools", "")
		list := decode[dataOf[[]ToolResponse]](t, resp).Data
		if len(list) != env.registry.Count() {
			t.Fatalf("expected %d tools, got %d", env.registry.Count(), len(list))
		}
		for i := 1; i < len(list); i++ {
			if list[i].Name < list[i-1].Name {
				t.Errorf("tools not sorted: %s before %s", list[i-1].Name, list[i].Name)
			}
		}
	})

	t.Run("no scheduler", func(t *testing.T) {
		env := newTestEnv(t, Config{})

		resp := env.do(t, http.MethodGet, "/api/v1/schedules", "")
		if got := decode[dataOf[[]ScheduleResponse]](t, resp).Data; got == nil || len(got) != 0 {
			t.Errorf("expected empty list, got %v", got)
		}
	})

	t.Run("schedules", func(t *testing.T) {
		env := newTestEnv(t, Config{Schedules: staticSchedules{{
			Name:     "nightly",
			CronExpr: "0 3 * * *",
			Enabled:  true,
			Plan:     domain.NewPlan([]domain.Task{{Tool: domain.ToolResetPortfolio, Params: domain.Params{"portfolio_id": "P1"}}}),
		}}})

		resp := env.do(t, http.MethodGet, "/api/v1/schedules", "")
		got := decode[dataOf[[]ScheduleResponse]](t, resp).Data
		if len(got) != 1 || got[0].Name != "nightly" || got[0].Stages != 1 {
			t.Errorf("unexpected schedules: %+v", got)
		}
	})
}
