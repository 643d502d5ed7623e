package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/engine"
	"github.com/shaiso/Portfolium/internal/portfolio"
	"github.com/shaiso/Portfolium/internal/tools"
)

// --- Test helpers ---

// stubTool - инструмент для тестов с произвольным поведением.
type stubTool struct {
	name   domain.ToolName
	access domain.Access
	params []tools.Param
	fn     func(ctx context.Context, params domain.Params) (any, error)
}

func (p *stubTool) Name() domain.ToolName { return p.name }
func (p *stubTool) Access() domain.Access { return p.access }
func (p *stubTool) Schema() tools.Schema {
	return tools.Schema{Name: p.name, Access: p.access, Params: p.params}
}
func (p *stubTool) Invoke(ctx context.Context, params domain.Params) (any, error) {
	return p.fn(ctx, params)
}

func stub(name string, fn func(ctx context.Context, params domain.Params) (any, error)) *stubTool {
	return &stubTool{name: domain.ToolName(name), access: domain.AccessRead, fn: fn}
}

// echo возвращает значение параметра input.
func echo() *stubTool {
	return stub("echo", func(_ context.Context, params domain.Params) (any, error) {
		return params["input"], nil
	})
}

// value возвращает параметр value после необязательной задержки delay_ms.
func value() *stubTool {
	return stub("value", func(_ context.Context, params domain.Params) (any, error) {
		if ms, ok := params["delay_ms"].(int); ok {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return params["value"], nil
	})
}

func fail() *stubTool {
	return stub("fail", func(context.Context, domain.Params) (any, error) {
		return nil, fmt.Errorf("%w: boom", tools.ErrExecution)
	})
}

func newTestOrchestrator(t *testing.T, stubs ...tools.Tool) *Orchestrator {
	t.Helper()
	reg := tools.NewRegistry()
	for _, p := range stubs {
		reg.Register(p)
	}
	return New(Config{Registry: reg})
}

func task(name string, params domain.Params) domain.Task {
	return domain.Task{Tool: domain.ToolName(name), Params: params}
}

func mustRun(t *testing.T, o *Orchestrator, plan domain.Plan) *domain.PlanResult {
	t.Helper()
	res, err := o.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != domain.RunStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", res.Status)
	}
	return res
}

// newPortfolioOrchestrator создаёт оркестратор со встроенными инструментами
// и портфелем P1: Financials 0.4, Energy 0.2, Banking 0.2, Industrials 0.2.
func newPortfolioOrchestrator(t *testing.T, cfg Config) (*Orchestrator, *portfolio.Store) {
	t.Helper()

	store := portfolio.New(portfolio.Config{Seed: 42, AssetsPerSector: 50, PortfolioSize: 20})
	_, err := store.Create("P1", []portfolio.Allocation{
		{AssetID: "BBID1", Weight: 0.25},
		{AssetID: "BBID2", Weight: 0.15},
		{AssetID: "BBID51", Weight: 0.1},
		{AssetID: "BBID52", Weight: 0.1},
		{AssetID: "BBID101", Weight: 0.2},
		{AssetID: "BBID151", Weight: 0.2},
	})
	if err != nil {
		t.Fatalf("create P1: %v", err)
	}

	cfg.Registry = tools.DefaultRegistry(store)
	return New(cfg), store
}

func sectorWeight(t *testing.T, store *portfolio.Store, id, sector string) float64 {
	t.Helper()
	weights, err := store.SectorWeights(id)
	if err != nil {
		t.Fatalf("sector weights: %v", err)
	}
	return weights[sector]
}

// --- Ordering and concurrency ---

func TestRun_StagesNeverOverlap(t *testing.T) {
	var (
		mu      sync.Mutex
		counter int
		enters  = map[int][]int{}
		exits   = map[int][]int{}
	)

	counterProbe := stub("counter", func(_ context.Context, params domain.Params) (any, error) {
		stage := params["stage"].(int)

		mu.Lock()
		counter++
		enters[stage] = append(enters[stage], counter)
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		counter++
		exits[stage] = append(exits[stage], counter)
		mu.Unlock()
		return stage, nil
	})

	o := newTestOrchestrator(t, counterProbe)

	var stages [][]domain.Task
	for s := 0; s < 4; s++ {
		stage := make([]domain.Task, 3)
		for i := range stage {
			stage[i] = task("counter", domain.Params{"stage": s})
		}
		stages = append(stages, stage)
	}

	res := mustRun(t, o, domain.NewPlan(stages...))
	if len(res.Stages) != 4 {
		t.Fatalf("expected 4 stage results, got %d", len(res.Stages))
	}

	for s := 0; s < 3; s++ {
		lastExit := 0
		for _, v := range exits[s] {
			lastExit = max(lastExit, v)
		}
		for _, v := range enters[s+1] {
			if v <= lastExit {
				t.Errorf("stage %d task entered at %d before stage %d finished at %d", s+1, v, s, lastExit)
			}
		}
	}
}

func TestRun_TasksInStageRunConcurrently(t *testing.T) {
	const n = 4

	var arrived sync.WaitGroup
	arrived.Add(n)
	all := make(chan struct{})
	go func() {
		arrived.Wait()
		close(all)
	}()

	// Каждая задача ждёт, пока до барьера дойдут все остальные.
	// При последовательном запуске первая задача не дождётся.
	barrier := stub("barrier", func(ctx context.Context, _ domain.Params) (any, error) {
		arrived.Done()
		select {
		case <-all:
			return "passed", nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("barrier timeout: tasks are not concurrent")
		}
	})

	o := newTestOrchestrator(t, barrier)

	stage := make([]domain.Task, n)
	for i := range stage {
		stage[i] = task("barrier", nil)
	}

	res := mustRun(t, o, domain.NewPlan(stage))
	for _, outcome := range res.Stages[0].Outcomes {
		if !outcome.Succeeded() {
			t.Errorf("task %d: %v", outcome.Index, outcome.Failure)
		}
	}
}

func TestRun_WriteAndReadInSameStageAreNotSerialized(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	all := make(chan struct{})
	go func() {
		arrived.Wait()
		close(all)
	}()

	wait := func(context.Context, domain.Params) (any, error) {
		arrived.Done()
		select {
		case <-all:
			return "ok", nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("tasks were serialized")
		}
	}

	writer := &stubTool{name: "writer", access: domain.AccessWrite, fn: wait}
	reader := &stubTool{name: "reader", access: domain.AccessRead, fn: wait}
	o := newTestOrchestrator(t, writer, reader)

	res := mustRun(t, o, domain.NewPlan([]domain.Task{
		task("writer", domain.Params{"portfolio_id": "P1"}),
		task("reader", domain.Params{"portfolio_id": "P1"}),
	}))
	if res.Stages[0].Failed() != 0 {
		t.Errorf("expected both tasks to pass the barrier: %+v", res.Stages[0].Outcomes)
	}
}

// --- Previous output shape ---

func TestRun_SingleTaskOutputIsRaw(t *testing.T) {
	o := newTestOrchestrator(t, value(), echo())

	res := mustRun(t, o, domain.NewPlan(
		[]domain.Task{task("value", domain.Params{"value": []string{"BBID1", "BBID2"}})},
		[]domain.Task{task("echo", domain.Params{"input": domain.PlaceholderToken})},
	))

	got := res.Stages[1].Outcomes[0].Result
	want := []string{"BBID1", "BBID2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected raw result %v, got %#v", want, got)
	}
}

func TestRun_MultiTaskOutputIsOrderedList(t *testing.T) {
	o := newTestOrchestrator(t, value(), echo())

	// задачи завершаются в обратном порядке, выход всё равно в порядке объявления
	res := mustRun(t, o, domain.NewPlan(
		[]domain.Task{
			task("value", domain.Params{"value": "a", "delay_ms": 30}),
			task("value", domain.Params{"value": "b", "delay_ms": 15}),
			task("value", domain.Params{"value": "c"}),
		},
		[]domain.Task{task("echo", domain.Params{"input": domain.Placeholder{}})},
	))

	got := res.Stages[1].Outcomes[0].Result
	want := []any{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %#v", want, got)
	}
}

func TestRun_OutcomesKeepDeclarationOrder(t *testing.T) {
	o := newTestOrchestrator(t, value())

	res := mustRun(t, o, domain.NewPlan([]domain.Task{
		task("value", domain.Params{"value": 0, "delay_ms": 20}),
		task("value", domain.Params{"value": 1}),
	}))

	for i, outcome := range res.Stages[0].Outcomes {
		if outcome.Index != i || outcome.Result != i {
			t.Errorf("outcome %d: index=%d result=%v", i, outcome.Index, outcome.Result)
		}
	}
}

// --- Abort conditions ---

func TestRun_PlaceholderInFirstStageAbortsBeforeAnything(t *testing.T) {
	var calls int
	var mu sync.Mutex
	counting := stub("counting", func(context.Context, domain.Params) (any, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, nil
	})
	o := newTestOrchestrator(t, counting)

	res, err := o.Run(context.Background(), domain.NewPlan(
		[]domain.Task{
			task("counting", nil),
			task("counting", domain.Params{"input": domain.PlaceholderToken}),
		},
		[]domain.Task{task("counting", nil)},
	))

	var abortErr *AbortError
	if !errors.As(err, &abortErr) {
		t.Fatalf("expected AbortError, got %v", err)
	}
	if !errors.Is(err, ErrPlanAborted) || !errors.Is(err, engine.ErrNoPreviousOutput) {
		t.Errorf("unexpected error chain: %v", err)
	}
	if abortErr.Stage != 0 || abortErr.Failure.Kind != domain.FailurePlaceholderResolution {
		t.Errorf("unexpected abort: stage=%d kind=%s", abortErr.Stage, abortErr.Failure.Kind)
	}

	if calls != 0 {
		t.Errorf("expected no tool calls, got %d", calls)
	}
	if res == nil || res.Status != domain.RunStatusAborted {
		t.Fatalf("expected ABORTED result, got %+v", res)
	}
	if len(res.Stages) != 0 {
		t.Errorf("expected no stage results, got %d", len(res.Stages))
	}
	if res.Abort == nil || res.Abort.StageIndex != 0 {
		t.Errorf("expected abort at stage 0, got %+v", res.Abort)
	}
}

func TestRun_FailedOutputIsNeverForwarded(t *testing.T) {
	o := newTestOrchestrator(t, fail(), echo())

	res, err := o.Run(context.Background(), domain.NewPlan(
		[]domain.Task{task("fail", nil), task("fail", nil)},
		[]domain.Task{task("echo", domain.Params{"input": domain.PlaceholderToken})},
	))

	if !errors.Is(err, engine.ErrNoPreviousOutput) {
		t.Fatalf("expected ErrNoPreviousOutput, got %v", err)
	}
	if len(res.Stages) != 1 || res.Stages[0].Failed() != 2 {
		t.Errorf("expected the failed stage to be kept in the result: %+v", res.Stages)
	}
	if res.Abort.StageIndex != 1 {
		t.Errorf("expected abort at stage 1, got %d", res.Abort.StageIndex)
	}
}

func TestRun_CancelledBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cancelling := stub("cancel", func(context.Context, domain.Params) (any, error) {
		cancel()
		return "done", nil
	})
	var secondRan bool
	second := stub("second", func(context.Context, domain.Params) (any, error) {
		secondRan = true
		return nil, nil
	})
	o := newTestOrchestrator(t, cancelling, second)

	res, err := o.Run(ctx, domain.NewPlan(
		[]domain.Task{task("cancel", nil)},
		[]domain.Task{task("second", nil)},
	))

	if !errors.Is(err, ErrPlanCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if secondRan {
		t.Error("stage 1 must not run after cancellation")
	}
	if len(res.Stages) != 1 || !res.Stages[0].Outcomes[0].Succeeded() {
		t.Errorf("expected completed stage 0 in result, got %+v", res.Stages)
	}
	if res.Abort.Failure.Kind != domain.FailureStageFatal {
		t.Errorf("expected STAGE_FATAL, got %s", res.Abort.Failure.Kind)
	}
}

func TestRun_StrictModeRejectsConflictingStage(t *testing.T) {
	plan := domain.NewPlan([]domain.Task{
		{Tool: domain.ToolResetPortfolio, Params: domain.Params{"portfolio_id": "P1"}},
		{Tool: domain.ToolShowTopConstituents, Params: domain.Params{"portfolio_id": "P1"}},
	})

	strict, _ := newPortfolioOrchestrator(t, Config{Strict: true})
	res, err := strict.Run(context.Background(), plan)
	if !errors.Is(err, engine.ErrStageConflict) {
		t.Fatalf("expected ErrStageConflict, got %v", err)
	}
	if res.Abort.Failure.Kind != domain.FailureStageFatal || len(res.Stages) != 0 {
		t.Errorf("unexpected result: %+v", res)
	}

	permissive, _ := newPortfolioOrchestrator(t, Config{})
	mustRun(t, permissive, plan)
}

// --- Task-level failures ---

func TestRun_TaskIsolation(t *testing.T) {
	o := newTestOrchestrator(t, fail(), value())

	res := mustRun(t, o, domain.NewPlan(
		[]domain.Task{task("fail", nil), task("value", domain.Params{"value": "B"})},
		[]domain.Task{task("value", domain.Params{"value": "C"})},
	))

	first := res.Stages[0].Outcomes
	if len(first) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(first))
	}
	if first[0].Succeeded() || first[0].Failure.Kind != domain.FailureToolExecution {
		t.Errorf("expected TOOL_EXECUTION failure, got %+v", first[0])
	}
	if !first[1].Succeeded() || first[1].Result != "B" {
		t.Errorf("sibling must succeed: %+v", first[1])
	}
	if len(res.Stages) != 2 || res.Stages[1].Outcomes[0].Result != "C" {
		t.Errorf("later stage must run: %+v", res.Stages)
	}
	if got := len(res.Outcomes()); got != 3 {
		t.Errorf("expected 3 outcomes in total, got %d", got)
	}
}

func TestRun_FailureClassification(t *testing.T) {
	panicking := stub("panic", func(context.Context, domain.Params) (any, error) {
		panic("unexpected state")
	})
	slow := stub("slow", func(ctx context.Context, _ domain.Params) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
			return "too late", nil
		}
	})

	reg := tools.NewRegistry()
	reg.Register(panicking)
	reg.Register(slow)
	store := portfolio.New(portfolio.Config{Seed: 1, AssetsPerSector: 10})
	reg.Register(tools.NewShowTopConstituents(store))
	reg.Register(tools.NewCreatePortfolio(store))
	o := New(Config{Registry: reg, TaskTimeout: 20 * time.Millisecond})

	res := mustRun(t, o, domain.NewPlan([]domain.Task{
		task("no_such_tool", nil),
		task("panic", nil),
		task("slow", nil),
		{Tool: domain.ToolShowTopConstituents, Params: domain.Params{"portfolio_id": "P1", "n": -1}},
		{Tool: domain.ToolShowTopConstituents, Params: domain.Params{"portfolio_id": "missing"}},
		{Tool: domain.ToolCreatePortfolio, Params: domain.Params{
			"portfolio_id":        "PX",
			"initial_composition": []any{map[string]any{"asset_id": "NOPE", "weight": 1.0}},
		}},
	}))

	want := []domain.FailureKind{
		domain.FailureUnknownTool,
		domain.FailureToolExecution,
		domain.FailureCancelled,
		domain.FailureParameterValidation,
		domain.FailureToolExecution,
		domain.FailureToolExecution,
	}
	if len(res.Stages[0].Outcomes) != len(want) {
		t.Fatalf("expected %d outcomes, got %d", len(want), len(res.Stages[0].Outcomes))
	}
	for i, outcome := range res.Stages[0].Outcomes {
		if outcome.Succeeded() {
			t.Errorf("task %d: expected failure", i)
			continue
		}
		if outcome.Failure.Kind != want[i] {
			t.Errorf("task %d: expected %s, got %s (%s)", i, want[i], outcome.Failure.Kind, outcome.Failure.Message)
		}
		if outcome.Failure.Message == "" {
			t.Errorf("task %d: empty failure message", i)
		}
	}
}

func TestRun_NoRegistry(t *testing.T) {
	o := New(Config{})
	if _, err := o.Run(context.Background(), domain.NewPlan([]domain.Task{task("x", nil)})); !errors.Is(err, ErrNoRegistry) {
		t.Errorf("expected ErrNoRegistry, got %v", err)
	}
}

func TestValidate_UsesRegistry(t *testing.T) {
	o := newTestOrchestrator(t, value())

	if err := o.Validate(domain.NewPlan([]domain.Task{task("value", nil)})); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := o.Validate(domain.NewPlan([]domain.Task{task("value", nil)}, []domain.Task{task("nope", nil)})); !errors.Is(err, engine.ErrUnknownTool) {
		t.Errorf("expected ErrUnknownTool, got %v", err)
	}
}

// --- Portfolio scenarios ---

func TestScenario_IndependentTasksInOneStage(t *testing.T) {
	o, _ := newPortfolioOrchestrator(t, Config{})

	res := mustRun(t, o, domain.NewPlan([]domain.Task{
		{Tool: domain.ToolLookupSectors, Params: domain.Params{"asset_ids": []string{"X", "Y"}}},
		{Tool: domain.ToolShowTopConstituents, Params: domain.Params{"portfolio_id": "P1", "n": 3, "sector": "Energy"}},
	}))

	if len(res.Stages) != 1 || len(res.Stages[0].Outcomes) != 2 {
		t.Fatalf("expected one stage with two outcomes, got %+v", res.Stages)
	}

	lookups, ok := res.Stages[0].Outcomes[0].Result.(portfolio.SectorLookups)
	if !ok || len(lookups) != 2 || lookups[0].Sector != portfolio.NotFound {
		t.Errorf("unexpected lookup result: %#v", res.Stages[0].Outcomes[0].Result)
	}

	top, ok := res.Stages[0].Outcomes[1].Result.(portfolio.Constituents)
	if !ok || len(top) != 2 {
		t.Fatalf("unexpected show_top result: %#v", res.Stages[0].Outcomes[1].Result)
	}
	for _, c := range top {
		if c.Sector != "Energy" {
			t.Errorf("expected Energy constituents only, got %+v", c)
		}
	}
}

func TestScenario_ReadAfterWriteAcrossStages(t *testing.T) {
	o, _ := newPortfolioOrchestrator(t, Config{})

	res := mustRun(t, o, domain.NewPlan(
		[]domain.Task{{Tool: domain.ToolAdjustSectorExposure, Params: domain.Params{
			"portfolio_id": "P1", "sector": "Energy", "set_weight": 0.15,
		}}},
		[]domain.Task{{Tool: domain.ToolShowTopConstituents, Params: domain.Params{
			"portfolio_id": "P1", "n": 6, "sector": "Energy",
		}}},
	))

	top := res.Stages[1].Outcomes[0].Result.(portfolio.Constituents)
	var energy float64
	for _, c := range top {
		energy += c.Weight
	}
	if math.Abs(energy-0.15) > 1e-9 {
		t.Errorf("expected Energy weight 0.15 after adjustment, got %v", energy)
	}
}

func TestScenario_PlaceholderFeedsAssetIDs(t *testing.T) {
	o, store := newPortfolioOrchestrator(t, Config{})
	if _, err := store.Generate("P100"); err != nil {
		t.Fatalf("generate: %v", err)
	}

	res := mustRun(t, o, domain.NewPlan(
		[]domain.Task{{Tool: domain.ToolShowTopConstituents, Params: domain.Params{"portfolio_id": "P100", "n": 5}}},
		[]domain.Task{{Tool: domain.ToolLookupSectors, Params: domain.Params{"asset_ids": domain.PlaceholderToken}}},
	))

	top := res.Stages[0].Outcomes[0].Result.(portfolio.Constituents)
	if len(top) != 5 {
		t.Fatalf("expected 5 constituents, got %d", len(top))
	}

	resolved := res.Stages[1].Outcomes[0].Task.Params["asset_ids"]
	if !reflect.DeepEqual(resolved, top.AssetIDs()) {
		t.Errorf("expected asset_ids %v, got %v", top.AssetIDs(), resolved)
	}

	lookups := res.Stages[1].Outcomes[0].Result.(portfolio.SectorLookups)
	if len(lookups) != 5 {
		t.Errorf("expected 5 lookups, got %d", len(lookups))
	}
	for i, l := range lookups {
		if l.AssetID != top[i].AssetID || l.Sector != top[i].Sector {
			t.Errorf("lookup %d: expected %s/%s, got %s/%s", i, top[i].AssetID, top[i].Sector, l.AssetID, l.Sector)
		}
	}
}

func TestScenario_ResetIsIdempotent(t *testing.T) {
	o, store := newPortfolioOrchestrator(t, Config{})
	original, _ := store.Snapshot("P1")

	adjust := []domain.Task{{Tool: domain.ToolAdjustSectorExposure, Params: domain.Params{
		"portfolio_id": "P1", "sector": "Banking", "increase_by_weight": 0.1,
	}}}
	reset := []domain.Task{{Tool: domain.ToolResetPortfolio, Params: domain.Params{"portfolio_id": "P1"}}}

	mustRun(t, o, domain.NewPlan(adjust, reset))
	once, _ := store.Snapshot("P1")

	mustRun(t, o, domain.NewPlan(adjust, reset, reset))
	twice, _ := store.Snapshot("P1")

	if !reflect.DeepEqual(once, original) || !reflect.DeepEqual(twice, once) {
		t.Errorf("reset is not idempotent:\noriginal %v\nonce     %v\ntwice    %v", original, once, twice)
	}
}

// --- Concurrent plans ---

func TestConcurrentPlans_NoLostUpdates(t *testing.T) {
	o, store := newPortfolioOrchestrator(t, Config{})

	const plans = 20
	plan := domain.NewPlan([]domain.Task{{Tool: domain.ToolAdjustSectorExposure, Params: domain.Params{
		"portfolio_id": "P1", "sector": "Financials", "increase_by_weight": 0.01,
	}}})

	var wg sync.WaitGroup
	for i := 0; i < plans; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.Run(context.Background(), plan)
			if err != nil || res.Stages[0].Failed() != 0 {
				t.Errorf("plan failed: %v %+v", err, res)
			}
		}()
	}
	wg.Wait()

	if got := sectorWeight(t, store, "P1", "Financials"); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("expected Financials 0.6 after %d increments, got %v", plans, got)
	}
}

func TestConcurrentPlans_NoPlanLevelIsolation(t *testing.T) {
	reached := make(chan struct{})
	release := make(chan struct{})
	gate := stub("gate", func(context.Context, domain.Params) (any, error) {
		close(reached)
		<-release
		return nil, nil
	})

	store := portfolio.New(portfolio.Config{Seed: 42, AssetsPerSector: 50})
	_, err := store.Create("P1", []portfolio.Allocation{
		{AssetID: "BBID1", Weight: 0.5},
		{AssetID: "BBID51", Weight: 0.5},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	reg := tools.DefaultRegistry(store)
	reg.Register(gate)
	o := New(Config{Registry: reg})

	// План A: запись, пауза, сброс.
	done := make(chan *domain.PlanResult)
	go func() {
		res, _ := o.Run(context.Background(), domain.NewPlan(
			[]domain.Task{{Tool: domain.ToolAdjustSectorExposure, Params: domain.Params{
				"portfolio_id": "P1", "sector": "Energy", "set_weight": 0.3,
			}}},
			[]domain.Task{task("gate", nil)},
			[]domain.Task{{Tool: domain.ToolResetPortfolio, Params: domain.Params{"portfolio_id": "P1"}}},
		))
		done <- res
	}()
	<-reached

	// План B видит промежуточное состояние плана A.
	res := mustRun(t, o, domain.NewPlan([]domain.Task{{Tool: domain.ToolShowTopConstituents,
		Params: domain.Params{"portfolio_id": "P1", "sector": "Energy"}}}))
	top := res.Stages[0].Outcomes[0].Result.(portfolio.Constituents)
	if len(top) != 1 || math.Abs(top[0].Weight-0.3) > 1e-9 {
		t.Errorf("expected plan B to observe intermediate Energy 0.3, got %+v", top)
	}

	close(release)
	if a := <-done; a.Status != domain.RunStatusCompleted {
		t.Errorf("plan A: expected COMPLETED, got %s", a.Status)
	}
	if got := sectorWeight(t, store, "P1", "Energy"); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("expected Energy 0.5 after reset, got %v", got)
	}
}

// --- RunState ---

func TestRunState_Transitions(t *testing.T) {
	plan := domain.NewPlan([]domain.Task{task("a", nil)})
	state := NewRunState(plan)

	if state.Status() != domain.RunStatusPending {
		t.Fatalf("expected PENDING, got %s", state.Status())
	}
	if state.PreviousOutput().Present {
		t.Error("previous output must be absent initially")
	}
	if err := state.Finish(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("finish before start: expected ErrInvalidTransition, got %v", err)
	}

	if err := state.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := state.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second start: expected ErrInvalidTransition, got %v", err)
	}
	if err := state.Finish(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("finish with pending stages: expected ErrInvalidTransition, got %v", err)
	}
	if err := state.CompleteStage(domain.StageResult{Index: 3}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("wrong stage index: expected ErrInvalidTransition, got %v", err)
	}

	err := state.CompleteStage(domain.StageResult{Index: 0, Outcomes: []domain.TaskOutcome{
		{Status: domain.TaskStatusSucceeded, Result: "x"},
	}})
	if err != nil {
		t.Fatalf("complete stage: %v", err)
	}
	if out := state.PreviousOutput(); !out.Present || out.Value != "x" {
		t.Errorf("unexpected previous output: %+v", out)
	}
	if state.HasNext() {
		t.Error("expected no more stages")
	}
	if err := state.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := state.Abort(domain.NewFailure(domain.FailureStageFatal, "late")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("abort after finish: expected ErrInvalidTransition, got %v", err)
	}

	stats := state.Stats()
	if stats.TotalStages != 1 || stats.CompletedStages != 1 || stats.AttemptedTasks != 1 || stats.FailedTasks != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
