package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Portfolium/internal/domain"
)

func TestParsePlan_StageLists(t *testing.T) {
	data := `[
		[
			{"tool_name": "lookup_sectors", "parameters": {"asset_ids": ["BBID1", "BBID2"]}},
			{"tool_name": "show_top_constituents", "parameters": {"portfolio_id": "P1", "n": 3, "sector": "Energy"}}
		],
		[
			{"tool": "lookup_prices", "params": {"asset_ids": "$previous"}}
		]
	]`

	plan, err := ParsePlan([]byte(data), FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Stages) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(plan.Stages))
	}
	if len(plan.Stages[0].Tasks) != 2 {
		t.Errorf("expected 2 tasks in stage 0, got %d", len(plan.Stages[0].Tasks))
	}
	if plan.Stages[0].Tasks[1].Tool != domain.ToolShowTopConstituents {
		t.Errorf("expected show_top_constituents, got %s", plan.Stages[0].Tasks[1].Tool)
	}
	if n := plan.Stages[0].Tasks[1].Params["n"]; n != float64(3) {
		t.Errorf("expected n=3, got %v (%T)", n, n)
	}

	second := plan.Stages[1].Tasks[0]
	if second.Tool != domain.ToolLookupPrices {
		t.Errorf("short keys not accepted: tool=%q", second.Tool)
	}
	if !second.HasPlaceholder() {
		t.Error("expected placeholder in stage 1")
	}
}

func TestParsePlan_StageObjects(t *testing.T) {
	data := `{"stages": [
		{"tasks": [{"tool_name": "reset_portfolio", "parameters": {"portfolio_id": "P1"}}]},
		[{"tool_name": "show_top_constituents", "parameters": {"portfolio_id": "P1"}}]
	]}`

	plan, err := ParsePlan([]byte(data), FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Stages) != 2 || plan.TaskCount() != 2 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if plan.Stages[0].Tasks[0].Tool != domain.ToolResetPortfolio {
		t.Errorf("expected reset_portfolio, got %s", plan.Stages[0].Tasks[0].Tool)
	}
}

func TestParsePlan_ToolCalls(t *testing.T) {
	data := `{"tool_calls": [
		{"tool_name": "adjust_sector_exposure", "parameters": {"portfolio_id": "P1", "sector": "Energy", "set_weight": 0.15}},
		{"tool_name": "show_top_constituents", "parameters": {"portfolio_id": "P1", "n": 10, "sector": "Energy"}}
	]}`

	plan, err := ParsePlan([]byte(data), FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// каждый вызов становится отдельным этапом
	if len(plan.Stages) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(plan.Stages))
	}
	for i, stage := range plan.Stages {
		if len(stage.Tasks) != 1 {
			t.Errorf("stage %d: expected 1 task, got %d", i, len(stage.Tasks))
		}
	}
}

func TestParsePlan_DAG(t *testing.T) {
	data := `{"tasks": [
		{"id": "top", "tool_name": "show_top_constituents", "parameters": {"portfolio_id": "P100", "n": 5}},
		{"id": "sectors", "depends_on": ["top", "prices"], "tool_name": "lookup_sectors", "parameters": {"asset_ids": "$previous"}},
		{"id": "prices", "tool_name": "lookup_prices", "parameters": {"asset_ids": ["BBID1"]}}
	]}`

	plan, err := ParsePlan([]byte(data), FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Stages) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(plan.Stages))
	}
	if len(plan.Stages[0].Tasks) != 2 {
		t.Errorf("expected top and prices in stage 0, got %d tasks", len(plan.Stages[0].Tasks))
	}
	if plan.Stages[0].Tasks[0].Tool != domain.ToolShowTopConstituents || plan.Stages[0].Tasks[1].Tool != domain.ToolLookupPrices {
		t.Errorf("stage 0 should keep declaration order: %+v", plan.Stages[0].Tasks)
	}
	if plan.Stages[1].Tasks[0].Tool != domain.ToolLookupSectors {
		t.Errorf("expected lookup_sectors in stage 1, got %s", plan.Stages[1].Tasks[0].Tool)
	}
}

func TestParsePlan_YAML(t *testing.T) {
	data := `
stages:
  - tasks:
      - tool_name: show_top_constituents
        parameters:
          portfolio_id: P100
          n: 5
  - tasks:
      - tool_name: lookup_sectors
        parameters:
          asset_ids: $previous
`

	plan, err := ParsePlan([]byte(data), FormatYAML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Stages) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(plan.Stages))
	}
	if n := plan.Stages[0].Tasks[0].Params["n"]; n != float64(5) {
		t.Errorf("expected n=5, got %v (%T)", n, n)
	}
	if !domain.IsPlaceholder(plan.Stages[1].Tasks[0].Params["asset_ids"]) {
		t.Error("expected placeholder after YAML round trip")
	}
}

func TestParsePlan_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
		want   error
	}{
		{"empty", ``, FormatJSON, ErrEmptyPlan},
		{"empty object", `{}`, FormatJSON, ErrEmptyPlan},
		{"broken json", `[[{"tool_name": }]]`, FormatJSON, ErrMalformedPlan},
		{"task is not an object", `[["lookup_sectors"]]`, FormatJSON, ErrMalformedPlan},
		{"broken yaml", "stages: [\n  - {", FormatYAML, ErrMalformedPlan},
		{"dag cycle", `{"tasks": [{"id": "a", "depends_on": ["b"], "tool_name": "reset_portfolio"}, {"id": "b", "depends_on": ["a"], "tool_name": "reset_portfolio"}]}`, FormatJSON, ErrCyclicDependency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tt.data), tt.format)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]Format{
		"plan.yaml":      FormatYAML,
		"plans/plan.YML": FormatYAML,
		"plan.json":      FormatJSON,
		"plan":           FormatJSON,
	}
	for path, want := range cases {
		if got := FormatFromPath(path); got != want {
			t.Errorf("%s: expected %s, got %s", path, want, got)
		}
	}
}

func TestValidate(t *testing.T) {
	reset := domain.Task{Tool: domain.ToolResetPortfolio, Params: domain.Params{"portfolio_id": "P1"}}

	tests := []struct {
		name  string
		plan  domain.Plan
		want  error
		stage int
		task  int
	}{
		{"no stages", domain.Plan{}, ErrEmptyPlan, -1, -1},
		{"empty stage", domain.NewPlan([]domain.Task{reset}, nil), ErrEmptyStage, 1, -1},
		{"empty tool", domain.NewPlan([]domain.Task{reset, {}}), ErrUnknownTool, 0, 1},
		{"unknown tool", domain.NewPlan([]domain.Task{reset}, []domain.Task{{Tool: "rebalance_everything"}}), ErrUnknownTool, 1, 0},
		{"placeholder inside list", domain.NewPlan([]domain.Task{reset}, []domain.Task{
			reset,
			{Tool: domain.ToolLookupSectors, Params: domain.Params{"asset_ids": []any{"BBID1", domain.PlaceholderToken}}},
		}), ErrNestedPlaceholder, 1, 1},
		{"placeholder inside object", domain.NewPlan([]domain.Task{reset}, []domain.Task{
			{Tool: domain.ToolMoveWeight, Params: domain.Params{
				"portfolio_id": "P1",
				"from_sector":  "Energy",
				"to_sectors":   []any{map[string]any{"sector": "Banking", "weight_to_add": domain.PlaceholderToken}},
			}},
		}), ErrNestedPlaceholder, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.plan, nil)

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %T (%v)", err, err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if vErr.Stage != tt.stage || vErr.Task != tt.task {
				t.Errorf("expected stage %d task %d, got stage %d task %d", tt.stage, tt.task, vErr.Stage, vErr.Task)
			}
		})
	}
}

func TestParsePlan_NestedPlaceholderRejectedOnValidate(t *testing.T) {
	data := `[[{"tool_name": "show_top_constituents", "parameters": {"portfolio_id": "P1"}}],
		[{"tool_name": "lookup_sectors", "parameters": {"asset_ids": ["$previous"]}}]]`

	plan, err := ParsePlan([]byte(data), FormatJSON)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	err = Validate(plan, nil)
	if !errors.Is(err, ErrNestedPlaceholder) {
		t.Fatalf("expected ErrNestedPlaceholder, got %v", err)
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "asset_ids" {
		t.Errorf("expected error on asset_ids, got %+v", vErr)
	}
}

func TestValidate_ValidPlan(t *testing.T) {
	plan := domain.NewPlan(
		[]domain.Task{{Tool: domain.ToolShowTopConstituents, Params: domain.Params{"portfolio_id": "P1"}}},
		[]domain.Task{{Tool: domain.ToolLookupSectors, Params: domain.Params{"asset_ids": domain.Placeholder{}}}},
	)

	if err := Validate(plan, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_PlaceholderInFirstStageIsNotAParseError(t *testing.T) {
	plan := domain.NewPlan(
		[]domain.Task{{Tool: domain.ToolLookupSectors, Params: domain.Params{"asset_ids": domain.PlaceholderToken}}},
	)

	if err := Validate(plan, nil); err != nil {
		t.Errorf("placeholder in stage 0 must be reported at run time, got %v", err)
	}
}

func TestValidate_CustomKnownTools(t *testing.T) {
	plan := domain.NewPlan([]domain.Task{{Tool: domain.ToolLookupPrices}})

	onlyReset := func(n domain.ToolName) bool { return n == domain.ToolResetPortfolio }
	if err := Validate(plan, onlyReset); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("expected ErrUnknownTool, got %v", err)
	}
}
