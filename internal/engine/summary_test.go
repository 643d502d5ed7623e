package engine

import (
	"testing"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/portfolio"
)

func succeeded(tool domain.ToolName, params domain.Params, result any) domain.TaskOutcome {
	return domain.TaskOutcome{
		Task:   domain.Task{Tool: tool, Params: params},
		Status: domain.TaskStatusSucceeded,
		Result: result,
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name    string
		outcome domain.TaskOutcome
		want    string
	}{
		{
			name: "show top with sector",
			outcome: succeeded(domain.ToolShowTopConstituents,
				domain.Params{"portfolio_id": "P1", "n": float64(5), "sector": "Energy"}, portfolio.Constituents{}),
			want: "Top 5 constituents by weight for portfolio P1 in the Energy sector:",
		},
		{
			name: "show top default n",
			outcome: succeeded(domain.ToolShowTopConstituents,
				domain.Params{"portfolio_id": "P100"}, portfolio.Constituents{}),
			want: "Top 20 constituents by weight for portfolio P100:",
		},
		{
			name: "adjust",
			outcome: succeeded(domain.ToolAdjustSectorExposure, domain.Params{"portfolio_id": "P1"}, &portfolio.AdjustResult{
				PortfolioID: "P1", Sector: "Energy", FinalTargetWeight: 0.15,
				ChangedAssets: []portfolio.WeightChange{
					{AssetID: "BBID51", OldWeight: 0.1, NewWeight: 0.075},
					{AssetID: "BBID52", OldWeight: 0.1, NewWeight: 0.075},
				},
			}),
			want: "Adjusted Energy in portfolio P1 to 15.00%; 2 assets re-weighted.",
		},
		{
			name: "adjust without changes",
			outcome: succeeded(domain.ToolAdjustSectorExposure, domain.Params{"portfolio_id": "P1"}, &portfolio.AdjustResult{
				PortfolioID: "P1", Sector: "Energy", FinalTargetWeight: 0.2,
				ChangedAssets: []portfolio.WeightChange{{AssetID: "BBID51", OldWeight: 0.1, NewWeight: 0.1}},
			}),
			want: noChangeSummary,
		},
		{
			name: "reset",
			outcome: succeeded(domain.ToolResetPortfolio, domain.Params{"portfolio_id": "P1"},
				&portfolio.ResetResult{PortfolioID: "P1", Message: "Portfolio P1 has been reset."}),
			want: "Portfolio P1 has been reset.",
		},
		{
			name: "lookup sectors",
			outcome: succeeded(domain.ToolLookupSectors, domain.Params{},
				portfolio.SectorLookups{{AssetID: "BBID1", Sector: "Financials"}, {AssetID: "X", Sector: portfolio.NotFound}}),
			want: "Looked up sectors for 2 assets.",
		},
		{
			name: "failed task",
			outcome: domain.TaskOutcome{
				Task:    domain.Task{Tool: domain.ToolMoveWeight},
				Status:  domain.TaskStatusFailed,
				Failure: domain.NewFailure(domain.FailureParameterValidation, "missing required parameters: from_sector"),
			},
			want: "missing required parameters: from_sector",
		},
		{
			name:    "unknown tool",
			outcome: succeeded("custom", nil, 42),
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Summarize(tt.outcome)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
