package engine

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/portfolio"
	"github.com/shaiso/Portfolium/internal/tools"
)

// noChangeSummary возвращается, если корректировка не изменила ни одного веса.
const noChangeSummary = "No changes were made to the portfolio as it already meets the specified target."

// summaryFuncs - функции для шаблонов итогов.
var summaryFuncs = template.FuncMap{
	// pct - доля в проценты с двумя знаками: 0.0525 → "5.25%"
	"pct": func(v float64) string {
		return fmt.Sprintf("%.2f%%", v*100)
	},
}

// summaryTemplates - шаблоны итогов по инструментам.
// В шаблон передаётся summaryData.
var summaryTemplates = map[domain.ToolName]*template.Template{
	domain.ToolAdjustSectorExposure: mustSummary(
		`Adjusted {{ .Result.Sector }} in portfolio {{ .Result.PortfolioID }} to {{ pct .Result.FinalTargetWeight }}; ` +
			`{{ len .Result.ChangedAssets }} assets re-weighted.`),

	domain.ToolShowTopConstituents: mustSummary(
		`Top {{ .N }} constituents by weight for portfolio {{ .PortfolioID }}` +
			`{{ if .Sector }} in the {{ .Sector }} sector{{ end }}:`),

	domain.ToolMoveWeight: mustSummary(
		`Successfully moved {{ pct .Result.Amount }} from {{ .Result.FromSector }} to {{ .Result.Destinations }}.`),

	domain.ToolResetPortfolio: mustSummary(`{{ .Result.Message }}`),

	domain.ToolBatchAdjustSectors: mustSummary(`{{ .Result.Message }}`),

	domain.ToolLookupSectors: mustSummary(`Looked up sectors for {{ len .Result }} assets.`),

	domain.ToolLookupPrices: mustSummary(`Looked up prices for {{ len .Result }} assets.`),

	domain.ToolCreatePortfolio: mustSummary(
		`Created portfolio {{ .Result.PortfolioID }} with {{ .Result.Assets }} assets ({{ pct .Result.TotalWeight }} allocated).`),
}

func mustSummary(text string) *template.Template {
	return template.Must(template.New("").Funcs(summaryFuncs).Parse(text))
}

// summaryData - данные для шаблона итога.
type summaryData struct {
	Result      any
	PortfolioID string
	Sector      string
	N           int
}

// Summarize строит человекочитаемый итог задачи.
//
// Для неуспешной задачи итог - причина неудачи. Для инструментов без шаблона
// возвращается пустая строка.
func Summarize(o domain.TaskOutcome) (string, error) {
	if !o.Succeeded() {
		if o.Failure != nil {
			return o.Failure.Message, nil
		}
		return "", nil
	}

	if adj, ok := o.Result.(*portfolio.AdjustResult); ok && adj.Unchanged() {
		return noChangeSummary, nil
	}

	tmpl, ok := summaryTemplates[o.Task.Tool]
	if !ok {
		return "", nil
	}

	data := summaryData{
		Result:      o.Result,
		PortfolioID: o.Task.Params.PortfolioID(),
		N:           topN(o),
	}
	if s, ok := o.Task.Params["sector"].(string); ok {
		data.Sector = s
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrTemplateRender, o.Task.Tool, err)
	}
	return buf.String(), nil
}

// topN возвращает запрошенное n для show_top_constituents.
func topN(o domain.TaskOutcome) int {
	switch n := o.Task.Params["n"].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return tools.DefaultTopN
}
