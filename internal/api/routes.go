package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Plans
	mux.Handle("POST /api/v1/plans", chain(http.HandlerFunc(h.ExecutePlan)))
	mux.Handle("POST /api/v1/plans/async", chain(http.HandlerFunc(h.SubmitPlan)))
	mux.Handle("POST /api/v1/plans/validate", chain(http.HandlerFunc(h.ValidatePlan)))

	// Runs
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))

	// Portfolios
	mux.Handle("GET /api/v1/portfolios", chain(http.HandlerFunc(h.ListPortfolios)))
	mux.Handle("GET /api/v1/portfolios/{id}", chain(http.HandlerFunc(h.GetPortfolio)))
	mux.Handle("POST /api/v1/portfolios/{id}", chain(http.HandlerFunc(h.GeneratePortfolio)))
	mux.Handle("GET /api/v1/portfolios/{id}/sectors", chain(http.HandlerFunc(h.GetSectorWeights)))

	// Catalog
	mux.Handle("GET /api/v1/tools", chain(http.HandlerFunc(h.ListTools)))
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
}
