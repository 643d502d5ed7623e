package api

import (
	"net/http"
)

// ListPortfolios возвращает идентификаторы портфелей.
// GET /api/v1/portfolios
func (h *Handler) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	ids := h.portfolios.IDs()
	List(w, ids, len(ids))
}

// GetPortfolio возвращает рабочий состав портфеля по убыванию веса.
// GET /api/v1/portfolios/{id}
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	constituents, err := h.portfolios.Snapshot(id)
	if HandlePortfolioError(w, h.logger, err) {
		return
	}

	Success(w, PortfolioFromConstituents(id, constituents))
}

// GeneratePortfolio создаёт (или заменяет) случайный портфель.
// POST /api/v1/portfolios/{id}
func (h *Handler) GeneratePortfolio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	constituents, err := h.portfolios.Generate(id)
	if HandlePortfolioError(w, h.logger, err) {
		return
	}

	h.logger.Info("portfolio generated", "portfolio_id", id, "assets", len(constituents))
	Created(w, PortfolioFromConstituents(id, constituents))
}

// GetSectorWeights возвращает суммарные веса секторов.
// GET /api/v1/portfolios/{id}/sectors
func (h *Handler) GetSectorWeights(w http.ResponseWriter, r *http.Request) {
	weights, err := h.portfolios.SectorWeights(r.PathValue("id"))
	if HandlePortfolioError(w, h.logger, err) {
		return
	}

	result := SectorWeightsFromMap(weights)
	List(w, result, len(result))
}
