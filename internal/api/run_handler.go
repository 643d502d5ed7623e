package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/repo"
)

// ListRuns возвращает список запусков с фильтрацией.
// GET /api/v1/runs?status=...&source=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.RunFilter{
		Status: domain.RunStatus(q.Get("status")),
		Source: q.Get("source"),
		Limit:  parseIntDefault(q.Get("limit"), repo.DefaultListLimit),
		Offset: parseIntDefault(q.Get("offset"), 0),
	}

	runs, err := h.runs.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run, false)
	}

	List(w, result, len(result))
}

// GetRun возвращает запуск с итогами всех задач.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run, true))
}

// parseIntDefault парсит неотрицательное число; иначе возвращает def.
func parseIntDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
