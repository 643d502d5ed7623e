package api

import (
	"net/http"
)

// ListTools возвращает описания зарегистрированных инструментов.
// GET /api/v1/tools
func (h *Handler) ListTools(w http.ResponseWriter, r *http.Request) {
	schemas := h.orchestrator.Registry().Schemas()

	result := make([]ToolResponse, len(schemas))
	for i, s := range schemas {
		result[i] = ToolFromSchema(s)
	}

	List(w, result, len(result))
}

// ListSchedules возвращает расписания и время их следующего запуска.
// GET /api/v1/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	if h.schedules == nil {
		List(w, []ScheduleResponse{}, 0)
		return
	}

	schedules := h.schedules.Schedules()
	result := make([]ScheduleResponse, len(schedules))
	for i, s := range schedules {
		result[i] = ScheduleFromDomain(s)
	}

	List(w, result, len(result))
}
