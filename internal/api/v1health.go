package api

import (
	"net/http"
	"strconv"

	"github.com/grafana/cloudmon-metrics/pkg/model"
)

const defaultMaxDataPoints = 100

// v1Health implements GET /api/v1/health?service=&environment=&from=&to=[&max_data_points=].
func (h *Handler) v1Health(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	service := q.Get("service")
	environment := q.Get("environment")
	from := q.Get("from")
	to := q.Get("to")

	if service == "" || environment == "" || from == "" || to == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "service, environment, from and to are required")
		return
	}

	maxDataPoints := defaultMaxDataPoints
	if raw := q.Get("max_data_points"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeErrorResponse(w, http.StatusBadRequest, "max_data_points must be an integer")
			return
		}
		maxDataPoints = n
	}

	def, ok := h.plan.HealthDefs[service]
	if !ok {
		h.writeErrorResponse(w, http.StatusConflict, "service not supported")
		return
	}

	points, err := h.evaluator.Evaluate(r.Context(), service, environment, from, to, uint16(maxDataPoints))
	if err != nil {
		h.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}

	h.writeJSONResponse(w, model.ServiceHealthResponse{
		Name:            service,
		ServiceCategory: def.Def.Category,
		Environment:     environment,
		Metrics:         points,
	})
}
