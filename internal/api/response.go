package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-kit/log/level"

	"github.com/grafana/cloudmon-metrics/internal/graphiteclient"
	"github.com/grafana/cloudmon-metrics/internal/health"
)

func (h *Handler) writeJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		level.Error(h.logger).Log("msg", "failed to encode JSON response", "err", err)
	}
}

func (h *Handler) writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

// statusForError maps a health-evaluation error onto the HTTP status
// the v1 API and the render surface both use: 409 when the requested
// service or environment isn't configured, 500 for anything else
// (Graphite transport/decode failures, expression evaluation errors).
func statusForError(err error) int {
	var herr *health.HealthError
	if errors.As(err, &herr) {
		switch herr.Kind {
		case health.ErrServiceNotSupported, health.ErrEnvNotSupported:
			return http.StatusConflict
		default:
			return http.StatusInternalServerError
		}
	}
	var gerr *graphiteclient.GraphiteError
	if errors.As(err, &gerr) {
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
