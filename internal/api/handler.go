// Package api implements the Convertor's HTTP surface: the CloudMon
// v1 API (/api/v1/health) and the Graphite-compatible render/find
// surface (/render, /metrics/find, /functions, /tags/autoComplete/tags)
// that lets any Graphite dashboard query flag and health series
// directly.
package api

import (
	"net/http"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"

	"github.com/grafana/cloudmon-metrics/internal/config"
	"github.com/grafana/cloudmon-metrics/internal/graphiteclient"
	"github.com/grafana/cloudmon-metrics/internal/health"
)

// Handler serves both API surfaces over one compiled Plan, one Health
// Evaluator (for health.* series), and one Graphite client (for
// flag.* series, rendered directly against the datasource).
type Handler struct {
	plan      *config.Plan
	evaluator *health.Evaluator
	graphite  *graphiteclient.Client
	logger    log.Logger
}

// NewHandler builds a Handler.
func NewHandler(plan *config.Plan, evaluator *health.Evaluator, graphite *graphiteclient.Client, logger log.Logger) *Handler {
	return &Handler{plan: plan, evaluator: evaluator, graphite: graphite, logger: logger}
}

// RegisterRoutes wires every endpoint onto r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/", h.v1Root).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/info", h.v1Info).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/health", h.v1Health).Methods(http.MethodGet)

	r.HandleFunc("/functions", h.functions).Methods(http.MethodGet)
	r.HandleFunc("/metrics/find", h.metricsFind).Methods(http.MethodGet)
	r.HandleFunc("/render", h.render).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/tags/autoComplete/tags", h.tagsAutoComplete).Methods(http.MethodGet)
}

func (h *Handler) v1Root(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, map[string]string{"name": "v1"})
}

func (h *Handler) v1Info(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("V1 API of CloudMon\n"))
}

func (h *Handler) functions(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, map[string]interface{}{})
}

func (h *Handler) tagsAutoComplete(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, []string{})
}
