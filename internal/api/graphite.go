package api

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/grafana/cloudmon-metrics/internal/flagengine"
	"github.com/grafana/cloudmon-metrics/internal/graphiteclient"
)

// metric is one node Graphite's metrics-find tree walk returns.
type metric struct {
	AllowChildren uint8  `json:"allowChildren"`
	Expandable    uint8  `json:"expandable"`
	Leaf          uint8  `json:"leaf"`
	ID            string `json:"id"`
	Text          string `json:"text"`
}

func branch(id string) metric {
	return metric{AllowChildren: 1, Expandable: 1, Leaf: 0, ID: id, Text: id}
}

func leaf(id string) metric {
	return metric{AllowChildren: 0, Expandable: 0, Leaf: 1, ID: id, Text: id}
}

// findMetrics walks the synthetic Graphite namespace this Convertor
// exposes: "*" at the root splits into flag/health, each of which
// splits by environment, then by service; the flag branch then splits
// by metric, while health services are leaves.
func (h *Handler) findMetrics(query string) []metric {
	parts := strings.Split(query, ".")
	var metrics []metric

	switch {
	case len(parts) == 1 && parts[0] == "*":
		metrics = append(metrics, branch("flag"), branch("health"))

	case len(parts) == 2 && parts[1] == "*":
		for _, env := range h.plan.Environments {
			metrics = append(metrics, branch(env.Name))
		}

	case parts[0] == "flag" && len(parts) == 3:
		for service := range h.plan.Services {
			metrics = append(metrics, branch(service))
		}

	case parts[0] == "flag" && len(parts) == 4:
		if parts[3] == "*" {
			for id := range h.plan.FlagMetrics {
				if strings.HasPrefix(id, parts[2]) {
					metrics = append(metrics, leaf(id))
				}
			}
		} else {
			search := parts[2] + "." + parts[3]
			if _, ok := h.plan.FlagMetrics[search]; ok {
				metrics = append(metrics, leaf(search))
			}
		}

	case parts[0] == "health" && len(parts) == 3:
		for service := range h.plan.HealthDefs {
			metrics = append(metrics, leaf(service))
		}
	}

	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Text < metrics[j].Text })
	return metrics
}

func (h *Handler) metricsFind(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	h.writeJSONResponse(w, h.findMetrics(query))
}

func parseRenderParams(r *http.Request) (target, from, until string, maxDataPoints uint16, ok bool) {
	q := r.URL.Query()
	target = q.Get("target")
	if target == "" {
		return "", "", "", 0, false
	}
	from = q.Get("from")
	until = q.Get("until")
	n, err := strconv.Atoi(q.Get("maxDataPoints"))
	if err != nil {
		n = defaultMaxDataPoints
	}
	return target, from, until, uint16(n), true
}

// render implements GET/POST /render for both the "flag.<env>.<svc>.<metric>"
// and "health.<env>.<svc>" target forms.
func (h *Handler) render(w http.ResponseWriter, r *http.Request) {
	target, from, until, maxDataPoints, ok := parseRenderParams(r)
	if !ok {
		h.writeErrorResponse(w, http.StatusBadRequest, "target is required")
		return
	}

	parts := strings.Split(target, ".")
	if len(parts) == 0 {
		h.writeJSONResponse(w, []graphiteclient.Series{})
		return
	}

	switch parts[0] {
	case "flag":
		h.renderFlag(w, r, parts, from, until, maxDataPoints)
	case "health":
		h.renderHealth(w, r, parts, from, until, maxDataPoints)
	default:
		h.writeJSONResponse(w, []graphiteclient.Series{})
	}
}

func (h *Handler) renderFlag(w http.ResponseWriter, r *http.Request, parts []string, from, until string, maxDataPoints uint16) {
	if len(parts) != 4 {
		h.writeJSONResponse(w, []graphiteclient.Series{})
		return
	}
	environment := parts[1]
	metricName := parts[2] + "." + parts[3]

	targets := map[string]string{}
	if strings.HasSuffix(metricName, "*") {
		prefix := strings.TrimSuffix(metricName, "*")
		for id, byEnv := range h.plan.FlagMetrics {
			if !strings.HasPrefix(id, prefix) {
				continue
			}
			if fm, ok := byEnv[environment]; ok {
				targets[id] = fm.Query
			}
		}
	} else if byEnv, ok := h.plan.FlagMetrics[metricName]; ok {
		if fm, ok := byEnv[environment]; ok {
			targets[metricName] = fm.Query
		}
	}

	series, err := h.graphite.Render(r.Context(), graphiteclient.RenderRequest{
		Targets:       targets,
		From:          from,
		Until:         until,
		MaxDataPoints: maxDataPoints,
	})
	if err != nil {
		// Matches the upstream Graphite render contract: a backend
		// failure surfaces as a 200 with an error body, not a 5xx,
		// since many Graphite dashboards don't handle non-200 renders.
		h.writeJSONResponse(w, map[string]string{"message": "Error reading data from TSDB"})
		return
	}

	for i, s := range series {
		fm, ok := h.plan.FlagMetrics[s.Target][environment]
		if !ok {
			continue
		}
		for j := range s.Datapoints {
			flagged := flagengine.Flag(s.Value(j), fm)
			v := float32(0)
			if flagged {
				v = 1
			}
			series[i].Datapoints[j].Value = &v
		}
	}
	h.writeJSONResponse(w, series)
}

func (h *Handler) renderHealth(w http.ResponseWriter, r *http.Request, parts []string, from, until string, maxDataPoints uint16) {
	if len(parts) != 3 {
		h.writeJSONResponse(w, []graphiteclient.Series{})
		return
	}
	environment, service := parts[1], parts[2]

	points, err := h.evaluator.Evaluate(r.Context(), service, environment, from, until, maxDataPoints)
	if err != nil {
		h.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}

	datapoints := make([]graphiteclient.Datapoint, len(points))
	for i, p := range points {
		weight := float32(p.Weight)
		datapoints[i] = graphiteclient.Datapoint{Value: &weight, Timestamp: p.TS}
	}
	h.writeJSONResponse(w, []graphiteclient.Series{{Target: service, Datapoints: datapoints}})
}
