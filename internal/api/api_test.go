package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/cloudmon-metrics/internal/config"
	"github.com/grafana/cloudmon-metrics/internal/graphiteclient"
	"github.com/grafana/cloudmon-metrics/internal/health"
)

const apiFixture = `
environments:
  - name: prod
metric_templates:
  latency:
    query: "dummy1($service.latency)"
    op: gt
    threshold: 100
flag_metrics:
  - name: latency
    service: api-service
    template:
      name: latency
    environments:
      - name: prod
health_metrics:
  svc1:
    service: api-service
    category: web
    metrics:
      - api-service.latency
    expressions:
      - expression: "api-service.latency"
        weight: 9
`

func newTestHandler(t *testing.T, graphiteHandler http.HandlerFunc) (*Handler, *mux.Router) {
	t.Helper()
	raw, err := config.LoadFromString(apiFixture)
	require.NoError(t, err)
	plan, err := config.Compile(raw)
	require.NoError(t, err)

	srv := httptest.NewServer(graphiteHandler)
	t.Cleanup(srv.Close)
	gc := graphiteclient.New(srv.URL, time.Second)
	evaluator := health.New(plan, gc)

	h := NewHandler(plan, evaluator, gc, log.NewNopLogger())
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return h, r
}

func TestV1Health_MissingParams(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health?service=api-service", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestV1Health_UnknownService(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health?service=nope&environment=prod&from=-5min&to=-2min", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestV1Health_Success(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"target":"api-service.latency","datapoints":[[150,1000]]}]`))
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health?service=svc1&environment=prod&from=-5min&to=-2min", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "svc1", resp["name"])
	assert.Equal(t, "web", resp["service_category"])
}

func TestMetricsFind_Root(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {})
	req := httptest.NewRequest(http.MethodGet, "/metrics/find?query=*", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var metrics []metric
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	require.Len(t, metrics, 2)
	assert.Equal(t, "flag", metrics[0].ID)
	assert.Equal(t, "health", metrics[1].ID)
}

func TestMetricsFind_FlagServices(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {})
	req := httptest.NewRequest(http.MethodGet, "/metrics/find?query=flag.prod.*", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var metrics []metric
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	require.Len(t, metrics, 1)
	assert.Equal(t, "api-service", metrics[0].ID)
}

func TestRender_FlagConvertsToBoolean(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"target":"api-service.latency","datapoints":[[150,1000],[50,1010]]}]`))
	})
	req := httptest.NewRequest(http.MethodGet, "/render?target=flag.prod.api-service.latency&maxDataPoints=100", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var series []graphiteclient.Series
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	require.Len(t, series, 1)
	require.Len(t, series[0].Datapoints, 2)
	require.NotNil(t, series[0].Value(0))
	assert.Equal(t, float32(1), *series[0].Value(0), "150 > 100 threshold flags true -> 1.0")
	require.NotNil(t, series[0].Value(1))
	assert.Equal(t, float32(0), *series[0].Value(1), "50 > 100 threshold flags false -> 0.0")
}

func TestRender_Health(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"target":"api-service.latency","datapoints":[[150,1000]]}]`))
	})
	req := httptest.NewRequest(http.MethodGet, "/render?target=health.prod.svc1&maxDataPoints=100&from=-5min&until=-2min", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var series []graphiteclient.Series
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	require.Len(t, series, 1)
	assert.Equal(t, "svc1", series[0].Target)
	require.NotNil(t, series[0].Value(0))
	assert.Equal(t, float32(9), *series[0].Value(0))
}

func TestRender_MissingTarget(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {})
	req := httptest.NewRequest(http.MethodGet, "/render", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFunctionsAndTagsEndpoints(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/functions", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/tags/autoComplete/tags", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
