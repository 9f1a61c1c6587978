package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/grafana/cloudmon-metrics/pkg/model"
)

// HealthErrKind classifies why a call to the Convertor's health
// endpoint failed.
type HealthErrKind string

const (
	HealthErrTransport    HealthErrKind = "transport"
	HealthErrNotSupported HealthErrKind = "not_supported" // HTTP 409
	HealthErrServerStatus HealthErrKind = "server_status"
	HealthErrDecode       HealthErrKind = "decode"
)

// HealthClientError reports a failed call to the local health endpoint.
type HealthClientError struct {
	Kind    HealthErrKind
	Message string
	Status  int
}

func (e *HealthClientError) Error() string {
	return fmt.Sprintf("healthclient: %s: %s (status %d)", e.Kind, e.Message, e.Status)
}

// HealthClient queries the Convertor's own /api/v1/health endpoint.
// The Reporter is a client of the Convertor, not of the Health
// Evaluator directly, so it observes the same HTTP contract any other
// caller would.
type HealthClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHealthClient builds a HealthClient against the Convertor's base URL.
func NewHealthClient(baseURL string, timeout time.Duration) *HealthClient {
	return &HealthClient{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

// Query calls GET /api/v1/health with the given parameters.
func (c *HealthClient) Query(ctx context.Context, service, environment, from, to string, maxDataPoints uint32) (*model.ServiceHealthResponse, error) {
	q := url.Values{}
	q.Set("service", service)
	q.Set("environment", environment)
	q.Set("from", from)
	q.Set("to", to)
	if maxDataPoints > 0 {
		q.Set("max_data_points", fmt.Sprintf("%d", maxDataPoints))
	}

	endpoint := c.baseURL + "/api/v1/health?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &HealthClientError{Kind: HealthErrTransport, Message: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &HealthClientError{Kind: HealthErrTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, &HealthClientError{Kind: HealthErrNotSupported, Message: "service or environment not supported", Status: resp.StatusCode}
	case resp.StatusCode >= 400:
		return nil, &HealthClientError{Kind: HealthErrServerStatus, Message: "health query failed", Status: resp.StatusCode}
	}

	var out model.ServiceHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &HealthClientError{Kind: HealthErrDecode, Message: err.Error()}
	}
	return &out, nil
}
