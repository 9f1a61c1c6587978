package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/grafana/cloudmon-metrics/pkg/model"
)

// ErrKind classifies why a dashboard call failed.
type ErrKind string

const (
	ErrTransport       ErrKind = "transport"
	ErrNonSuccessStatus ErrKind = "non_success_status"
	ErrDecode          ErrKind = "decode"
)

// DashboardError reports a failed Status Dashboard call.
type DashboardError struct {
	Kind    ErrKind
	Message string
	Status  int
}

func (e *DashboardError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("dashboard: %s: %s (status %d)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("dashboard: %s: %s", e.Kind, e.Message)
}

// DashboardClient talks to the Status Dashboard's component and
// incident endpoints.
type DashboardClient struct {
	baseURL    string
	eventsPath string
	auth       AuthConfig
	httpClient *http.Client
}

// NewDashboardClient builds a DashboardClient. eventsPath defaults to
// "/v2/events" if empty.
func NewDashboardClient(baseURL, eventsPath string, auth AuthConfig, timeout time.Duration) *DashboardClient {
	if eventsPath == "" {
		eventsPath = "/v2/events"
	}
	return &DashboardClient{
		baseURL:    baseURL,
		eventsPath: eventsPath,
		auth:       auth,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *DashboardClient) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &DashboardError{Kind: ErrTransport, Message: err.Error()}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	headers, err := buildAuthHeader(c.auth)
	if err != nil {
		return nil, &DashboardError{Kind: ErrTransport, Message: err.Error()}
	}
	for k, v := range headers {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DashboardError{Kind: ErrTransport, Message: err.Error()}
	}
	return resp, nil
}

// FetchComponents retrieves the full component list, used both at
// bootstrap and on every cache-miss refresh.
func (c *DashboardClient) FetchComponents(ctx context.Context) ([]model.StatusDashboardComponent, error) {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/components", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &DashboardError{Kind: ErrNonSuccessStatus, Message: "failed to fetch components", Status: resp.StatusCode}
	}

	var components []model.StatusDashboardComponent
	if err := json.NewDecoder(resp.Body).Decode(&components); err != nil {
		return nil, &DashboardError{Kind: ErrDecode, Message: err.Error()}
	}
	return components, nil
}

// CreateIncident POSTs a single incident. The dashboard's configured
// events path defaults to "/v2/events" but is an alias some
// deployments rename to "/v2/incidents".
func (c *DashboardClient) CreateIncident(ctx context.Context, incident model.IncidentData) error {
	payload, err := json.Marshal(incident)
	if err != nil {
		return &DashboardError{Kind: ErrTransport, Message: err.Error()}
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+c.eventsPath, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DashboardError{Kind: ErrNonSuccessStatus, Message: "failed to create incident", Status: resp.StatusCode}
	}
	return nil
}
