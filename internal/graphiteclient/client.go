// Package graphiteclient issues a single /render request per poll
// against a Graphite-compatible time-series backend and decodes the
// response into typed series.
package graphiteclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrKind classifies why a Render call failed.
type ErrKind string

const (
	ErrTransport   ErrKind = "transport"
	ErrClientStatus ErrKind = "client_status"
	ErrDecode      ErrKind = "decode"
)

// GraphiteError reports a failed Render call.
type GraphiteError struct {
	Kind    ErrKind
	Message string
	Status  int
}

func (e *GraphiteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("graphiteclient: %s: %s (status %d)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("graphiteclient: %s: %s", e.Kind, e.Message)
}

// Series is one target's datapoints, as returned by /render?format=json.
type Series struct {
	Target     string      `json:"target"`
	Datapoints []Datapoint `json:"datapoints"`
}

// Datapoint is one [value, timestamp] pair. Value is nil when Graphite
// had no sample for that timestamp slot; Timestamp is always present.
type Datapoint struct {
	Value     *float32
	Timestamp uint32
}

// MarshalJSON encodes back into Graphite's [value, timestamp] array
// shape, the inverse of UnmarshalJSON. Used when this Convertor itself
// renders a series (flag.* and health.* targets) back to a caller.
func (d Datapoint) MarshalJSON() ([]byte, error) {
	var value interface{}
	if d.Value != nil {
		value = *d.Value
	}
	return json.Marshal([2]interface{}{value, d.Timestamp})
}

func (d *Datapoint) UnmarshalJSON(data []byte) error {
	var raw [2]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw[0] != nil {
		v := float32(*raw[0])
		d.Value = &v
	}
	if raw[1] != nil {
		d.Timestamp = uint32(*raw[1])
	}
	return nil
}

// Value returns the sample at index i, or nil if out of range or null.
func (s Series) Value(i int) *float32 {
	if i < 0 || i >= len(s.Datapoints) {
		return nil
	}
	return s.Datapoints[i].Value
}

// Timestamp returns the unix timestamp of datapoint i.
func (s Series) Timestamp(i int) uint32 {
	if i < 0 || i >= len(s.Datapoints) {
		return 0
	}
	return s.Datapoints[i].Timestamp
}

// Client queries a Graphite-compatible datasource.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RenderRequest describes one /render call: a set of named queries to
// alias-wrap, a time window (absolute Graphite-formatted or raw
// relative strings are both accepted, matching what the upstream
// accepts), and the point count to downsample to.
type RenderRequest struct {
	// Targets maps an alias (the name the caller wants back) to the
	// underlying Graphite query string.
	Targets       map[string]string
	From          string
	Until         string
	MaxDataPoints uint16
}

func aliasQuery(query, alias string) string {
	return fmt.Sprintf("alias(%s,'%s')", query, alias)
}

// graphiteTimeFormat is Graphite's absolute time format.
const graphiteTimeFormat = "15:04_20060102"

// formatGraphiteTime reformats an RFC3339 timestamp into Graphite's
// absolute HH:MM_YYYYMMDD form; any string that doesn't parse as
// RFC3339 (a relative expression such as "-5min") is passed through
// verbatim.
func formatGraphiteTime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.Format(graphiteTimeFormat)
}

// Render issues one GET /render request and returns one Series per
// requested target, in no guaranteed order.
func (c *Client) Render(ctx context.Context, req RenderRequest) ([]Series, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("maxDataPoints", strconv.Itoa(int(req.MaxDataPoints)))
	if req.From != "" {
		q.Set("from", formatGraphiteTime(req.From))
	}
	if req.Until != "" {
		q.Set("until", formatGraphiteTime(req.Until))
	}
	for alias, query := range req.Targets {
		q.Add("target", aliasQuery(query, alias))
	}

	endpoint := c.baseURL + "/render?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &GraphiteError{Kind: ErrTransport, Message: err.Error()}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &GraphiteError{Kind: ErrTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, &GraphiteError{Kind: ErrClientStatus, Message: "graphite rejected request", Status: resp.StatusCode}
	}

	var series []Series
	if err := json.NewDecoder(resp.Body).Decode(&series); err != nil {
		return nil, &GraphiteError{Kind: ErrDecode, Message: err.Error()}
	}
	return series, nil
}
