// Package model holds the data types shared by the config compiler,
// the health evaluator and the reporter: the compiled runtime view of
// a CloudMon deployment plus the wire shapes exchanged with Graphite
// and the Status Dashboard.
package model

import "fmt"

// Comparator is one of the three supported threshold comparisons.
type Comparator string

const (
	ComparatorLt Comparator = "lt"
	ComparatorGt Comparator = "gt"
	ComparatorEq Comparator = "eq"
)

// UnmarshalYAML accepts the lowercase scalar forms used in config files.
func (c *Comparator) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch Comparator(s) {
	case ComparatorLt, ComparatorGt, ComparatorEq:
		*c = Comparator(s)
		return nil
	default:
		return fmt.Errorf("model: unknown comparator %q", s)
	}
}

// MetricTemplate is a named, reusable query shape with a default
// comparator and threshold. Immutable once loaded.
type MetricTemplate struct {
	Query     string     `yaml:"query"`
	Op        Comparator `yaml:"op"`
	Threshold float32    `yaml:"threshold"`
}

// FlagMetric is a compiled, fully-substituted metric binding: one per
// (service, metric, environment) triple. Invariant: Query contains no
// remaining "$name" tokens referring to a known variable.
type FlagMetric struct {
	Query     string
	Op        Comparator
	Threshold float32
}

// WeightedExpression is one boolean expression and the health weight it
// contributes when it evaluates true.
type WeightedExpression struct {
	Expression string
	Weight     uint8
}

// ServiceHealthDef is the compiled health definition for one service:
// the ordered metric identifiers that feed its expressions, and the
// ordered, weighted expressions themselves.
type ServiceHealthDef struct {
	Service       string
	ComponentName string // empty means "no component configured"
	Category      string
	MetricIDs     []string
	Expressions   []WeightedExpression
}

// Environment names a deployment environment and the attributes used
// downstream to disambiguate Status Dashboard components of the same
// name.
type Environment struct {
	Name       string            `yaml:"name"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// ServiceHealthPoint is one evaluated sample of a service's health.
type ServiceHealthPoint struct {
	TS     uint32 `json:"ts"`
	Weight uint8  `json:"weight"`
	// Triggered lists every metric id whose flag was true at TS,
	// regardless of which weighted expression set Weight.
	Triggered []string `json:"triggered,omitempty"`
}

// ServiceHealthResponse is the wire shape of GET /api/v1/health.
type ServiceHealthResponse struct {
	Name            string               `json:"name"`
	ServiceCategory string               `json:"service_category"`
	Environment     string               `json:"environment"`
	Metrics         []ServiceHealthPoint `json:"metrics"`
}

// ComponentAttribute is a single (name, value) pair used to identify a
// Status Dashboard component.
type ComponentAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Component is a Reporter-side target: a Status Dashboard component
// name plus the attributes that disambiguate it.
type Component struct {
	Name       string
	Attributes []ComponentAttribute
}

// StatusDashboardComponent is the wire shape returned by
// GET /v2/components.
type StatusDashboardComponent struct {
	ID         uint32               `json:"id"`
	Name       string               `json:"name"`
	Attributes []ComponentAttribute `json:"attributes,omitempty"`
}

// IncidentData is the wire shape POSTed to the incident-creation
// endpoint.
type IncidentData struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Impact      uint8    `json:"impact"`
	Components  []uint32 `json:"components"`
	StartDate   string   `json:"start_date"`
	System      bool     `json:"system"`
	Type        string   `json:"type"`
}

const (
	DefaultIncidentTitle       = "System incident from monitoring system"
	DefaultIncidentDescription = "System-wide incident affecting one or multiple components. Created automatically."
	DefaultIncidentType        = "incident"
)
