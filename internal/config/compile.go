package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/grafana/cloudmon-metrics/pkg/model"
)

// ErrKind classifies why a RawConfig failed to compile.
type ErrKind string

const (
	ErrUnknownTemplate    ErrKind = "unknown_template"
	ErrUnknownEnvironment ErrKind = "unknown_environment"
	ErrDuplicateMetric    ErrKind = "duplicate_metric"
	ErrMissingField       ErrKind = "missing_field"
	// ErrUnknownMetric is not one of the four kinds named by the
	// specification's ConfigError enum; it enforces the stated
	// invariant that every identifier an expression references must
	// resolve to a compiled FlagMetric key, by catching typos in
	// health_metrics.metrics at compile time rather than at first
	// evaluation.
	ErrUnknownMetric ErrKind = "unknown_metric"
	// ErrExpression wraps a compile-time failure from the expression
	// engine itself (syntax error, or an identifier the engine cannot
	// resolve against the declared metric set).
	ErrExpression ErrKind = "expression"
)

// ConfigError reports a single reason Compile refused a RawConfig.
// Compile always aborts on the first error; it does not accumulate.
type ConfigError struct {
	Kind    ErrKind
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Kind, e.Message)
}

func newErr(kind ErrKind, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// CompiledExpression pairs a substituted, dash-rewritten boolean
// expression with its pre-compiled program and health weight.
type CompiledExpression struct {
	Text    string
	Weight  uint8
	Program *vm.Program
}

// HealthDef is the compiled health definition for one service.
type HealthDef struct {
	Def      model.ServiceHealthDef
	Compiled []CompiledExpression
	// Identifiers maps each metric id in Def.MetricIDs to the expr
	// identifier it is bound to at evaluation time (dashes and dots
	// rewritten to underscores, since expr parses "-" as subtraction
	// and "." as member access).
	Identifiers map[string]string
}

// Plan is the immutable, fully-resolved configuration the rest of the
// system runs against. Nothing downstream re-reads RawConfig.
type Plan struct {
	Datasource      DatasourceConfig
	Server          ServerConfig
	StatusDashboard *StatusDashboardConfig
	HealthQuery     HealthQueryConfig
	Environments    []model.Environment

	// FlagMetrics is metric_id -> environment name -> compiled metric.
	FlagMetrics map[string]map[string]model.FlagMetric
	// HealthDefs is service_id (the health_metrics map key) -> compiled def.
	HealthDefs map[string]HealthDef
	// Services is the set of service names flag_metrics declared.
	Services map[string]struct{}
}

var varToken = regexp.MustCompile(`\$[^.]+`)

// substitute replaces recognized $name tokens with their bound value.
// Unrecognized tokens (e.g. a literal "$foo" with no binding) are left
// untouched, matching the template engine's lenient behavior.
func substitute(query string, vars map[string]string) string {
	return varToken.ReplaceAllStringFunc(query, func(tok string) string {
		if v, ok := vars[tok[1:]]; ok {
			return v
		}
		return tok
	})
}

func dashToUnderscore(id string) string {
	return strings.ReplaceAll(id, "-", "_")
}

func environmentKnown(envs []model.Environment, name string) bool {
	for _, e := range envs {
		if e.Name == name {
			return true
		}
	}
	return false
}

// Compile validates and expands a RawConfig into a Plan. It aborts on
// the first structural problem it finds: an unknown template or
// environment reference, a metric declared twice, or an expression
// that references an identifier no declared metric provides.
func Compile(raw *RawConfig) (*Plan, error) {
	plan := &Plan{
		Datasource:      raw.Datasource,
		Server:          raw.Server,
		StatusDashboard: raw.StatusDashboard,
		HealthQuery:     raw.HealthQuery,
		Environments:    raw.Environments,
		FlagMetrics:     map[string]map[string]model.FlagMetric{},
		HealthDefs:      map[string]HealthDef{},
		Services:        map[string]struct{}{},
	}

	if err := compileFlagMetrics(raw, plan); err != nil {
		return nil, err
	}
	if err := compileHealthMetrics(raw, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func compileFlagMetrics(raw *RawConfig, plan *Plan) error {
	for _, fm := range raw.FlagMetrics {
		if fm.Service == "" || fm.Name == "" {
			return newErr(ErrMissingField, "flag metric entry missing service or name")
		}
		tmpl, ok := raw.MetricTemplates[fm.Template.Name]
		if !ok {
			return newErr(ErrUnknownTemplate, "%s.%s references unknown template %q", fm.Service, fm.Name, fm.Template.Name)
		}

		metricID := fm.Service + "." + fm.Name
		if _, exists := plan.FlagMetrics[metricID]; exists {
			return newErr(ErrDuplicateMetric, "metric %q declared twice", metricID)
		}
		byEnv := map[string]model.FlagMetric{}

		for _, envOverride := range fm.Environments {
			if !environmentKnown(raw.Environments, envOverride.Name) {
				return newErr(ErrUnknownEnvironment, "%s references undeclared environment %q", metricID, envOverride.Name)
			}
			threshold := tmpl.Threshold
			if envOverride.Threshold != nil {
				threshold = *envOverride.Threshold
			}
			vars := map[string]string{"service": fm.Service, "environment": envOverride.Name}
			byEnv[envOverride.Name] = model.FlagMetric{
				Query:     substitute(tmpl.Query, vars),
				Op:        tmpl.Op,
				Threshold: threshold,
			}
		}

		plan.FlagMetrics[metricID] = byEnv
		plan.Services[fm.Service] = struct{}{}
	}
	return nil
}

func compileHealthMetrics(raw *RawConfig, plan *Plan) error {
	for serviceID, h := range raw.HealthMetrics {
		if h.Service == "" {
			return newErr(ErrMissingField, "health_metrics[%q] missing service", serviceID)
		}

		rewrite := map[string]string{}
		exprEnv := map[string]interface{}{}
		for _, metricID := range h.Metrics {
			if _, declared := plan.FlagMetrics[metricID]; !declared {
				return newErr(ErrUnknownMetric, "health_metrics[%q] references undeclared metric %q", serviceID, metricID)
			}
			rewritten := strings.ReplaceAll(dashToUnderscore(metricID), ".", "_")
			rewrite[metricID] = rewritten
			exprEnv[rewritten] = false
		}

		def := model.ServiceHealthDef{
			Service:   h.Service,
			Category:  h.Category,
			MetricIDs: h.Metrics,
		}
		if h.ComponentName != nil {
			def.ComponentName = *h.ComponentName
		}

		compiled := make([]CompiledExpression, 0, len(h.Expressions))
		for _, we := range h.Expressions {
			text := we.Expression
			for orig, rewritten := range rewrite {
				text = strings.ReplaceAll(text, orig, rewritten)
			}
			program, err := expr.Compile(text, expr.Env(exprEnv), expr.AsBool())
			if err != nil {
				return newErr(ErrExpression, "health_metrics[%q] expression %q: %v", serviceID, we.Expression, err)
			}
			def.Expressions = append(def.Expressions, model.WeightedExpression{Expression: text, Weight: we.Weight})
			compiled = append(compiled, CompiledExpression{Text: text, Weight: we.Weight, Program: program})
		}

		plan.HealthDefs[serviceID] = HealthDef{Def: def, Compiled: compiled, Identifiers: rewrite}
	}
	return nil
}
