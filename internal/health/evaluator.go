// Package health implements the health evaluator: for one service and
// environment, it fetches the service's declared metrics from Graphite
// over a time window and reduces each timestamp to a single weighted
// health sample by walking the service's weighted boolean expressions
// in declared order, evaluating only those whose weight exceeds the
// best match so far.
package health

import (
	"context"
	"fmt"
	"sort"

	"github.com/expr-lang/expr"

	"github.com/grafana/cloudmon-metrics/internal/config"
	"github.com/grafana/cloudmon-metrics/internal/flagengine"
	"github.com/grafana/cloudmon-metrics/internal/graphiteclient"
	"github.com/grafana/cloudmon-metrics/pkg/model"
)

// ErrKind classifies why Evaluate failed.
type ErrKind string

const (
	ErrServiceNotSupported ErrKind = "service_not_supported"
	ErrEnvNotSupported     ErrKind = "env_not_supported"
	ErrExpression          ErrKind = "expression"
)

// HealthError reports a failed Evaluate call.
type HealthError struct {
	Kind    ErrKind
	Message string
}

func (e *HealthError) Error() string {
	return fmt.Sprintf("health: %s: %s", e.Kind, e.Message)
}

// Evaluator computes service health against a compiled Plan.
type Evaluator struct {
	plan   *config.Plan
	client *graphiteclient.Client
}

// New builds an Evaluator over plan, fetching samples through client.
func New(plan *config.Plan, client *graphiteclient.Client) *Evaluator {
	return &Evaluator{plan: plan, client: client}
}

// Evaluate fetches the metrics behind service/environment over
// [from, to] (either may be an absolute Graphite timestamp or a
// relative expression such as "-5min") and returns one
// ServiceHealthPoint per timestamp at which at least one metric
// reported a sample, oldest first.
func (e *Evaluator) Evaluate(ctx context.Context, service, environment, from, to string, maxDataPoints uint16) ([]model.ServiceHealthPoint, error) {
	def, ok := e.plan.HealthDefs[service]
	if !ok {
		return nil, &HealthError{Kind: ErrServiceNotSupported, Message: fmt.Sprintf("service %q not configured", service)}
	}

	targets := make(map[string]string, len(def.Def.MetricIDs))
	for _, metricID := range def.Def.MetricIDs {
		byEnv, ok := e.plan.FlagMetrics[metricID]
		if !ok {
			continue
		}
		fm, ok := byEnv[environment]
		if !ok {
			return nil, &HealthError{Kind: ErrEnvNotSupported, Message: fmt.Sprintf("metric %q has no binding for environment %q", metricID, environment)}
		}
		targets[metricID] = fm.Query
	}

	series, err := e.client.Render(ctx, graphiteclient.RenderRequest{
		Targets:       targets,
		From:          from,
		Until:         to,
		MaxDataPoints: maxDataPoints,
	})
	if err != nil {
		return nil, err
	}

	// Reorganize Graphite's per-target series into a
	// timestamp -> metric_id -> flag map, skipping null samples.
	byTimestamp := map[uint32]map[string]bool{}
	var timestamps []uint32
	for _, s := range series {
		fm, known := e.plan.FlagMetrics[s.Target][environment]
		if !known {
			continue
		}
		for i := range s.Datapoints {
			v := s.Value(i)
			if v == nil {
				continue
			}
			ts := s.Timestamp(i)
			flags, seen := byTimestamp[ts]
			if !seen {
				flags = map[string]bool{}
				byTimestamp[ts] = flags
				timestamps = append(timestamps, ts)
			}
			flags[s.Target] = flagengine.Flag(v, fm)
		}
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	points := make([]model.ServiceHealthPoint, 0, len(timestamps))
	for _, ts := range timestamps {
		flags := byTimestamp[ts]
		env := make(map[string]interface{}, len(def.Identifiers))
		for metricID, ident := range def.Identifiers {
			env[ident] = flags[metricID]
		}

		var weight uint8
		for _, ce := range def.Compiled {
			if ce.Weight <= weight {
				continue
			}
			res, err := expr.Run(ce.Program, env)
			if err != nil {
				return nil, &HealthError{Kind: ErrExpression, Message: err.Error()}
			}
			if matched, _ := res.(bool); matched {
				weight = ce.Weight
			}
		}

		// Triggered lists every metric whose flag was true at ts,
		// independent of which expression set the weight.
		var triggered []string
		for _, metricID := range def.Def.MetricIDs {
			if flags[metricID] {
				triggered = append(triggered, metricID)
			}
		}
		points = append(points, model.ServiceHealthPoint{TS: ts, Weight: weight, Triggered: triggered})
	}
	return points, nil
}
