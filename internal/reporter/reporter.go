// Package reporter implements the Dispatcher control loop: it polls
// the Convertor's health endpoint for every configured (environment,
// service) pair and turns a non-zero health weight into a Status
// Dashboard incident.
package reporter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/grafana/cloudmon-metrics/internal/config"
	"github.com/grafana/cloudmon-metrics/pkg/model"
)

const (
	bootstrapMaxAttempts = 3
	bootstrapRetryDelay  = 60 * time.Second
	pollInterval         = 60 * time.Second
)

// target is one (environment, service) pair the control loop polls,
// paired with the dashboard component it reports incidents against.
type target struct {
	service     string
	environment string
	component   model.Component
}

// Reporter owns the control loop: the component cache, the health and
// dashboard clients, and the poll schedule. It is not safe for
// concurrent use; it is driven by exactly one goroutine (Run).
type Reporter struct {
	logger    *zap.Logger
	health    *HealthClient
	dashboard *DashboardClient

	targets []target
	cache   *ComponentCache

	queryFrom string
	queryTo   string
}

// New builds a Reporter from a compiled Plan. Services whose health
// definition has no component_name are logged and excluded from the
// target set, per the configured-component-required invariant.
func New(plan *config.Plan, health *HealthClient, dashboard *DashboardClient, logger *zap.Logger) *Reporter {
	r := &Reporter{
		logger:    logger,
		health:    health,
		dashboard: dashboard,
		queryFrom: plan.HealthQuery.QueryFrom,
		queryTo:   plan.HealthQuery.QueryTo,
	}

	for serviceID, hd := range plan.HealthDefs {
		if hd.Def.ComponentName == "" {
			logger.Info("skipping service with no component_name", zap.String("service", serviceID))
			continue
		}
		for _, env := range plan.Environments {
			r.targets = append(r.targets, target{
				service:     serviceID,
				environment: env.Name,
				component: model.Component{
					Name:       hd.Def.ComponentName,
					Attributes: sortedAttributes(toAttributes(env.Attributes)),
				},
			})
		}
	}
	return r
}

func toAttributes(m map[string]string) []model.ComponentAttribute {
	out := make([]model.ComponentAttribute, 0, len(m))
	for k, v := range m {
		out = append(out, model.ComponentAttribute{Name: k, Value: v})
	}
	return out
}

// Bootstrap fetches the initial component cache, making up to
// bootstrapMaxAttempts attempts with bootstrapRetryDelay between
// them. A total failure is fatal: the caller should exit the
// process rather than run the control loop without a cache.
func (r *Reporter) Bootstrap(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= bootstrapMaxAttempts; attempt++ {
		components, err := r.dashboard.FetchComponents(ctx)
		if err == nil {
			r.cache = BuildComponentCache(components)
			r.logger.Info("component cache bootstrapped", zap.Int("components", len(components)))
			return nil
		}
		lastErr = err
		r.logger.Error("bootstrap attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < bootstrapMaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(bootstrapRetryDelay):
			}
		}
	}
	return lastErr
}

// Run drives the polling loop until ctx is canceled (SIGINT/SIGTERM at
// the process boundary). Each iteration polls every target once, then
// sleeps pollInterval before the next.
func (r *Reporter) Run(ctx context.Context) {
	for {
		r.pollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(pollInterval):
		}
	}
}

func (r *Reporter) pollOnce(ctx context.Context) {
	for _, t := range r.targets {
		r.pollTarget(ctx, t)
	}
}

func (r *Reporter) pollTarget(ctx context.Context, t target) {
	log := r.logger.With(zap.String("service", t.service), zap.String("environment", t.environment))

	resp, err := r.health.Query(ctx, t.service, t.environment, r.queryFrom, r.queryTo, 100)
	if err != nil {
		log.Debug("health query failed, skipping", zap.Error(err))
		return
	}
	if len(resp.Metrics) == 0 {
		return
	}

	point := resp.Metrics[len(resp.Metrics)-1]
	if point.Weight == 0 {
		return
	}

	id, ok := r.cache.Find(t.component)
	if !ok {
		r.refreshCache(ctx, log)
		id, ok = r.cache.Find(t.component)
		if !ok {
			log.Info("component not found after refresh, skipping", zap.String("component", t.component.Name))
			return
		}
	}

	incident := buildIncidentData(id, point.Weight, point.TS)
	if err := r.dashboard.CreateIncident(ctx, incident); err != nil {
		log.Error("failed to create incident", zap.Uint32("component_id", id), zap.Error(err))
	}
}

func (r *Reporter) refreshCache(ctx context.Context, log *zap.Logger) {
	components, err := r.dashboard.FetchComponents(ctx)
	if err != nil {
		log.Error("cache refresh failed", zap.Error(err))
		return
	}
	r.cache = BuildComponentCache(components)
}

// buildIncidentData fills in the static title/description/type and
// shifts the start date one second before the triggering sample, so
// the incident always precedes the metric that caused it.
func buildIncidentData(componentID uint32, weight uint8, ts uint32) model.IncidentData {
	startDate := time.Unix(int64(ts)-1, 0).UTC().Format(time.RFC3339)
	return model.IncidentData{
		Title:       model.DefaultIncidentTitle,
		Description: model.DefaultIncidentDescription,
		Impact:      weight,
		Components:  []uint32{componentID},
		StartDate:   startDate,
		System:      true,
		Type:        model.DefaultIncidentType,
	}
}
