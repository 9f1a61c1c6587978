package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/cloudmon-metrics/pkg/model"
)

func mustLoad(t *testing.T, yaml string) *RawConfig {
	t.Helper()
	raw, err := LoadFromString(yaml)
	require.NoError(t, err)
	return raw
}

const baseFixture = `
datasource:
  url: http://graphite.example.com
environments:
  - name: prod
  - name: staging
metric_templates:
  latency:
    query: "dummy1($environment.$service.latency)"
    op: lt
    threshold: 100
flag_metrics:
  - name: latency
    service: api-service
    template:
      name: latency
    environments:
      - name: prod
      - name: staging
        threshold: 200
health_metrics:
  svc1:
    service: api-service
    category: web
    metrics:
      - api-service.latency
    expressions:
      - expression: "api-service.latency"
        weight: 10
`

func TestCompile_TemplateSubstitution(t *testing.T) {
	raw := mustLoad(t, baseFixture)
	plan, err := Compile(raw)
	require.NoError(t, err)

	got := plan.FlagMetrics["api-service.latency"]["prod"]
	assert.Equal(t, "dummy1(prod.api-service.latency)", got.Query)
}

func TestCompile_MultiEnvironmentExpansion(t *testing.T) {
	raw := mustLoad(t, baseFixture)
	plan, err := Compile(raw)
	require.NoError(t, err)

	byEnv := plan.FlagMetrics["api-service.latency"]
	assert.Len(t, byEnv, 2)
	assert.Contains(t, byEnv, "prod")
	assert.Contains(t, byEnv, "staging")
}

func TestCompile_PerEnvironmentThresholdOverride(t *testing.T) {
	raw := mustLoad(t, baseFixture)
	plan, err := Compile(raw)
	require.NoError(t, err)

	byEnv := plan.FlagMetrics["api-service.latency"]
	assert.Equal(t, float32(100), byEnv["prod"].Threshold, "falls back to template default")
	assert.Equal(t, float32(200), byEnv["staging"].Threshold, "per-environment override wins")
}

func TestCompile_DashToUnderscoreInExpressions(t *testing.T) {
	raw := mustLoad(t, baseFixture)
	plan, err := Compile(raw)
	require.NoError(t, err)

	def := plan.HealthDefs["svc1"]
	require.Len(t, def.Compiled, 1)
	assert.Equal(t, "api_service_latency", def.Compiled[0].Text)
	assert.NotContains(t, def.Compiled[0].Text, "-")
}

func TestCompile_ServiceSetPopulation(t *testing.T) {
	raw := mustLoad(t, baseFixture)
	plan, err := Compile(raw)
	require.NoError(t, err)

	_, ok := plan.Services["api-service"]
	assert.True(t, ok)
	assert.Len(t, plan.Services, 1)
}

func TestCompile_DotsRewrittenWhenNoDashes(t *testing.T) {
	raw := mustLoad(t, `
environments:
  - name: prod
metric_templates:
  errors:
    query: "dummy1($service.errors)"
    op: gt
    threshold: 1
flag_metrics:
  - name: errors
    service: billing
    template:
      name: errors
    environments:
      - name: prod
health_metrics:
  svc1:
    service: billing
    category: billing
    metrics:
      - billing.errors
    expressions:
      - expression: "billing.errors"
        weight: 5
`)
	plan, err := Compile(raw)
	require.NoError(t, err)
	// "billing.errors" contains a dot but no dash; the identifier still
	// gets rewritten because expr treats bare identifiers, not the
	// literal metric id, as the binding surface.
	assert.Equal(t, "billing_errors", plan.HealthDefs["svc1"].Compiled[0].Text)
}

func TestCompile_UnknownTemplate(t *testing.T) {
	raw := mustLoad(t, `
environments:
  - name: prod
metric_templates: {}
flag_metrics:
  - name: latency
    service: api-service
    template:
      name: missing
    environments:
      - name: prod
health_metrics: {}
`)
	_, err := Compile(raw)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrUnknownTemplate, cfgErr.Kind)
}

func TestCompile_UnknownEnvironment(t *testing.T) {
	raw := mustLoad(t, `
environments:
  - name: prod
metric_templates:
  latency:
    query: "dummy1($service.latency)"
    op: lt
    threshold: 100
flag_metrics:
  - name: latency
    service: api-service
    template:
      name: latency
    environments:
      - name: staging
health_metrics: {}
`)
	_, err := Compile(raw)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrUnknownEnvironment, cfgErr.Kind)
}

func TestCompile_DuplicateMetric(t *testing.T) {
	raw := mustLoad(t, `
environments:
  - name: prod
metric_templates:
  latency:
    query: "dummy1($service.latency)"
    op: lt
    threshold: 100
flag_metrics:
  - name: latency
    service: api-service
    template:
      name: latency
    environments:
      - name: prod
  - name: latency
    service: api-service
    template:
      name: latency
    environments:
      - name: prod
health_metrics: {}
`)
	_, err := Compile(raw)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrDuplicateMetric, cfgErr.Kind)
}

func TestCompile_HealthMetricReferencesUndeclaredMetric(t *testing.T) {
	raw := mustLoad(t, `
environments:
  - name: prod
metric_templates: {}
flag_metrics: []
health_metrics:
  svc1:
    service: api-service
    category: web
    metrics:
      - api-service.latency
    expressions:
      - expression: "api-service.latency"
        weight: 10
`)
	_, err := Compile(raw)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrUnknownMetric, cfgErr.Kind)
}

func TestCompile_ExpressionSyntaxError(t *testing.T) {
	raw := mustLoad(t, `
environments:
  - name: prod
metric_templates:
  latency:
    query: "dummy1($service.latency)"
    op: lt
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
      - expression: "api-service.latency &&"
        weight: 10
`)
	_, err := Compile(raw)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrExpression, cfgErr.Kind)
}

func TestCompile_ServiceHealthDefFields(t *testing.T) {
	raw := mustLoad(t, baseFixture)
	plan, err := Compile(raw)
	require.NoError(t, err)

	def := plan.HealthDefs["svc1"].Def
	assert.Equal(t, "api-service", def.Service)
	assert.Equal(t, "web", def.Category)
	assert.Equal(t, []string{"api-service.latency"}, def.MetricIDs)
	assert.Equal(t, model.WeightedExpression{Expression: "api_service_latency", Weight: 10}, def.Expressions[0])
}
