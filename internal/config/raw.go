// Package config implements component A of the pipeline: loading raw
// YAML configuration (this file) and compiling it into the immutable
// runtime plan the rest of the system reads (compile.go).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/grafana/cloudmon-metrics/pkg/model"
)

// RawConfig is the top-level shape of config.yaml, before compilation.
type RawConfig struct {
	Datasource      DatasourceConfig                `yaml:"datasource"`
	Server          ServerConfig                     `yaml:"server"`
	MetricTemplates map[string]model.MetricTemplate  `yaml:"metric_templates"`
	Environments    []model.Environment              `yaml:"environments"`
	FlagMetrics     []RawFlagMetric                  `yaml:"flag_metrics"`
	HealthMetrics   map[string]RawServiceHealthDef    `yaml:"health_metrics"`
	StatusDashboard *StatusDashboardConfig            `yaml:"status_dashboard,omitempty"`
	HealthQuery     HealthQueryConfig                `yaml:"health_query"`
}

// DatasourceConfig describes the Graphite-compatible backend.
type DatasourceConfig struct {
	URL     string `yaml:"url"`
	Timeout uint16 `yaml:"timeout"`
}

// ServerConfig describes the Convertor's HTTP listener.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    uint16 `yaml:"port"`
}

// StatusDashboardConfig describes the Reporter's upstream and optional
// HMAC-JWT authentication.
type StatusDashboardConfig struct {
	URL                  string  `yaml:"url"`
	Secret               *string `yaml:"secret,omitempty"`
	JWTPreferredUsername *string `yaml:"jwt_preferred_username,omitempty"`
	JWTGroup             *string `yaml:"jwt_group,omitempty"`
	// EventsPath resolves the §9 open question ("/v2/events" in some
	// drafts, "/v2/incidents" in others) into a config field.
	EventsPath string `yaml:"events_path"`
}

// HealthQueryConfig configures the Reporter's default polling window.
type HealthQueryConfig struct {
	QueryFrom string `yaml:"query_from"`
	QueryTo   string `yaml:"query_to"`
}

// RawFlagMetric is one entry of the flag_metrics list.
type RawFlagMetric struct {
	Name         string                  `yaml:"name"`
	Service      string                  `yaml:"service"`
	Template     RawTemplateRef          `yaml:"template"`
	Environments []RawMetricEnvironment  `yaml:"environments"`
}

// RawTemplateRef names the metric template a flag metric expands.
type RawTemplateRef struct {
	Name string `yaml:"name"`
}

// RawMetricEnvironment is one per-environment override for a flag metric.
type RawMetricEnvironment struct {
	Name      string   `yaml:"name"`
	Threshold *float32 `yaml:"threshold,omitempty"`
}

// RawServiceHealthDef is the pre-compile health definition for one
// service, keyed by an arbitrary service_id in the YAML map.
type RawServiceHealthDef struct {
	Service       string                `yaml:"service"`
	ComponentName *string               `yaml:"component_name,omitempty"`
	Category      string                `yaml:"category"`
	Metrics       []string              `yaml:"metrics"`
	Expressions   []RawWeightedExpr     `yaml:"expressions"`
}

// RawWeightedExpr is one boolean expression and its health weight.
type RawWeightedExpr struct {
	Expression string `yaml:"expression"`
	Weight     uint8  `yaml:"weight"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("datasource.timeout", 10)
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("health_query.query_from", "-5min")
	v.SetDefault("health_query.query_to", "-2min")
	v.SetDefault("status_dashboard.events_path", "/v2/events")
}

// Load reads configPath through viper, overlays environment variables
// prefixed CLOUDMON_ (nested keys separated by "__", e.g.
// CLOUDMON_STATUS_DASHBOARD__SECRET overrides status_dashboard.secret),
// and unmarshals the result into a RawConfig.
func Load(configPath string) (*RawConfig, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("CLOUDMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
	}

	var raw RawConfig
	decodeYAMLTag := func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }
	if err := v.Unmarshal(&raw, decodeYAMLTag); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if raw.StatusDashboard != nil && raw.StatusDashboard.EventsPath == "" {
		raw.StatusDashboard.EventsPath = "/v2/events"
	}
	return &raw, nil
}

// LoadFromString parses a YAML document directly, bypassing viper.
// Used by tests that want to avoid touching the filesystem.
func LoadFromString(data string) (*RawConfig, error) {
	var raw RawConfig
	raw.Datasource.Timeout = 10
	raw.Server.Address = "0.0.0.0"
	raw.Server.Port = 3000
	raw.HealthQuery.QueryFrom = "-5min"
	raw.HealthQuery.QueryTo = "-2min"
	if err := yaml.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if raw.StatusDashboard != nil && raw.StatusDashboard.EventsPath == "" {
		raw.StatusDashboard.EventsPath = "/v2/events"
	}
	return &raw, nil
}

// MustLoad is a convenience wrapper for main() call sites where a
// config error is always fatal.
func MustLoad(configPath string) *RawConfig {
	raw, err := Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return raw
}
