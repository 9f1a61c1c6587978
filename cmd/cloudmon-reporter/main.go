// Command cloudmon-reporter runs the Dispatcher control loop: it
// polls the Convertor's health endpoint and files Status Dashboard
// incidents for services whose health weight is non-zero.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	zaplogfmt "github.com/jsternberg/zap-logfmt"

	"github.com/grafana/cloudmon-metrics/internal/config"
	"github.com/grafana/cloudmon-metrics/internal/reporter"
)

var (
	configPath   string
	convertorURL string
	dashTimeout  time.Duration
)

func init() {
	flag.StringVar(&configPath, "config", "config.yaml", "Path to the CloudMon configuration file.")
	flag.StringVar(&convertorURL, "convertor-url", "http://localhost:3000", "Base URL of the cloudmon-convertor instance to poll.")
	flag.DurationVar(&dashTimeout, "dashboard-timeout", 2*time.Second, "Timeout for Status Dashboard requests.")
}

func newLogger() *zap.Logger {
	encConfig := zap.NewDevelopmentEncoderConfig()
	return zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(encConfig),
		zapcore.Lock(os.Stdout),
		zapcore.InfoLevel,
	))
}

func main() {
	flag.Parse()

	logger := newLogger()
	defer logger.Sync()
	logger.Info("cloudmon-reporter starting", zap.String("config", configPath))

	raw, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	plan, err := config.Compile(raw)
	if err != nil {
		logger.Fatal("failed to compile configuration", zap.Error(err))
	}
	if plan.StatusDashboard == nil {
		logger.Fatal("status_dashboard is required for cloudmon-reporter")
	}

	healthClient := reporter.NewHealthClient(convertorURL, 10*time.Second)
	dashboardClient := reporter.NewDashboardClient(
		plan.StatusDashboard.URL,
		plan.StatusDashboard.EventsPath,
		reporter.AuthConfig{
			Secret:               plan.StatusDashboard.Secret,
			JWTPreferredUsername: plan.StatusDashboard.JWTPreferredUsername,
			JWTGroup:             plan.StatusDashboard.JWTGroup,
		},
		dashTimeout,
	)

	rep := reporter.New(plan, healthClient, dashboardClient, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rep.Bootstrap(ctx); err != nil {
		logger.Fatal("component cache bootstrap failed, exiting", zap.Error(err))
	}

	rep.Run(ctx)
	logger.Info("cloudmon-reporter stopped")
}
