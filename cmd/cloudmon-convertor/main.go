// Command cloudmon-convertor serves the CloudMon v1 API and a
// Graphite-compatible render/find surface over a compiled metrics
// plan.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	zaplogfmt "github.com/jsternberg/zap-logfmt"

	"github.com/grafana/cloudmon-metrics/internal/api"
	"github.com/grafana/cloudmon-metrics/internal/config"
	"github.com/grafana/cloudmon-metrics/internal/graphiteclient"
	"github.com/grafana/cloudmon-metrics/internal/health"
)

var (
	configPath   string
	metricsPath  string
	shutdownWait time.Duration
)

func init() {
	flag.StringVar(&configPath, "config", "config.yaml", "Path to the CloudMon configuration file.")
	flag.StringVar(&metricsPath, "prometheus-path", "/metrics", "Path to publish Prometheus metrics to.")
	flag.DurationVar(&shutdownWait, "shutdown-wait", 5*time.Second, "Grace period for in-flight requests when shutting down.")
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
	logger.Info("cloudmon-convertor starting", zap.String("config", configPath))

	raw, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	plan, err := config.Compile(raw)
	if err != nil {
		logger.Fatal("failed to compile configuration", zap.Error(err))
	}

	graphite := graphiteclient.New(plan.Datasource.URL, time.Duration(plan.Datasource.Timeout)*time.Second)
	evaluator := health.New(plan, graphite)

	kitLogger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	handler := api.NewHandler(plan, evaluator, graphite, kitLogger)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	router.Handle(metricsPath, promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", plan.Server.Address, plan.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
