// cmd/nlq-server/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"wapi-nlq/internal/app"
	"wapi-nlq/internal/common/camunda"
	"wapi-nlq/internal/common/config"
	"wapi-nlq/internal/common/logger"
	"wapi-nlq/internal/common/observability"
	processquery "wapi-nlq/internal/workers/nlq/process-query"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting wapi-nlq server...",
		zap.String("environment", cfg.App.Environment),
		zap.String("grid", cfg.Grid.BaseURL()),
	)

	obs := observability.New("wapi-nlq")

	status := app.NewStatusServer(cfg.Server.MetricsAddr, prometheus.DefaultGatherer, log)
	status.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, log, app.Options{
		Observability: obs,
		Retries:       10,
		RetryDelay:    2 * time.Second,
	})
	if err != nil {
		zapLog.Fatal("pipeline build failed", zap.Error(err))
	}
	defer a.Close()

	if res := a.Ping(ctx); !res.OK {
		zapLog.Warn("grid connectivity check failed", zap.String("message", res.Message))
	} else {
		zapLog.Info("grid connectivity check passed")
	}

	// --- Zeebe worker ---
	var jobWorker *camunda.JobWorker
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled && config.IsWorkerEnabled(cfg, processquery.TaskType) {
		zeebe, err = camunda.NewClientWithConfig(ctx, camunda.ConfigFrom(cfg.Camunda), log)
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		wc := processquery.LoadConfig(cfg)
		handler := processquery.NewHandler(wc, a.Pipeline, obs, log)
		jobWorker = camunda.NewWorker(zeebe.GetClient(), processquery.TaskType, camunda.WorkerOptions{
			MaxJobsActive: wc.MaxJobsActive,
			Timeout:       wc.Timeout,
		}, handler, log)
		zapLog.Info("Zeebe worker started", zap.String("taskType", jobWorker.TaskType()))
	} else {
		zapLog.Info("Zeebe worker disabled", zap.String("taskType", processquery.TaskType))
	}

	status.SetReady(true)

	// --- Signals: SIGHUP reloads, SIGINT/SIGTERM stop ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig != syscall.SIGHUP {
			break
		}
		next, err := config.Load()
		if err != nil {
			zapLog.Error("config reload failed, keeping current settings", zap.Error(err))
			continue
		}
		a.Reload(ctx, next)
	}

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if jobWorker != nil {
		jobWorker.Close()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	if err := status.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping status server", zap.Error(err))
	}

	zapLog.Info("wapi-nlq server stopped")
}
