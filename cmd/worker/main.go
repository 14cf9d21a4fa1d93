package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	coverageact "github.com/qaengine/qaengine/internal/activities/coverage"
	crawlact "github.com/qaengine/qaengine/internal/activities/crawl"
	executeact "github.com/qaengine/qaengine/internal/activities/execute"
	planact "github.com/qaengine/qaengine/internal/activities/plan"
	reportact "github.com/qaengine/qaengine/internal/activities/report"
	"github.com/qaengine/qaengine/internal/config"
	"github.com/qaengine/qaengine/internal/observability"
	"github.com/qaengine/qaengine/internal/pipeline"
	"github.com/qaengine/qaengine/internal/report"
	"github.com/qaengine/qaengine/internal/temporal"
	"github.com/qaengine/qaengine/internal/workflows"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.App.Environment)
	defer logger.Sync()

	logger.Info("Starting qaengine worker",
		zap.String("version", cfg.App.Version),
		zap.String("temporal_address", cfg.Temporal.Address()),
		zap.String("namespace", cfg.Temporal.Namespace),
		zap.String("task_queue", cfg.Temporal.TaskQueue),
	)

	c, err := temporal.NewClient(cfg.Temporal, logger)
	if err != nil {
		logger.Fatal("Failed to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	logger.Info("Connected to Temporal server")

	metrics := observability.NewMetrics("qaengine")
	service, err := pipeline.New(cfg, metrics, logger)
	if err != nil {
		logger.Fatal("Failed to build pipeline service", zap.Error(err))
	}

	generator, err := report.New(service.LLMClient(), logger)
	if err != nil {
		logger.Fatal("Failed to build report generator", zap.Error(err))
	}

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.Temporal.WorkerCount,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.Temporal.WorkerCount,
	})

	w.RegisterWorkflow(workflows.QARunWorkflow)

	w.RegisterActivityWithOptions(crawlact.NewActivity(service).Execute, activity.RegisterOptions{
		Name: workflows.CrawlActivityName,
	})
	w.RegisterActivityWithOptions(planact.NewActivity(service).Execute, activity.RegisterOptions{
		Name: workflows.PlanActivityName,
	})
	w.RegisterActivityWithOptions(executeact.NewActivity(service).Execute, activity.RegisterOptions{
		Name: workflows.ExecuteActivityName,
	})
	w.RegisterActivityWithOptions(coverageact.NewActivity(service).Execute, activity.RegisterOptions{
		Name: workflows.MergeActivityName,
	})
	w.RegisterActivityWithOptions(reportact.NewActivity(service, generator).Execute, activity.RegisterOptions{
		Name: workflows.ReportActivityName,
	})

	logger.Info("Registered workflows and activities",
		zap.Int("activity_count", 5),
		zap.Int("workflow_count", 1),
	)

	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- w.Run(worker.InterruptCh())
	}()

	logger.Info("Worker started successfully",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		if err != nil {
			logger.Fatal("Worker error", zap.Error(err))
		}

	case sig := <-shutdown:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
		w.Stop()
		logger.Info("Worker stopped gracefully")
	}
}

func initLogger(env string) *zap.Logger {
	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := config.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}
