package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/qaengine/qaengine/internal/api"
	"github.com/qaengine/qaengine/internal/config"
	"github.com/qaengine/qaengine/internal/observability"
	"github.com/qaengine/qaengine/internal/pipeline"
	"github.com/qaengine/qaengine/internal/temporal"
)

func main() {
	// Load .env in development; missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.App.Environment, cfg.GetLogLevel())
	defer logger.Sync()

	logger.Info("Starting qaengine API",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	metrics := observability.NewMetrics("qaengine")

	service, err := pipeline.New(cfg, metrics, logger)
	if err != nil {
		logger.Fatal("Failed to build pipeline service", zap.Error(err))
	}

	// Connect to Temporal (optional but recommended)
	var temporalClient client.Client
	tc, err := temporal.NewClient(cfg.Temporal, logger)
	if err != nil {
		logger.Warn("Failed to connect to Temporal, workflow execution disabled", zap.Error(err))
	} else {
		temporalClient = tc
		defer tc.Close()
		logger.Info("Connected to Temporal",
			zap.String("address", cfg.Temporal.Address()),
			zap.String("namespace", cfg.Temporal.Namespace),
		)
	}

	router := api.NewRouter(api.RouterConfig{
		Service:        service,
		TemporalClient: temporalClient,
		TaskQueue:      cfg.Temporal.TaskQueue,
		Metrics:        metrics,
		Logger:         logger,
		EnableCORS:     cfg.Security.CORSEnabled,
		RateLimit:      cfg.RateLimits.RequestsPerMin,
		APIKeyHeader:   cfg.Security.APIKeyHeader,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API server listening", zap.String("addr", addr))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal("Server error", zap.Error(err))

	case sig := <-shutdown:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed, forcing close", zap.Error(err))
			server.Close()
		}

		logger.Info("Server stopped gracefully")
	}
}

// initLogger creates a configured zap logger
func initLogger(env, level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}
