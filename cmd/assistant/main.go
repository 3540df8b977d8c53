// cmd/assistant/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hdb-assistant/internal/common/config"
	"hdb-assistant/internal/common/database"
	"hdb-assistant/internal/common/genai"
	"hdb-assistant/internal/common/logger"
	"hdb-assistant/internal/common/observability"
	"hdb-assistant/internal/common/predictor"
	"hdb-assistant/internal/orchestrator"
	"hdb-assistant/internal/server"
	"hdb-assistant/internal/stages/classifyintent"
	"hdb-assistant/internal/stages/generatesql"
	"hdb-assistant/internal/stages/predictprice"
	"hdb-assistant/internal/stages/resolvefeatures"
	"hdb-assistant/internal/stages/synthesize"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting assistant...",
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	tracing := observability.NewTracing(cfg.App.Name, os.Getenv("JAEGER_ENDPOINT"))
	defer tracing.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var postgres *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		postgres, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return postgres.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "PostgreSQL initialization")
	if err != nil {
		zapLog.Fatal("postgres unavailable", zap.Error(err))
	}
	defer postgres.Close()
	zapLog.Info("PostgreSQL connected")

	// --- Init Redis cache (optional) ---
	var redis *database.RedisClient
	if cfg.Database.Redis.Enabled {
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil || redis.Ping(ctx) != nil {
			zapLog.Warn("redis unavailable, running without result cache", zap.Error(err))
			redis = nil
		} else {
			defer redis.Close()
			zapLog.Info("Redis connected")
		}
	}

	// --- External collaborators ---
	completer := genai.NewClient(cfg, log)
	priceModel := predictor.NewClient(cfg, log)

	// --- Pipeline stages ---
	classifier := classifyintent.NewHandler(
		&classifyintent.Config{Timeout: config.GetDuration(cfg.Orchestrator.StageTimeout)},
		completer,
		classifyLogger{stageLogger{log}},
	)

	resolver := resolvefeatures.NewHandler(
		&resolvefeatures.Config{
			Timeout:        config.GetDuration(cfg.Orchestrator.StageTimeout),
			ReferenceMonth: cfg.Orchestrator.ReferenceMonth,
		},
		completer,
		resolveLogger{stageLogger{log}},
	)

	var cache generatesql.Cache
	if redis != nil {
		cache = redis
	}
	analyst := generatesql.NewHandler(
		&generatesql.Config{
			Timeout:        config.GetDuration(cfg.Orchestrator.StageTimeout),
			MaxAttempts:    cfg.Orchestrator.SQLMaxAttempts,
			SampleRowLimit: cfg.Orchestrator.SampleRowLimit,
			CacheTTL:       config.GetDuration(cfg.Database.Redis.CacheTTL),
		},
		completer,
		postgres,
		cache,
		analysisLogger{stageLogger{log}},
	)

	pricer := predictprice.NewHandler(
		&predictprice.Config{
			Timeout:         config.GetDuration(cfg.Orchestrator.StageTimeout),
			BTODiscountRate: cfg.Orchestrator.BTODiscountRate,
			ReferenceMonth:  cfg.Orchestrator.ReferenceMonth,
		},
		priceModel,
		predictLogger{stageLogger{log}},
	)

	writer := synthesize.NewHandler(
		&synthesize.Config{
			Timeout: config.GetDuration(cfg.Orchestrator.StageTimeout),
			RowCap:  cfg.Orchestrator.SynthesisRowCap,
		},
		completer,
		synthesisLogger{stageLogger{log}},
	)

	pipeline := orchestrator.New(
		&orchestrator.Config{StageTimeout: config.GetDuration(cfg.Orchestrator.StageTimeout)},
		classifier, resolver, analyst, pricer, writer,
		obs, tracing,
		pipelineLogger{stageLogger{log}},
	)

	// --- HTTP server ---
	handler := server.NewQueryHandler(pipeline, pricer)
	var redisPinger server.Pinger
	if redis != nil {
		redisPinger = redis
	}
	srv := server.New(cfg, handler, postgres, redisPinger, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			zapLog.Fatal("server failed", zap.Error(err))
		}
	case sig := <-quit:
		zapLog.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			config.GetDuration(cfg.Server.ShutdownTimeout))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zapLog.Error("shutdown incomplete", zap.Error(err))
		}
	}

	zapLog.Info("assistant stopped")
}
