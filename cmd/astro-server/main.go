// cmd/astro-server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"astro-backend-llm/internal/api"
	"astro-backend-llm/internal/common/config"
	"astro-backend-llm/internal/common/database"
	"astro-backend-llm/internal/common/llm"
	"astro-backend-llm/internal/common/logger"
	"astro-backend-llm/internal/common/observability"
	"astro-backend-llm/internal/common/ratelimit"
	"astro-backend-llm/internal/common/secret"
	epd "astro-backend-llm/internal/workers/project/extract-project-details"
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
			delay *= 2
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

	zapLog, err := logger.New(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting astro-backend-llm...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("generationModel", cfg.LLM.GenerationModel),
		zap.String("parserModel", cfg.LLM.ParserModel),
	)

	obs, err := observability.New(observability.Options{
		ServiceName:   cfg.Observability.ServiceName,
		TraceSampling: cfg.Observability.TraceSampling,
	})
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(ctx); err != nil {
			zapLog.Warn("observability shutdown failed", zap.Error(err))
		}
	}()

	// --- Decrypt the instruction template before accepting traffic ---
	store, err := secret.NewStore(cfg.Secret.Passphrase, cfg.Secret.KDFLabel)
	if err != nil {
		zapLog.Fatal("secret store init failed", zap.Error(err))
	}
	template, err := store.LoadTemplate(cfg.Secret.TemplatePath, cfg.Secret.Placeholder)
	if err != nil {
		zapLog.Fatal("instruction template load failed", zap.Error(err), zap.String("path", cfg.Secret.TemplatePath))
	}
	zapLog.Info("Instruction template loaded", zap.Int("characters", template.Len()))

	// --- LLM clients ---
	client := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: config.GetDuration(cfg.LLM.Timeout),
	})
	parser := llm.NewStructuredClient(client, cfg.LLM.ParserMaxAttempts)
	zapLog.Info("LLM clients ready",
		zap.String("baseURL", cfg.LLM.BaseURL),
		zap.Int("parserMaxAttempts", parser.MaxAttempts()),
		zap.String("parserResponseFormat", cfg.LLM.ParserResponseFormat),
	)

	extractor, err := epd.NewHandler(epd.LoadConfig(cfg.LLM), client, parser, template, &extractorLoggerAdapter{log})
	if err != nil {
		zapLog.Fatal("failed to create extractor", zap.Error(err))
	}

	// --- Rate limiter (Redis with retry) ---
	var limiter api.RateLimiter
	if cfg.RateLimit.Enabled {
		rate, err := ratelimit.ParseRate(cfg.RateLimit.Generate)
		if err != nil {
			zapLog.Fatal("invalid rate_limit.generate", zap.Error(err))
		}

		var redis *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()

		limiter = ratelimit.New(redis.GetClient(), rate, cfg.RateLimit.KeyPrefix)
		zapLog.Info("Rate limiting enabled", zap.String("generate", rate.String()))
	}

	router := api.NewRouter(api.Options{
		Generator:      extractor,
		Limiter:        limiter,
		Logger:         log,
		CORS:           cfg.Server.CORS,
		RequestTimeout: cfg.LLM.RequestTimeout(),
		Observability:  obs,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", srv.Addr), zap.Bool("debug", cfg.Server.Debug))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error during HTTP shutdown", zap.Error(err))
	}

	zapLog.Info("astro-backend-llm stopped gracefully")
}

// extractorLoggerAdapter satisfies the extractor's own Logger interface.
type extractorLoggerAdapter struct {
	logger.Logger
}

func (a *extractorLoggerAdapter) With(fields map[string]interface{}) epd.Logger {
	return &extractorLoggerAdapter{a.Logger.With(fields)}
}
