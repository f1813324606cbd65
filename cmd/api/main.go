package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zapia-ai/relay/internal/api/router"
	appconfig "github.com/zapia-ai/relay/internal/config"
	"github.com/zapia-ai/relay/internal/conversation"
	"github.com/zapia-ai/relay/internal/messaging"
	"github.com/zapia-ai/relay/internal/observability/metrics"
	"github.com/zapia-ai/relay/pkg/logging"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting relay API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := pool.Ping(pingCtx); err != nil {
		pingCancel()
		logger.Error("failed to reach database", "error", err)
		os.Exit(1)
	}
	pingCancel()

	relayMetrics := metrics.NewRelayMetrics(nil)

	store := conversation.NewStore(pool)
	systemPrompt := conversation.LoadSystemPrompt(cfg.SystemPromptPath, logger)
	llm := conversation.NewOpenRouterClient(
		cfg.OpenRouterAPIKey,
		cfg.OpenRouterModel,
		cfg.OpenRouterBaseURL,
		cfg.CompletionTimeout,
		logger,
	)
	sender := messaging.NewZAPISender(
		cfg.ZAPIBaseURL,
		cfg.ZAPIInstanceID,
		cfg.ZAPIToken,
		messaging.PhonePolicy{
			CountryCode:    cfg.DefaultCountryCode,
			LocalMaxDigits: cfg.LocalNumberMaxDigits,
		},
		cfg.RelayTimeout,
		logger,
		messaging.WithOutboundMetrics(relayMetrics),
	)

	service := conversation.NewService(
		store,
		llm,
		sender,
		systemPrompt,
		cfg.ContextMessageCount,
		logger,
		conversation.WithRunMetrics(relayMetrics),
		conversation.WithFallbackReplies(cfg.FallbackReply, cfg.InternalErrorReply),
	)

	queue := conversation.NewMemoryQueue(cfg.QueueBuffer)
	publisher := conversation.NewPublisher(queue, logger)
	worker := conversation.NewWorker(
		service,
		queue,
		logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
	)
	worker.Start(ctx)

	messagingHandler := messaging.NewHandler(publisher, relayMetrics, logger)

	r := router.New(&router.Config{
		Logger:           logger,
		MessagingHandler: messagingHandler,
		MetricsHandler:   promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Stop the workers and drain in-flight jobs.
	cancel()
	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
		logger.Info("pipeline workers stopped")
	case <-shutdownCtx.Done():
		logger.Error("pipeline worker shutdown timed out", "error", shutdownCtx.Err())
	}

	logger.Info("server stopped")
}
