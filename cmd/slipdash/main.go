package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"slipdash/internal/api"
	"slipdash/internal/cli"
	"slipdash/internal/config"
	apphttp "slipdash/internal/http"
	"slipdash/internal/log"
	"slipdash/internal/preview"
	"slipdash/internal/review"
	"slipdash/internal/services"
	"slipdash/internal/session"
	"slipdash/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, os.Stdout)
	cli.LoadAndValidateConfig(logger, cfg)

	ctx := context.Background()
	res := cli.InitBackend(ctx, logger, cfg)

	client, err := api.New(cfg.APIBaseURL, api.WithTimeout(cfg.APITimeout), api.WithLogger(logger))
	if err != nil {
		logger.Error("Invalid backend API URL", log.FieldError, err.Error(), "url", cfg.APIBaseURL)
		os.Exit(1)
	}

	recorder := services.NewReviewRecorder(res.Ledger, res.Publisher, logger)
	previews := preview.NewStore()
	handoff := review.NewHandoff(client, previews,
		review.WithObserver(recorder),
		review.WithMaxBytes(cfg.MaxUploadBytes),
		review.WithLogger(logger))
	screens := review.NewRegistry(cfg.MaxOpenReviews, cfg.PreviewTTL, logger)
	sessions := session.NewManager(session.NewMemoryStore(), res.Credentials)

	// A process-local ledger cannot be seen by slipdash-worker, so export it here.
	var processor *services.SyncProcessor
	if !res.Shared() {
		sw := worker.NewSyncWorker(res.Ledger, res.Writer, cfg.SyncBatchSize, logger)
		processor = services.NewSyncProcessor(sw, services.SyncProcessorConfig{PollInterval: cfg.SyncInterval}, logger)
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start sync processor", log.FieldError, err.Error())
			os.Exit(1)
		}
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:              ":" + cfg.Port,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		RequestsPerMinute: cfg.RequestsPerMinute,
		SecureCookies:     cfg.SecureCookies,
		TrustedProxies:    cfg.TrustedProxies,
	}, apphttp.Deps{
		API:      client,
		Sessions: sessions,
		Handoff:  handoff,
		Screens:  screens,
		Previews: previews,
		Ping:     res.Ping,
		Logger:   logger,
	})
	srv.MaxHeaderBytes = 1 << 16

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		if processor != nil {
			if err := processor.Stop(ctx); err != nil {
				logger.Error("Sync processor shutdown error", log.FieldError, err.Error())
			}
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
	})

	logger.Info("Starting slipdash server", "port", cfg.Port, "backend", res.Type.String(), "api", client.BaseURL())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
