package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"photoflow/internal/bootstrap"
	"photoflow/internal/http/handlers"
	httpapi "photoflow/internal/http/httpapi"
	"photoflow/internal/infra"
	"photoflow/internal/queue"
	"photoflow/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)
	if err := cfg.RequireAPI(); err != nil {
		logger.Fatal().Err(err).Msg("api: invalid configuration")
	}

	ctx := context.Background()
	deps, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to build dependencies")
	}
	defer deps.Close()

	app := &handlers.App{
		Service: service.New(service.Options{
			Jobs:        deps.Jobs,
			Batches:     deps.Batches,
			Store:       deps.Store,
			Logger:      logger,
			UploadTTL:   cfg.UploadURLTTL,
			DownloadTTL: cfg.DownloadURLTTL,
			JobTTL:      cfg.JobTTL,
		}),
		Files:     deps.Files,
		Logger:    logger,
		MaxUpload: cfg.MaxUploadBytes,
	}
	if providers, err := deps.Providers(ctx); err != nil {
		logger.Warn().Err(err).Msg("api: providers unavailable, deep health checks disabled")
	} else {
		app.Providers = providers
	}
	// The filesystem store has no bucket notifications, so the API enqueues
	// uploads itself.
	if deps.Files != nil && cfg.QueueURL != "" {
		app.Uploads = queue.NewPublisher(deps.AWS.SQS(), cfg.QueueURL)
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
		Logger:          logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.Run(ctx, logger); err != nil {
		logger.Error().Err(err).Msg("api: http server failed")
		return
	}
	logger.Info().Msg("api: server stopped")
}
