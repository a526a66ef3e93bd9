// Command redrive moves messages from the upload dead-letter queue back onto
// the upload queue once the cause of their failures has been fixed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"photoflow/internal/infra"
	"photoflow/internal/queue"
)

func main() {
	_ = godotenv.Load()

	limit := flag.Int("max", 100, "maximum number of messages to move")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)
	if err := cfg.RequireQueue(); err != nil {
		logger.Fatal().Err(err).Msg("redrive: invalid configuration")
	}
	if cfg.DeadLetterURL == "" {
		logger.Fatal().Msg("redrive: UPLOAD_DLQ_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients, err := infra.NewAWSClients(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("redrive: aws config")
	}
	moved, err := queue.NewRedriver(clients.SQS(), cfg.DeadLetterURL, cfg.QueueURL, logger).Redrive(ctx, *limit)
	if err != nil {
		logger.Error().Err(err).Int("moved", moved).Msg("redrive: stopped early")
		os.Exit(1)
	}
	logger.Info().Int("moved", moved).Msg("redrive: done")
}
