package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"

	"photoflow/internal/bootstrap"
	"photoflow/internal/infra"
	"photoflow/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build dependencies")
	}
	defer deps.Close()

	orch, err := deps.Orchestrator(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure orchestrator")
	}

	// Inside Lambda the event source mapping does the polling.
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		logger.Info().Msg("worker: starting lambda handler")
		lambda.Start(queue.LambdaHandler(orch.HandleMessage, logger))
		return
	}

	if err := cfg.RequireQueue(); err != nil {
		logger.Fatal().Err(err).Msg("worker: invalid configuration")
	}
	go sweepExpired(ctx, deps, logger)

	poller := queue.NewPoller(deps.AWS.SQS(), queue.PollerOptions{
		QueueURL:          cfg.QueueURL,
		WaitTime:          cfg.QueueWaitTime,
		VisibilityTimeout: cfg.VisibilityTimeout,
		Logger:            logger,
	})
	if err := poller.Run(ctx, orch.HandleMessage); err != nil {
		logger.Fatal().Err(err).Msg("worker: poller stopped")
	}
	logger.Info().Msg("worker: shutdown complete")
}

const sweepInterval = time.Hour

// sweepExpired purges expired rows on drivers without a native TTL until ctx
// is done.
func sweepExpired(ctx context.Context, deps *bootstrap.Deps, logger infra.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		jobs, batches, err := deps.PurgeExpired(ctx, time.Now())
		if err != nil {
			logger.Warn().Err(err).Msg("worker: purge expired failed")
		} else if jobs+batches > 0 {
			logger.Info().Int64("jobs", jobs).Int64("batches", batches).Msg("worker: purged expired records")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
