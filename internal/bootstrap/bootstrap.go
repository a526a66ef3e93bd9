// Package bootstrap turns a loaded Config into the concrete repositories,
// stores, notifiers and providers shared by the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"photoflow/internal/adapter/repo"
	"photoflow/internal/domain"
	"photoflow/internal/imaging"
	"photoflow/internal/infra"
	"photoflow/internal/infra/credentials"
	"photoflow/internal/notify"
	"photoflow/internal/providers/genai"
	"photoflow/internal/providers/vision"
	"photoflow/internal/storage"
	"photoflow/internal/worker"
)

// Deps holds the adapters selected by the configured drivers.
type Deps struct {
	Config   *infra.Config
	Logger   infra.Logger
	AWS      *infra.AWSClients
	Jobs     domain.JobRepository
	Batches  domain.BatchJobRepository
	Store    storage.ObjectStore
	Files    *storage.FileStore
	Notifier notify.Notifier

	sql     infra.SQLExecutor
	closers []func()
}

// Build connects every adapter. Callers must Close the result.
func Build(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Deps, error) {
	aws, err := infra.NewAWSClients(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d := &Deps{Config: cfg, Logger: logger, AWS: aws}

	steps := []func(context.Context) error{d.buildRepositories, d.buildStore, d.buildNotifier}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

// Close releases pools and clients in reverse order.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

func (d *Deps) buildRepositories(ctx context.Context) error {
	cfg := d.Config
	switch cfg.StoreDriver {
	case infra.StoreDriverDynamo:
		client := d.AWS.DynamoDB()
		d.Jobs = repo.NewDynamoJobs(client, cfg.JobsTable, cfg.BatchIndexName)
		d.Batches = repo.NewDynamoBatches(client, cfg.BatchJobsTable)
	case infra.StoreDriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, pool.Close)
		runner := infra.NewSQLRunner(pool, d.Logger)
		if err := repo.EnsureSchema(ctx, runner); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		d.sql = runner
		d.Jobs = repo.NewPostgresJobs(runner)
		d.Batches = repo.NewPostgresBatches(runner)
	default:
		d.Logger.Warn().Msg("bootstrap: using in-memory repositories, state is lost on restart")
		d.Jobs = repo.NewMemoryJobs()
		d.Batches = repo.NewMemoryBatches()
	}
	return nil
}

// PurgeExpired deletes jobs and batches that expired before now. Only the
// PostgreSQL driver needs it; DynamoDB expires items through table TTL and
// the memory driver does not outlive the process.
func (d *Deps) PurgeExpired(ctx context.Context, now time.Time) (jobs, batches int64, err error) {
	if d.sql == nil {
		return 0, 0, nil
	}
	return repo.PurgeExpired(ctx, d.sql, now)
}

func (d *Deps) buildStore(ctx context.Context) error {
	cfg := d.Config
	switch cfg.ObjectDriver {
	case infra.ObjectDriverMinio:
		store, err := storage.NewMinioStore(ctx, storage.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Region:    cfg.MinioRegion,
			Bucket:    cfg.Bucket,
			SSE:       cfg.MinioSSE,
		})
		if err != nil {
			return fmt.Errorf("configure minio: %w", err)
		}
		d.Store = store
	case infra.ObjectDriverFilesystem:
		path := cfg.StoragePath
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		files, err := storage.NewFileStore(storage.FileStoreOptions{
			BasePath: path,
			BaseURL:  cfg.StorageBaseURL,
			Bucket:   cfg.Bucket,
			SignKey:  cfg.StorageSignKey,
		})
		if err != nil {
			return fmt.Errorf("configure storage: %w", err)
		}
		d.Files = files
		d.Store = files
	default:
		d.Store = storage.NewS3Store(d.AWS.S3(), cfg.Bucket)
	}
	return nil
}

func (d *Deps) buildNotifier(ctx context.Context) error {
	cfg := d.Config
	switch cfg.NotifierDriver {
	case infra.NotifierDriverSNS:
		d.Notifier = notify.NewSNSNotifier(d.AWS.SNS(), cfg.TopicARN)
	case infra.NotifierDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("connect redis: %w", err)
		}
		d.closers = append(d.closers, func() { _ = client.Close() })
		d.Notifier = notify.NewRedisNotifier(client, cfg.RedisChannel)
	default:
		d.Notifier = notify.NewLogNotifier(d.Logger)
	}
	return nil
}

// Providers builds the AI provider registry. Empty API keys are looked up in
// Parameter Store when a parameter name is configured.
func (d *Deps) Providers(ctx context.Context) (*vision.Registry, error) {
	cfg := d.Config
	var creds *credentials.Store
	if cfg.SSMGeminiKeyName != "" || cfg.SSMSeedreamName != "" {
		creds = credentials.NewStore(d.AWS.SSM(), map[string]string{
			credentials.ProviderGemini:   cfg.SSMGeminiKeyName,
			credentials.ProviderSeedream: cfg.SSMSeedreamName,
		})
	}
	geminiKey, err := creds.Resolve(ctx, credentials.ProviderGemini, cfg.GeminiAPIKey)
	if err != nil {
		d.Logger.Warn().Err(err).Msg("bootstrap: failed to load gemini api key from parameter store")
	}
	seedreamKey, err := creds.Resolve(ctx, credentials.ProviderSeedream, cfg.SeedreamAPIKey)
	if err != nil {
		d.Logger.Warn().Err(err).Msg("bootstrap: failed to load seedream api key from parameter store")
	}

	logger := d.Logger
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	return vision.NewRegistry(vision.Config{
		Analysis: vision.Kind(cfg.AnalysisProvider),
		Editing:  vision.Kind(cfg.EditingProvider),
		Gemini: genai.Options{
			APIKey:     geminiKey,
			BaseURL:    cfg.GeminiBaseURL,
			Model:      cfg.GeminiModel,
			ImageModel: cfg.GeminiImageModel,
		},
		Seedream: vision.SeedreamOptions{
			APIKey:  seedreamKey,
			BaseURL: cfg.SeedreamBaseURL,
			Model:   cfg.SeedreamModel,
		},
		HTTPClient: httpClient,
		Logger:     &logger,
	})
}

// Orchestrator wires the worker pipeline on top of the built adapters.
func (d *Deps) Orchestrator(ctx context.Context) (*worker.Orchestrator, error) {
	providers, err := d.Providers(ctx)
	if err != nil {
		return nil, err
	}
	cfg := d.Config
	return worker.New(worker.Options{
		Jobs:           d.Jobs,
		Batches:        d.Batches,
		Store:          d.Store,
		Providers:      providers,
		Notifier:       d.Notifier,
		Fetcher:        worker.NewFetcher(&http.Client{Timeout: cfg.ProviderTimeout}, cfg.MaxEditedImageB),
		Logger:         d.Logger,
		DefaultPrompt:  cfg.DefaultPrompt,
		AnalysisURLTTL: cfg.AnalysisURLTTL,
		Imaging:        imaging.Options{MaxDimension: cfg.ImageMaxDim, Quality: cfg.ImageQuality},
	})
}
