// Package worker drives uploaded photos through optimization, analysis and
// editing until their job is COMPLETED or FAILED.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"photoflow/internal/domain"
	"photoflow/internal/imaging"
	"photoflow/internal/infra"
	"photoflow/internal/notify"
	"photoflow/internal/providers/vision"
	"photoflow/internal/queue"
	"photoflow/internal/storage"
)

// ErrBucketMismatch is returned for messages about a bucket this worker does
// not serve.
var ErrBucketMismatch = errors.New("worker: message bucket does not match object store")

// errJobFinalized stops a delivery whose job was made terminal by another
// delivery while it was in flight.
var errJobFinalized = errors.New("worker: job finalized by another delivery")

const defaultAnalysisURLTTL = 10 * time.Minute

// Options wires an Orchestrator.
type Options struct {
	Jobs           domain.JobRepository
	Batches        domain.BatchJobRepository
	Store          storage.ObjectStore
	Providers      *vision.Registry
	Notifier       notify.Notifier
	Fetcher        *Fetcher
	Logger         infra.Logger
	DefaultPrompt  string
	AnalysisURLTTL time.Duration
	Imaging        imaging.Options
}

// Orchestrator processes one upload notification at a time.
type Orchestrator struct {
	jobs      domain.JobRepository
	store     storage.ObjectStore
	providers *vision.Registry
	notifier  notify.Notifier
	fetcher   *Fetcher
	batches   *BatchAggregator
	logger    infra.Logger
	prompt    string
	urlTTL    time.Duration
	imaging   imaging.Options
}

func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("worker: job repository is required")
	case opts.Batches == nil:
		return nil, errors.New("worker: batch repository is required")
	case opts.Store == nil:
		return nil, errors.New("worker: object store is required")
	case opts.Providers == nil || opts.Providers.Analyzer == nil || opts.Providers.Editor == nil:
		return nil, errors.New("worker: providers are required")
	case opts.Notifier == nil:
		return nil, errors.New("worker: notifier is required")
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher(nil, 0)
	}
	ttl := opts.AnalysisURLTTL
	if ttl <= 0 {
		ttl = defaultAnalysisURLTTL
	}
	logger := infra.Component(opts.Logger, "worker")
	return &Orchestrator{
		jobs:      opts.Jobs,
		store:     opts.Store,
		providers: opts.Providers,
		notifier:  opts.Notifier,
		fetcher:   fetcher,
		batches:   NewBatchAggregator(opts.Batches, opts.Notifier, opts.Logger),
		logger:    logger,
		prompt:    strings.TrimSpace(opts.DefaultPrompt),
		urlTTL:    ttl,
		imaging:   opts.Imaging,
	}, nil
}

// Batches exposes the aggregator used for parent batches.
func (o *Orchestrator) Batches() *BatchAggregator { return o.batches }

// HandleMessage adapts Handle to queue.Handler.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg queue.Message) error {
	return o.Handle(ctx, msg.Body)
}

// Handle runs the pipeline for one message body. A nil return means the
// message can be acknowledged; any error leaves it for redelivery.
func (o *Orchestrator) Handle(ctx context.Context, body string) error {
	evt, err := queue.ParseMessage(body)
	if errors.Is(err, queue.ErrTestEvent) {
		o.logger.Info().Msg("worker: ignoring s3 test event")
		return nil
	}
	if err != nil {
		return err
	}
	if evt.Bucket != o.store.Bucket() {
		return fmt.Errorf("%w: %q", ErrBucketMismatch, evt.Bucket)
	}
	ref, err := storage.ParseUploadKey(evt.Key)
	if err != nil {
		return err
	}

	log := o.logger.With().Str("job_id", ref.JobID).Str("user_id", ref.UserID).Logger()

	err = o.process(ctx, evt.Key, ref, log)
	if errors.Is(err, errJobFinalized) {
		log.Info().Msg("worker: job finalized by another delivery, acknowledging")
		return nil
	}
	return err
}

func (o *Orchestrator) process(ctx context.Context, uploadKey string, ref storage.UploadRef, log infra.Logger) error {
	job, err := o.jobs.FindByID(ctx, ref.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", ref.JobID, err)
	}
	if job.UserID != ref.UserID {
		return fmt.Errorf("worker: upload key owner %q does not own job %s", ref.UserID, job.ID)
	}
	if job.Status.Terminal() {
		log.Info().Str("status", job.Status.String()).Msg("worker: job already terminal, acknowledging")
		return nil
	}
	if job.FinalObjectKey != "" {
		return o.restoreCompleted(ctx, job, log)
	}
	if job.Status != domain.JobStatusQueued {
		log.Warn().Str("status", job.Status.String()).Msg("worker: resuming job")
	}
	log.Info().Str("key", uploadKey).Msg("worker: picked job")

	if job.Status == domain.JobStatusQueued {
		if job, err = o.apply(ctx, job, func(j *domain.Job) (domain.Transition, error) {
			return domain.TransitionToProcessing(j, uploadKey)
		}); err != nil {
			return err
		}
	}

	optimizedKey := storage.OptimizedKey(ref.UserID, ref.JobID, ref.FileName)
	if err := o.optimize(ctx, job, uploadKey, optimizedKey); err != nil {
		if reason, ok := unrecoverable(err); ok {
			return o.fail(ctx, job, reason)
		}
		return err
	}

	imageURL, err := o.store.PresignGet(ctx, optimizedKey, o.urlTTL)
	if err != nil {
		return fmt.Errorf("presign optimized object: %w", err)
	}

	prompt := strings.TrimSpace(job.Prompt)
	if prompt == "" {
		prompt = o.prompt
	}
	analyzer := o.providers.Analyzer
	analysis := analyzer.Analyze(ctx, vision.AnalysisRequest{ImageURL: imageURL, Prompt: prompt})
	if !analysis.Success {
		log.Warn().Err(providerFailure(analyzer.Name(), analysis.FailureReason)).Msg("worker: analysis failed, using fallback instruction")
		analysis.Data = nil
	}
	instruction := vision.BuildEditInstruction(analysis.Data, prompt)

	if job.Status == domain.JobStatusProcessing {
		if job, err = o.apply(ctx, job, domain.TransitionToEditing); err != nil {
			return err
		}
	}

	finalKey := storage.FinalKey(ref.UserID, ref.JobID, ref.FileName)
	editor := o.providers.Editor
	edit := editor.Edit(ctx, vision.EditRequest{ImageURL: imageURL, Analysis: analysis.Data, Instructions: instruction})
	if err := o.storeFinal(ctx, job, edit, optimizedKey, finalKey, editor.Name()); err != nil {
		return err
	}

	if job, err = o.apply(ctx, job, func(j *domain.Job) (domain.Transition, error) {
		return domain.TransitionToCompleted(j, finalKey)
	}); err != nil {
		return err
	}
	log.Info().Str("final_key", finalKey).Msg("worker: job completed")

	if job.BatchJobID != "" {
		if _, err := o.batches.IncrementBatchProgress(ctx, job.BatchJobID); err != nil {
			log.Error().Err(err).Str("batch_job_id", job.BatchJobID).Msg("worker: batch progress failed")
		}
	}

	if err := o.notifier.NotifyJobStatus(ctx, job); err != nil {
		log.Warn().Err(err).Msg("worker: notify failed")
	}
	for _, key := range []string{uploadKey, optimizedKey} {
		if err := o.store.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("worker: cleanup failed")
		}
	}
	return nil
}

// apply re-reads the job, computes the transition from that state and
// persists it. A job another delivery made terminal yields errJobFinalized.
func (o *Orchestrator) apply(ctx context.Context, job *domain.Job, next func(*domain.Job) (domain.Transition, error)) (*domain.Job, error) {
	current, err := o.jobs.FindByID(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("reload job %s: %w", job.ID, err)
	}
	if current.Status.Terminal() {
		return nil, errJobFinalized
	}
	tr, err := next(current)
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: transition rejected")
		return nil, err
	}
	updated, err := o.jobs.UpdateStatus(ctx, job.ID, tr.Status, tr.Updates)
	if err != nil {
		return nil, fmt.Errorf("update job %s to %s: %w", job.ID, tr.Status, err)
	}
	o.logger.Debug().Str("job_id", job.ID).Str("status", updated.Status.String()).Msg("worker: status updated")
	return updated, nil
}

func (o *Orchestrator) optimize(ctx context.Context, job *domain.Job, uploadKey, optimizedKey string) error {
	obj, err := o.store.Get(ctx, uploadKey)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	result, err := imaging.Optimize(obj.Body, o.imaging)
	if err != nil {
		return err
	}
	err = o.store.Put(ctx, optimizedKey, result.Data, storage.PutOptions{
		ContentType: imaging.ContentType,
		Metadata: map[string]string{
			"job-id":        job.ID,
			"user-id":       job.UserID,
			"source-format": result.SourceFormat,
		},
	})
	if err != nil {
		return fmt.Errorf("store optimized object: %w", err)
	}
	o.logger.Debug().
		Str("job_id", job.ID).
		Int("width", result.Width).
		Int("height", result.Height).
		Msg("worker: optimized upload")
	return nil
}

// storeFinal writes the edited image to finalKey, or copies the optimized
// object there when the edit failed or cannot be fetched.
func (o *Orchestrator) storeFinal(ctx context.Context, job *domain.Job, edit vision.EditResult, optimizedKey, finalKey, provider string) error {
	log := o.logger.With().Str("job_id", job.ID).Str("provider", provider).Logger()

	if edit.Success && strings.TrimSpace(edit.EditedImageURL) != "" {
		data, contentType, err := o.fetcher.Fetch(ctx, edit.EditedImageURL)
		if err == nil {
			err = o.store.Put(ctx, finalKey, data, storage.PutOptions{
				ContentType: contentType,
				Metadata:    map[string]string{"job-id": job.ID, "user-id": job.UserID, "edited-by": provider},
			})
			if err != nil {
				return fmt.Errorf("store final object: %w", err)
			}
			return nil
		}
		log.Warn().Err(err).Msg("worker: edited image unavailable, copying optimized image")
	} else {
		reason := edit.FailureReason
		if edit.Success {
			reason = "no edited image url"
		}
		log.Warn().Err(providerFailure(provider, reason)).Msg("worker: editing failed, copying optimized image")
	}

	if err := o.store.Copy(ctx, optimizedKey, finalKey); err != nil {
		return fmt.Errorf("copy optimized object to final: %w", err)
	}
	return nil
}

// fail moves the job to FAILED for input that no retry can fix. The message
// is acknowledged once the job is persisted as FAILED.
func (o *Orchestrator) fail(ctx context.Context, job *domain.Job, reason string) error {
	current, err := o.jobs.FindByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("reload job %s: %w", job.ID, err)
	}
	if current.FinalObjectKey != "" && !current.Status.Terminal() {
		return o.restoreCompleted(ctx, current, o.logger.With().Str("job_id", job.ID).Logger())
	}
	failed, err := o.apply(ctx, job, func(j *domain.Job) (domain.Transition, error) {
		return domain.TransitionToFailed(j, reason)
	})
	if err != nil {
		return err
	}
	log := o.logger.With().Str("job_id", job.ID).Logger()
	log.Warn().Str("reason", reason).Msg("worker: job failed")

	if err := o.notifier.NotifyJobStatus(ctx, failed); err != nil {
		log.Warn().Err(err).Msg("worker: notify failed")
	}
	if failed.BatchJobID != "" {
		msg := fmt.Sprintf("job %s failed: %s", failed.ID, reason)
		if _, err := o.batches.FailBatch(ctx, failed.BatchJobID, msg); err != nil {
			log.Error().Err(err).Str("batch_job_id", failed.BatchJobID).Msg("worker: fail batch failed")
		}
	}
	return nil
}

// restoreCompleted puts a job that already has a final object back to
// COMPLETED. The delivery that wrote the final object has already counted it
// toward the batch and notified, so neither happens again here.
func (o *Orchestrator) restoreCompleted(ctx context.Context, job *domain.Job, log infra.Logger) error {
	finalKey := job.FinalObjectKey
	log.Warn().Str("status", job.Status.String()).Str("final_key", finalKey).Msg("worker: job already has a final object, restoring COMPLETED")
	var err error
	if job.Status != domain.JobStatusEditing {
		if job, err = o.apply(ctx, job, domain.TransitionToEditing); err != nil {
			return err
		}
	}
	if _, err = o.apply(ctx, job, func(j *domain.Job) (domain.Transition, error) {
		return domain.TransitionToCompleted(j, finalKey)
	}); err != nil {
		return err
	}
	return nil
}

func providerFailure(provider, reason string) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrProviderFailure, provider, reason)
}

func unrecoverable(err error) (string, bool) {
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return "upload object not found", true
	case errors.Is(err, imaging.ErrUndecodable):
		return "image unreadable", true
	}
	return "", false
}
