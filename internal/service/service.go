// Package service implements the client-facing operations: creating jobs
// and batches with presigned upload URLs and reading their status.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"photoflow/internal/domain"
	"photoflow/internal/infra"
	"photoflow/internal/storage"
)

var allowedContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// Options wires a Service.
type Options struct {
	Jobs        domain.JobRepository
	Batches     domain.BatchJobRepository
	Store       storage.ObjectStore
	Logger      infra.Logger
	UploadTTL   time.Duration
	DownloadTTL time.Duration
	JobTTL      time.Duration
}

// Service is safe for concurrent use.
type Service struct {
	jobs        domain.JobRepository
	batches     domain.BatchJobRepository
	store       storage.ObjectStore
	logger      infra.Logger
	uploadTTL   time.Duration
	downloadTTL time.Duration
	jobTTL      time.Duration
	now         func() time.Time
	newID       func() string
}

func New(opts Options) *Service {
	s := &Service{
		jobs:        opts.Jobs,
		batches:     opts.Batches,
		store:       opts.Store,
		logger:      infra.Component(opts.Logger, "service"),
		uploadTTL:   opts.UploadTTL,
		downloadTTL: opts.DownloadTTL,
		jobTTL:      opts.JobTTL,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	if s.uploadTTL <= 0 {
		s.uploadTTL = 15 * time.Minute
	}
	if s.downloadTTL <= 0 {
		s.downloadTTL = time.Hour
	}
	return s
}

// CreateJobRequest describes one photo the client is about to upload.
type CreateJobRequest struct {
	UserID      string
	FileName    string
	ContentType string
	Prompt      string
}

// UploadTicket is a created job plus where to upload its photo.
type UploadTicket struct {
	Job          *domain.Job
	UploadURL    string
	UploadMethod string
	ContentType  string
	ExpiresAt    time.Time
}

// JobView is a job as shown to its owner.
type JobView struct {
	Job         *domain.Job
	DownloadURL string
	ExpiresAt   time.Time
}

// CreateJob persists a QUEUED job and presigns its upload.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*UploadTicket, error) {
	now := s.now().UTC()
	job, err := s.newJob(req, "", now)
	if err != nil {
		return nil, err
	}
	created, err := s.jobs.Create(ctx, job)
	if err != nil {
		return nil, err
	}
	ticket, err := s.ticket(ctx, created, req.ContentType, now)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("job_id", created.ID).Str("user_id", created.UserID).Msg("service: job created")
	return ticket, nil
}

// BatchFile is one photo of a batch. Prompt overrides the shared prompt.
type BatchFile struct {
	FileName    string
	ContentType string
	Prompt      string
}

// CreateBatchRequest describes a batch of photos sharing one prompt.
type CreateBatchRequest struct {
	UserID       string
	SharedPrompt string
	Files        []BatchFile
}

// BatchTicket is a created batch plus one upload ticket per child job.
type BatchTicket struct {
	Batch   *domain.BatchJob
	Uploads []*UploadTicket
}

// CreateBatch validates every child before writing anything, then persists
// the batch followed by its jobs.
func (s *Service) CreateBatch(ctx context.Context, req CreateBatchRequest) (*BatchTicket, error) {
	if len(req.Files) == 0 {
		return nil, &domain.ValidationError{Field: "files", Reason: "at least one file is required"}
	}
	if len(req.Files) > domain.MaxBatchSize {
		return nil, &domain.ValidationError{Field: "files", Reason: fmt.Sprintf("at most %d files per batch", domain.MaxBatchSize)}
	}
	now := s.now().UTC()
	batchID := s.newID()

	jobs := make([]*domain.Job, 0, len(req.Files))
	ids := make([]string, 0, len(req.Files))
	for i, f := range req.Files {
		prompt := f.Prompt
		if strings.TrimSpace(prompt) == "" {
			prompt = req.SharedPrompt
		}
		job, err := s.newJob(CreateJobRequest{
			UserID:      req.UserID,
			FileName:    f.FileName,
			ContentType: f.ContentType,
			Prompt:      prompt,
		}, batchID, now)
		if err != nil {
			return nil, fmt.Errorf("files[%d]: %w", i, err)
		}
		jobs = append(jobs, job)
		ids = append(ids, job.ID)
	}

	batch, err := domain.CreateBatchJobEntity(domain.BatchInput{
		ID:           batchID,
		UserID:       req.UserID,
		SharedPrompt: req.SharedPrompt,
		JobIDs:       ids,
		TTL:          s.jobTTL,
	}, now)
	if err != nil {
		return nil, err
	}
	createdBatch, err := s.batches.Create(ctx, batch)
	if err != nil {
		return nil, err
	}

	out := &BatchTicket{Batch: createdBatch, Uploads: make([]*UploadTicket, 0, len(jobs))}
	for i, job := range jobs {
		created, err := s.jobs.Create(ctx, job)
		if err != nil {
			s.logger.Error().Err(err).Str("batch_job_id", batchID).Str("job_id", job.ID).Msg("service: batch child create failed")
			return nil, err
		}
		ticket, err := s.ticket(ctx, created, req.Files[i].ContentType, now)
		if err != nil {
			return nil, err
		}
		out.Uploads = append(out.Uploads, ticket)
	}
	s.logger.Info().Str("batch_job_id", batchID).Int("jobs", len(jobs)).Msg("service: batch created")
	return out, nil
}

// GetJob returns a job owned by userID. Jobs owned by someone else are
// reported as not found.
func (s *Service) GetJob(ctx context.Context, userID, jobID string) (*JobView, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, &domain.NotFoundError{Entity: "job", ID: jobID}
	}
	return s.view(ctx, job)
}

// BatchView is a batch with its children.
type BatchView struct {
	Batch *domain.BatchJob
	Jobs  []*JobView
}

// GetBatch returns a batch owned by userID with the current state of each
// child.
func (s *Service) GetBatch(ctx context.Context, userID, batchID string) (*BatchView, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.UserID != userID {
		return nil, &domain.NotFoundError{Entity: "batch", ID: batchID}
	}
	children, err := s.jobs.FindByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	out := &BatchView{Batch: batch, Jobs: make([]*JobView, 0, len(children))}
	for _, job := range children {
		v, err := s.view(ctx, job)
		if err != nil {
			return nil, err
		}
		out.Jobs = append(out.Jobs, v)
	}
	return out, nil
}

func (s *Service) newJob(req CreateJobRequest, batchID string, now time.Time) (*domain.Job, error) {
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if _, ok := allowedContentTypes[contentType]; !ok {
		return nil, &domain.ValidationError{Field: "contentType", Reason: "must be one of image/jpeg, image/png, image/webp, image/gif"}
	}
	id := s.newID()
	return domain.CreateJobEntity(domain.JobInput{
		ID:              id,
		UserID:          req.UserID,
		FileName:        req.FileName,
		UploadObjectKey: storage.UploadKey(req.UserID, id, req.FileName, now),
		Prompt:          req.Prompt,
		BatchJobID:      batchID,
		TTL:             s.jobTTL,
	}, now)
}

func (s *Service) ticket(ctx context.Context, job *domain.Job, contentType string, now time.Time) (*UploadTicket, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	url, err := s.store.PresignPut(ctx, job.UploadObjectKey, contentType, s.uploadTTL)
	if err != nil {
		return nil, fmt.Errorf("presign upload for job %s: %w", job.ID, err)
	}
	return &UploadTicket{
		Job:          job,
		UploadURL:    url,
		UploadMethod: "PUT",
		ContentType:  contentType,
		ExpiresAt:    now.Add(s.uploadTTL),
	}, nil
}

func (s *Service) view(ctx context.Context, job *domain.Job) (*JobView, error) {
	v := &JobView{Job: job}
	if job.Status != domain.JobStatusCompleted || job.FinalObjectKey == "" {
		return v, nil
	}
	url, err := s.store.PresignGet(ctx, job.FinalObjectKey, s.downloadTTL)
	if err != nil {
		return nil, fmt.Errorf("presign download for job %s: %w", job.ID, err)
	}
	v.DownloadURL = url
	v.ExpiresAt = s.now().UTC().Add(s.downloadTTL)
	return v, nil
}
