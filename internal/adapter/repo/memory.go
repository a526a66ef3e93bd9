package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"photoflow/internal/domain"
)

// MemoryJobs implements domain.JobRepository in process memory. It is used
// by the memory store driver and by tests.
type MemoryJobs struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

func NewMemoryJobs() *MemoryJobs {
	return &MemoryJobs{jobs: map[string]*domain.Job{}, now: time.Now}
}

func (r *MemoryJobs) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewRepositoryError("create job", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return nil, &domain.AlreadyExistsError{Entity: "job", ID: job.ID}
	}
	r.jobs[job.ID] = job.Clone()
	return job.Clone(), nil
}

func (r *MemoryJobs) FindByID(ctx context.Context, jobID string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewRepositoryError("find job", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "job", ID: jobID}
	}
	return job.Clone(), nil
}

func (r *MemoryJobs) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, updates domain.JobUpdates) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewRepositoryError("update job", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "job", ID: jobID}
	}
	next := job.Clone()
	next.Status = status
	updates.Apply(next)
	next.UpdatedAt = r.now().UTC()
	r.jobs[jobID] = next
	return next.Clone(), nil
}

func (r *MemoryJobs) FindByBatchID(ctx context.Context, batchJobID string) ([]*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewRepositoryError("find jobs by batch", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*domain.Job{}
	for _, job := range r.jobs {
		if batchJobID != "" && job.BatchJobID == batchJobID {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// MemoryBatches implements domain.BatchJobRepository in process memory.
type MemoryBatches struct {
	mu      sync.RWMutex
	batches map[string]*domain.BatchJob
	now     func() time.Time
}

func NewMemoryBatches() *MemoryBatches {
	return &MemoryBatches{batches: map[string]*domain.BatchJob{}, now: time.Now}
}

func (r *MemoryBatches) Create(ctx context.Context, batch *domain.BatchJob) (*domain.BatchJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewRepositoryError("create batch", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.batches[batch.ID]; exists {
		return nil, &domain.AlreadyExistsError{Entity: "batch", ID: batch.ID}
	}
	r.batches[batch.ID] = batch.Clone()
	return batch.Clone(), nil
}

func (r *MemoryBatches) FindByID(ctx context.Context, batchJobID string) (*domain.BatchJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewRepositoryError("find batch", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	batch, ok := r.batches[batchJobID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "batch", ID: batchJobID}
	}
	return batch.Clone(), nil
}

func (r *MemoryBatches) UpdateStatus(ctx context.Context, batchJobID string, status domain.JobStatus, updates domain.BatchUpdates) (*domain.BatchJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewRepositoryError("update batch", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[batchJobID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "batch", ID: batchJobID}
	}
	next := batch.Clone()
	next.Status = status
	updates.Apply(next)
	next.UpdatedAt = r.now().UTC()
	r.batches[batchJobID] = next
	return next.Clone(), nil
}

var (
	_ domain.JobRepository      = (*MemoryJobs)(nil)
	_ domain.BatchJobRepository = (*MemoryBatches)(nil)
)
