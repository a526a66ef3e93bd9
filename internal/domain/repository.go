package domain

import "context"

// JobRepository persists jobs.
//
// Writes are guarded by existence only: Create requires the id to be free and
// UpdateStatus requires it to exist. There is no version check, so two
// concurrent UpdateStatus calls for the same job both succeed and the later
// write wins.
type JobRepository interface {
	// Create persists job. It fails with ErrAlreadyExists when the id is taken.
	Create(ctx context.Context, job *Job) (*Job, error)
	// FindByID performs a strongly consistent read. It fails with ErrNotFound.
	FindByID(ctx context.Context, jobID string) (*Job, error)
	// UpdateStatus merges updates and the new status, stamps UpdatedAt and
	// returns the full stored job. It fails with ErrNotFound.
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, updates JobUpdates) (*Job, error)
	// FindByBatchID lists the children of a batch; empty when there are none.
	FindByBatchID(ctx context.Context, batchJobID string) ([]*Job, error)
}

// BatchJobRepository persists batches with the same guarantees as
// JobRepository.
type BatchJobRepository interface {
	Create(ctx context.Context, batch *BatchJob) (*BatchJob, error)
	FindByID(ctx context.Context, batchJobID string) (*BatchJob, error)
	UpdateStatus(ctx context.Context, batchJobID string, status JobStatus, updates BatchUpdates) (*BatchJob, error)
}
