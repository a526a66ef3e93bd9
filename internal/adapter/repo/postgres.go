package repo

import (
	"context"
	"time"

	"photoflow/internal/domain"
	"photoflow/internal/infra"
	"photoflow/internal/sqlinline"
)

// PostgresJobs implements domain.JobRepository on the photo_jobs table.
type PostgresJobs struct {
	sql infra.SQLExecutor
	now func() time.Time
}

// NewPostgresJobs creates a job repository backed by PostgreSQL.
func NewPostgresJobs(sql infra.SQLExecutor) *PostgresJobs {
	return &PostgresJobs{sql: sql, now: time.Now}
}

// EnsureSchema creates the job and batch tables when missing.
func EnsureSchema(ctx context.Context, sql infra.SQLExecutor) error {
	if _, err := sql.Exec(ctx, sqlinline.QCreateJobsSchema); err != nil {
		return domain.NewRepositoryError("ensure schema", err)
	}
	return nil
}

// PurgeExpired removes jobs and batches whose expiry is before cutoff. It
// stands in for the table TTL the DynamoDB driver relies on.
func PurgeExpired(ctx context.Context, sql infra.SQLExecutor, cutoff time.Time) (jobs, batches int64, err error) {
	if err := sql.QueryRow(ctx, sqlinline.QDeleteExpiredJobs, cutoff.UTC()).Scan(&jobs, &batches); err != nil {
		return 0, 0, domain.NewRepositoryError("purge expired", err)
	}
	return jobs, batches, nil
}

// Create inserts a new job record.
func (r *PostgresJobs) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.UserID,
		string(job.Status),
		job.FileName,
		job.UploadObjectKey,
		job.TempObjectKey,
		job.FinalObjectKey,
		job.Error,
		job.Prompt,
		job.BatchJobID,
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
		job.ExpiresAt.UTC(),
	)
	if err != nil {
		return nil, domain.NewRepositoryError("insert job", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, &domain.AlreadyExistsError{Entity: "job", ID: job.ID}
	}
	return job.Clone(), nil
}

// FindByID fetches a job by its identifier.
func (r *PostgresJobs) FindByID(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, &domain.NotFoundError{Entity: "job", ID: jobID}
		}
		return nil, domain.NewRepositoryError("select job", err)
	}
	return job, nil
}

// UpdateStatus updates the status and merges the non-nil fields.
func (r *PostgresJobs) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, updates domain.JobUpdates) (*domain.Job, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QUpdateJobStatus,
		jobID,
		string(status),
		updates.TempObjectKey,
		updates.FinalObjectKey,
		updates.Error,
		r.now().UTC(),
	)
	job, err := scanJob(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, &domain.NotFoundError{Entity: "job", ID: jobID}
		}
		return nil, domain.NewRepositoryError("update job", err)
	}
	return job, nil
}

// FindByBatchID lists the jobs of a batch in creation order.
func (r *PostgresJobs) FindByBatchID(ctx context.Context, batchJobID string) ([]*domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectJobsByBatchID, batchJobID)
	if err != nil {
		return nil, domain.NewRepositoryError("select jobs by batch", err)
	}
	defer rows.Close()

	jobs := []*domain.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, domain.NewRepositoryError("scan job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewRepositoryError("select jobs by batch", err)
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job    domain.Job
		status string
	)
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&status,
		&job.FileName,
		&job.UploadObjectKey,
		&job.TempObjectKey,
		&job.FinalObjectKey,
		&job.Error,
		&job.Prompt,
		&job.BatchJobID,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.ExpiresAt,
	); err != nil {
		return nil, err
	}
	var err error
	if job.Status, err = domain.ParseJobStatus(status); err != nil {
		return nil, err
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	job.ExpiresAt = job.ExpiresAt.UTC()
	return &job, nil
}

// PostgresBatches implements domain.BatchJobRepository on photo_batch_jobs.
type PostgresBatches struct {
	sql infra.SQLExecutor
	now func() time.Time
}

func NewPostgresBatches(sql infra.SQLExecutor) *PostgresBatches {
	return &PostgresBatches{sql: sql, now: time.Now}
}

func (r *PostgresBatches) Create(ctx context.Context, batch *domain.BatchJob) (*domain.BatchJob, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QInsertBatchJob,
		batch.ID,
		batch.UserID,
		batch.SharedPrompt,
		batch.TotalCount,
		batch.CompletedCount,
		string(batch.Status),
		batch.JobIDs,
		batch.Error,
		batch.CreatedAt.UTC(),
		batch.UpdatedAt.UTC(),
		batch.ExpiresAt.UTC(),
	)
	if err != nil {
		return nil, domain.NewRepositoryError("insert batch", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, &domain.AlreadyExistsError{Entity: "batch", ID: batch.ID}
	}
	return batch.Clone(), nil
}

func (r *PostgresBatches) FindByID(ctx context.Context, batchJobID string) (*domain.BatchJob, error) {
	batch, err := scanBatch(r.sql.QueryRow(ctx, sqlinline.QSelectBatchJobByID, batchJobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, &domain.NotFoundError{Entity: "batch", ID: batchJobID}
		}
		return nil, domain.NewRepositoryError("select batch", err)
	}
	return batch, nil
}

func (r *PostgresBatches) UpdateStatus(ctx context.Context, batchJobID string, status domain.JobStatus, updates domain.BatchUpdates) (*domain.BatchJob, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QUpdateBatchJobStatus,
		batchJobID,
		string(status),
		updates.CompletedCount,
		updates.Error,
		r.now().UTC(),
	)
	batch, err := scanBatch(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, &domain.NotFoundError{Entity: "batch", ID: batchJobID}
		}
		return nil, domain.NewRepositoryError("update batch", err)
	}
	return batch, nil
}

func scanBatch(row scanner) (*domain.BatchJob, error) {
	var (
		batch  domain.BatchJob
		status string
	)
	if err := row.Scan(
		&batch.ID,
		&batch.UserID,
		&batch.SharedPrompt,
		&batch.TotalCount,
		&batch.CompletedCount,
		&status,
		&batch.JobIDs,
		&batch.Error,
		&batch.CreatedAt,
		&batch.UpdatedAt,
		&batch.ExpiresAt,
	); err != nil {
		return nil, err
	}
	var err error
	if batch.Status, err = domain.ParseJobStatus(status); err != nil {
		return nil, err
	}
	batch.CreatedAt = batch.CreatedAt.UTC()
	batch.UpdatedAt = batch.UpdatedAt.UTC()
	batch.ExpiresAt = batch.ExpiresAt.UTC()
	return &batch, nil
}

var (
	_ domain.JobRepository      = (*PostgresJobs)(nil)
	_ domain.BatchJobRepository = (*PostgresBatches)(nil)
)
