package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"photoflow/internal/domain"
	"photoflow/internal/sqlinline"
)

type stubExecutor struct {
	tag      pgconn.CommandTag
	err      error
	row      pgx.Row
	queries  []string
	lastArgs []any
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.queries = append(s.queries, query)
	s.lastArgs = args
	return s.tag, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.queries = append(s.queries, query)
	s.lastArgs = args
	return s.row
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.queries = append(s.queries, query)
	return nil, errors.New("not implemented")
}

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *time.Time:
			*d = v.(time.Time)
		case *[]string:
			*d = v.([]string)
		default:
			return errors.New("unsupported dest")
		}
	}
	return nil
}

func jobRowValues(status string) []any {
	return []any{"j1", "u1", status, "cat.jpg", "uploads/u1/j1/1-cat.jpg", "uploads/u1/j1/1-cat.jpg", "", "", "", "b1", repoNow, repoNow, repoNow.Add(time.Hour)}
}

func TestPostgresJobsCreate(t *testing.T) {
	exec := &stubExecutor{tag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := NewPostgresJobs(exec)
	job := newTestJob(t, "j1", "")

	if _, err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if exec.queries[0] != sqlinline.QInsertJob {
		t.Fatalf("unexpected query %q", exec.queries[0])
	}
	if len(exec.lastArgs) != 13 {
		t.Fatalf("expected 13 args, got %d", len(exec.lastArgs))
	}
	if v, ok := exec.lastArgs[2].(string); !ok || v != "QUEUED" {
		t.Fatalf("expected QUEUED status argument, got %T %v", exec.lastArgs[2], exec.lastArgs[2])
	}
}

func TestPostgresJobsCreateConflict(t *testing.T) {
	exec := &stubExecutor{tag: pgconn.NewCommandTag("INSERT 0 0")}
	_, err := NewPostgresJobs(exec).Create(context.Background(), newTestJob(t, "j1", ""))
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestPostgresJobsFindByID(t *testing.T) {
	exec := &stubExecutor{row: stubRow{values: jobRowValues("PROCESSING")}}
	job, err := NewPostgresJobs(exec).FindByID(context.Background(), "j1")
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if job.Status != domain.JobStatusProcessing || job.BatchJobID != "b1" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestPostgresRejectsUnknownStatus(t *testing.T) {
	exec := &stubExecutor{row: stubRow{values: jobRowValues("DONE")}}
	_, err := NewPostgresJobs(exec).FindByID(context.Background(), "j1")
	if !errors.Is(err, domain.ErrRepository) || !strings.Contains(err.Error(), `"DONE"`) {
		t.Fatalf("expected repository error naming the status, got %v", err)
	}

	values := []any{"b1", "u1", "warm", 2, 1, "", []string{"j1", "j2"}, "", repoNow, repoNow, repoNow}
	exec = &stubExecutor{row: stubRow{values: values}}
	if _, err := NewPostgresBatches(exec).FindByID(context.Background(), "b1"); !errors.Is(err, domain.ErrRepository) {
		t.Fatalf("expected ErrRepository for empty batch status, got %v", err)
	}
}

func TestPostgresJobsFindByID_NoRows(t *testing.T) {
	exec := &stubExecutor{row: stubRow{err: pgx.ErrNoRows}}
	_, err := NewPostgresJobs(exec).FindByID(context.Background(), "j1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresJobsUpdateStatus(t *testing.T) {
	exec := &stubExecutor{row: stubRow{values: jobRowValues("EDITING")}}
	repo := NewPostgresJobs(exec)
	repo.now = func() time.Time { return repoNow }

	job, err := repo.UpdateStatus(context.Background(), "j1", domain.JobStatusEditing, domain.JobUpdates{})
	if err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if job.Status != domain.JobStatusEditing {
		t.Fatalf("unexpected status %s", job.Status)
	}
	if exec.queries[0] != sqlinline.QUpdateJobStatus {
		t.Fatalf("unexpected query %q", exec.queries[0])
	}
	if v, ok := exec.lastArgs[2].(*string); !ok || v != nil {
		t.Fatalf("nil updates must be passed as NULL, got %T %v", exec.lastArgs[2], exec.lastArgs[2])
	}
}

func TestPostgresJobsUpdateStatus_Missing(t *testing.T) {
	exec := &stubExecutor{row: stubRow{err: pgx.ErrNoRows}}
	_, err := NewPostgresJobs(exec).UpdateStatus(context.Background(), "j1", domain.JobStatusFailed, domain.JobUpdates{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresJobsTransportError(t *testing.T) {
	exec := &stubExecutor{row: stubRow{err: errors.New("connection reset")}}
	_, err := NewPostgresJobs(exec).FindByID(context.Background(), "j1")
	if !errors.Is(err, domain.ErrRepository) {
		t.Fatalf("expected ErrRepository, got %v", err)
	}
}

func TestPostgresBatchesRoundTrip(t *testing.T) {
	values := []any{"b1", "u1", "warm", 2, 1, "PROCESSING", []string{"j1", "j2"}, "", repoNow, repoNow, repoNow}
	exec := &stubExecutor{row: stubRow{values: values}, tag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := NewPostgresBatches(exec)

	if _, err := repo.Create(context.Background(), newTestBatch(t, "b1", "j1", "j2")); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	batch, err := repo.UpdateStatus(context.Background(), "b1", domain.JobStatusProcessing, domain.BatchUpdates{CompletedCount: ptr(1)})
	if err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if batch.CompletedCount != 1 || len(batch.JobIDs) != 2 {
		t.Fatalf("unexpected batch %+v", batch)
	}
}

func TestEnsureSchemaAndPurge(t *testing.T) {
	exec := &stubExecutor{row: stubRow{err: errors.New("boom")}}
	if err := EnsureSchema(context.Background(), exec); err != nil {
		t.Fatalf("EnsureSchema error: %v", err)
	}
	if exec.queries[0] != sqlinline.QCreateJobsSchema {
		t.Fatalf("unexpected query %q", exec.queries[0])
	}
	if _, _, err := PurgeExpired(context.Background(), exec, repoNow); !errors.Is(err, domain.ErrRepository) {
		t.Fatalf("expected ErrRepository, got %v", err)
	}
}
