package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoflow/internal/adapter/repo"
	"photoflow/internal/domain"
	"photoflow/internal/storage"
)

var svcNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// presignStore records presign calls; every other operation is unused here.
type presignStore struct {
	storage.ObjectStore
	puts []string
	gets []string
}

func (s *presignStore) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	s.puts = append(s.puts, key+"|"+contentType)
	return "https://media.test/" + key + "?X-Amz-Expires=" + fmt.Sprint(int(ttl.Seconds())), nil
}

func (s *presignStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.gets = append(s.gets, key)
	return "https://media.test/" + key + "?get", nil
}

func newTestService(t *testing.T) (*Service, *repo.MemoryJobs, *repo.MemoryBatches, *presignStore) {
	t.Helper()
	jobs := repo.NewMemoryJobs()
	batches := repo.NewMemoryBatches()
	store := &presignStore{}
	svc := New(Options{
		Jobs:      jobs,
		Batches:   batches,
		Store:     store,
		Logger:    zerolog.New(io.Discard),
		UploadTTL: 10 * time.Minute,
	})
	svc.now = func() time.Time { return svcNow }
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return svc, jobs, batches, store
}

func TestCreateJob(t *testing.T) {
	svc, jobs, _, store := newTestService(t)

	ticket, err := svc.CreateJob(context.Background(), CreateJobRequest{
		UserID:      "u1",
		FileName:    "Café Night.JPG",
		ContentType: "image/jpeg",
		Prompt:      "Enhance contrast",
	})
	require.NoError(t, err)

	job := ticket.Job
	assert.Equal(t, "id-1", job.ID)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, fmt.Sprintf("uploads/u1/id-1/%d-Cafe-Night.JPG", svcNow.Unix()), job.UploadObjectKey)
	assert.Equal(t, "PUT", ticket.UploadMethod)
	assert.Equal(t, svcNow.Add(10*time.Minute), ticket.ExpiresAt)
	assert.Contains(t, ticket.UploadURL, job.UploadObjectKey)
	assert.Equal(t, []string{job.UploadObjectKey + "|image/jpeg"}, store.puts)

	stored, err := jobs.FindByID(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, "Enhance contrast", stored.Prompt)
}

func TestCreateJobValidation(t *testing.T) {
	svc, jobs, _, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateJob(ctx, CreateJobRequest{UserID: "u1", FileName: "a.jpg", ContentType: "application/pdf"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateJob(ctx, CreateJobRequest{UserID: "", FileName: "a.jpg", ContentType: "image/png"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateJob(ctx, CreateJobRequest{UserID: "u1", FileName: "a.jpg", ContentType: "image/png", Prompt: strings.Repeat("x", domain.MaxPromptLength+1)})
	require.ErrorIs(t, err, domain.ErrValidation)

	assert.Empty(t, store.puts)
	_, err = jobs.FindByID(ctx, "id-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateBatch(t *testing.T) {
	svc, jobs, batches, _ := newTestService(t)
	ctx := context.Background()

	ticket, err := svc.CreateBatch(ctx, CreateBatchRequest{
		UserID:       "u1",
		SharedPrompt: "Warm tones",
		Files: []BatchFile{
			{FileName: "a.jpg", ContentType: "image/jpeg"},
			{FileName: "b.png", ContentType: "image/png", Prompt: "Black and white"},
		},
	})
	require.NoError(t, err)

	batch := ticket.Batch
	assert.Equal(t, "id-1", batch.ID)
	assert.Equal(t, 2, batch.TotalCount)
	assert.Equal(t, domain.JobStatusProcessing, batch.Status)
	assert.Equal(t, []string{"id-2", "id-3"}, batch.JobIDs)
	require.Len(t, ticket.Uploads, 2)
	assert.Equal(t, "Warm tones", ticket.Uploads[0].Job.Prompt)
	assert.Equal(t, "Black and white", ticket.Uploads[1].Job.Prompt)

	children, err := jobs.FindByBatchID(ctx, "id-1")
	require.NoError(t, err)
	assert.Len(t, children, 2)
	_, err = batches.FindByID(ctx, "id-1")
	require.NoError(t, err)
}

func TestCreateBatchValidatesBeforeWriting(t *testing.T) {
	svc, _, batches, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateBatch(ctx, CreateBatchRequest{UserID: "u1"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateBatch(ctx, CreateBatchRequest{
		UserID: "u1",
		Files: []BatchFile{
			{FileName: "a.jpg", ContentType: "image/jpeg"},
			{FileName: "b.tiff", ContentType: "image/tiff"},
		},
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "files[1]")
	assert.Empty(t, store.puts)
	_, err = batches.FindByID(ctx, "id-1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	tooMany := make([]BatchFile, domain.MaxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = BatchFile{FileName: "a.jpg", ContentType: "image/jpeg"}
	}
	_, err = svc.CreateBatch(ctx, CreateBatchRequest{UserID: "u1", Files: tooMany})
	require.ErrorIs(t, err, domain.ErrValidation)
}

// TestScenarioDNotFound checks that looking up an unknown job reports
// NotFound and touches nothing.
func TestScenarioDNotFound(t *testing.T) {
	svc, _, _, store := newTestService(t)

	_, err := svc.GetJob(context.Background(), "u1", "never-created")
	require.ErrorIs(t, err, domain.ErrNotFound)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "never-created", nf.ID)
	assert.Empty(t, store.gets)
	assert.Empty(t, store.puts)
}

func TestGetJobHidesOtherUsersJobs(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.CreateJob(ctx, CreateJobRequest{UserID: "u1", FileName: "a.jpg", ContentType: "image/jpeg"})
	require.NoError(t, err)

	_, err = svc.GetJob(ctx, "u2", ticket.Job.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	view, err := svc.GetJob(ctx, "u1", ticket.Job.ID)
	require.NoError(t, err)
	assert.Empty(t, view.DownloadURL)
}

func TestGetJobPresignsCompletedResult(t *testing.T) {
	svc, jobs, _, store := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.CreateJob(ctx, CreateJobRequest{UserID: "u1", FileName: "a.jpg", ContentType: "image/jpeg"})
	require.NoError(t, err)
	final := "final/u1/" + ticket.Job.ID + "/a.jpg"
	_, err = jobs.UpdateStatus(ctx, ticket.Job.ID, domain.JobStatusCompleted, domain.JobUpdates{FinalObjectKey: &final})
	require.NoError(t, err)

	view, err := svc.GetJob(ctx, "u1", ticket.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://media.test/"+final+"?get", view.DownloadURL)
	assert.Equal(t, svcNow.Add(time.Hour), view.ExpiresAt)
	assert.Equal(t, []string{final}, store.gets)
}

func TestGetBatch(t *testing.T) {
	svc, jobs, _, _ := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.CreateBatch(ctx, CreateBatchRequest{
		UserID: "u1",
		Files:  []BatchFile{{FileName: "a.jpg", ContentType: "image/jpeg"}, {FileName: "b.jpg", ContentType: "image/jpeg"}},
	})
	require.NoError(t, err)
	final := "final/u1/id-2/a.jpg"
	_, err = jobs.UpdateStatus(ctx, "id-2", domain.JobStatusCompleted, domain.JobUpdates{FinalObjectKey: &final})
	require.NoError(t, err)

	view, err := svc.GetBatch(ctx, "u1", ticket.Batch.ID)
	require.NoError(t, err)
	require.Len(t, view.Jobs, 2)
	urls := map[string]string{}
	for _, j := range view.Jobs {
		urls[j.Job.ID] = j.DownloadURL
	}
	assert.NotEmpty(t, urls["id-2"])
	assert.Empty(t, urls["id-3"])

	_, err = svc.GetBatch(ctx, "u2", ticket.Batch.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.GetBatch(ctx, "u1", "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
