package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoflow/internal/adapter/repo"
	"photoflow/internal/domain"
	"photoflow/internal/http/handlers"
	"photoflow/internal/middleware"
	"photoflow/internal/providers/vision"
	"photoflow/internal/queue"
	"photoflow/internal/service"
	"photoflow/internal/storage"
)

const testSecret = "test-secret"

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.UploadEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt queue.UploadEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

type staticHealth vision.Health

func (h staticHealth) HealthCheck(context.Context) vision.Health { return vision.Health(h) }

type testEnv struct {
	handler http.Handler
	jobs    *repo.MemoryJobs
	files   *storage.FileStore
	pub     *recordingPublisher
}

func newTestEnv(t *testing.T, health handlers.HealthChecker) *testEnv {
	t.Helper()
	files, err := storage.NewFileStore(storage.FileStoreOptions{
		BasePath: t.TempDir(),
		BaseURL:  "http://api.test/v1/files",
		Bucket:   "local",
		SignKey:  "sign",
	})
	require.NoError(t, err)
	jobs := repo.NewMemoryJobs()
	logger := zerolog.New(io.Discard)
	svc := service.New(service.Options{
		Jobs:    jobs,
		Batches: repo.NewMemoryBatches(),
		Store:   files,
		Logger:  logger,
	})
	pub := &recordingPublisher{}
	app := &handlers.App{Service: svc, Providers: health, Files: files, Uploads: pub, Logger: logger}
	return &testEnv{
		handler: NewRouter(app, Options{JWTSecret: testSecret, RateLimitPerMin: 1000, Logger: logger}),
		jobs:    jobs,
		files:   files,
		pub:     pub,
	}
}

func (e *testEnv) do(t *testing.T, method, target, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rdr)
	if user != "" {
		token, err := middleware.SignJWT(testSecret, middleware.TokenClaims{Sub: user, Exp: time.Now().Add(time.Hour).Unix()})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCreateJobUploadAndStatus(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/v1/jobs/", "u1", map[string]string{
		"fileName": "cat.jpg", "contentType": "image/jpeg", "prompt": "warmer",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	job := body["job"].(map[string]any)
	jobID := job["jobId"].(string)
	assert.Equal(t, "QUEUED", job["status"])
	assert.Equal(t, "PUT", body["method"])

	uploadURL, err := url.Parse(body["uploadUrl"].(string))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, uploadURL.RequestURI(), strings.NewReader("jpeg-bytes"))
	req.Header.Set("Content-Type", "image/jpeg")
	put := httptest.NewRecorder()
	env.handler.ServeHTTP(put, req)
	require.Equal(t, http.StatusOK, put.Code, put.Body.String())

	key := strings.TrimPrefix(uploadURL.Path, "/v1/files/")
	require.Len(t, env.pub.events, 1)
	assert.Equal(t, queue.UploadEvent{Bucket: "local", Key: key}, env.pub.events[0])
	obj, err := env.files.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(obj.Body))

	rec = env.do(t, http.MethodGet, "/v1/jobs/"+jobID, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jobID, decodeBody(t, rec)["jobId"])
	assert.NotContains(t, decodeBody(t, rec), "downloadUrl")
}

func TestCompletedJobHasDownloadURL(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/v1/jobs/", "u1", map[string]string{"fileName": "cat.jpg", "contentType": "image/jpeg"})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decodeBody(t, rec)["job"].(map[string]any)["jobId"].(string)

	final := "final/u1/" + jobID + "/cat.jpg"
	require.NoError(t, env.files.Put(context.Background(), final, []byte("edited"), storage.PutOptions{ContentType: "image/jpeg"}))
	for _, s := range []domain.JobStatus{domain.JobStatusProcessing, domain.JobStatusEditing} {
		_, err := env.jobs.UpdateStatus(context.Background(), jobID, s, domain.JobUpdates{})
		require.NoError(t, err)
	}
	_, err := env.jobs.UpdateStatus(context.Background(), jobID, domain.JobStatusCompleted, domain.JobUpdates{FinalObjectKey: &final})
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/v1/jobs/"+jobID, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "COMPLETED", body["status"])
	download, err := url.Parse(body["downloadUrl"].(string))
	require.NoError(t, err)

	get := httptest.NewRecorder()
	env.handler.ServeHTTP(get, httptest.NewRequest(http.MethodGet, download.RequestURI(), nil))
	require.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, "edited", get.Body.String())
	assert.Equal(t, "image/jpeg", get.Header().Get("Content-Type"))
}

func TestUnknownJobIsNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/v1/jobs/never-created", "u1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody(t, rec)["error"].(map[string]any)["code"])
}

func TestOtherUsersJobIsNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/v1/jobs/", "u1", map[string]string{"fileName": "cat.jpg", "contentType": "image/jpeg"})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decodeBody(t, rec)["job"].(map[string]any)["jobId"].(string)

	rec = env.do(t, http.MethodGet, "/v1/jobs/"+jobID, "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateJobRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/v1/jobs/", "u1", map[string]string{"fileName": "cat.txt", "contentType": "text/plain"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decodeBody(t, rec)["error"].(map[string]any)["code"])

	rec = env.do(t, http.MethodPost, "/v1/jobs/", "u1", map[string]string{"unknown": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/v1/jobs/j1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndGetBatch(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/v1/batches/", "u1", map[string]any{
		"sharedPrompt": "film look",
		"files": []map[string]string{
			{"fileName": "a.jpg", "contentType": "image/jpeg"},
			{"fileName": "b.png", "contentType": "image/png"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	batch := body["batch"].(map[string]any)
	assert.Equal(t, "PROCESSING", batch["status"])
	assert.EqualValues(t, 2, batch["totalCount"])
	assert.Len(t, body["uploads"], 2)

	rec = env.do(t, http.MethodGet, "/v1/batches/"+batch["batchJobId"].(string), "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)
	assert.EqualValues(t, 0, got["completedCount"])
	assert.Len(t, got["jobs"], 2)
}

func TestFileRoutesRejectBadSignature(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/files/final/u1/j1/a.jpg?expires=9999999999&signature=bad", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, env.pub.events)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, staticHealth{Analysis: true, Editing: false, EditingError: "401"})

	rec := env.do(t, http.MethodGet, "/v1/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/v1/healthz?deep=1", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decodeBody(t, rec)["status"])
}

func TestBatchArchive(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/v1/batches/", "u1", map[string]any{
		"files": []map[string]string{
			{"fileName": "a.jpg", "contentType": "image/jpeg"},
			{"fileName": "b.jpg", "contentType": "image/jpeg"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	batchID := decodeBody(t, rec)["batch"].(map[string]any)["batchJobId"].(string)

	rec = env.do(t, http.MethodGet, "/v1/batches/"+batchID+"/archive", "u1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, "nothing completed yet")

	jobs, err := env.jobs.FindByBatchID(context.Background(), batchID)
	require.NoError(t, err)
	done := jobs[0]
	final := "final/u1/" + done.ID + "/" + done.FileName
	require.NoError(t, env.files.Put(context.Background(), final, []byte("edited"), storage.PutOptions{ContentType: "image/jpeg"}))
	_, err = env.jobs.UpdateStatus(context.Background(), done.ID, domain.JobStatusCompleted, domain.JobUpdates{FinalObjectKey: &final})
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/v1/batches/"+batchID+"/archive", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, done.FileName, zr.File[0].Name)

	rec = env.do(t, http.MethodGet, "/v1/batches/"+batchID+"/archive", "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
