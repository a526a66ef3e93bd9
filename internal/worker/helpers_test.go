package worker

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"photoflow/internal/adapter/repo"
	"photoflow/internal/domain"
	"photoflow/internal/providers/vision"
	"photoflow/internal/storage"
)

const (
	testBucket    = "media"
	testUploadKey = "uploads/u1/j1/1700000000-cat.jpg"
	testOptimized = "optimized/u1/j1/cat.jpg"
	testFinal     = "final/u1/j1/cat.jpg"
)

var (
	testNow      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	editedBytes  = []byte("edited-jpeg-bytes")
	editedURL    = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(editedBytes)
	discardLog   = zerolog.New(io.Discard)
	defaultWords = "Make it look great"
)

// memStore is an in-memory ObjectStore that records every mutation.
type memStore struct {
	mu      sync.Mutex
	objects map[string]storage.Object
	ops     []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]storage.Object{}}
}

func (s *memStore) Bucket() string { return testBucket }

func (s *memStore) Get(ctx context.Context, key string) (*storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, storage.ErrObjectNotFound)
	}
	return &obj, nil
}

func (s *memStore) Put(ctx context.Context, key string, data []byte, opts storage.PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = storage.Object{Body: append([]byte(nil), data...), ContentType: opts.ContentType, Metadata: opts.Metadata}
	s.ops = append(s.ops, "put "+key)
	return nil
}

func (s *memStore) Copy(ctx context.Context, src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[src]
	if !ok {
		return fmt.Errorf("copy %s: %w", src, storage.ErrObjectNotFound)
	}
	s.objects[dst] = obj
	s.ops = append(s.ops, "copy "+src+" -> "+dst)
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.ops = append(s.ops, "delete "+key)
	return nil
}

func (s *memStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://media.test/" + key + "?ttl=" + ttl.String(), nil
}

func (s *memStore) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return "https://media.test/" + key + "?put", nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *memStore) body(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key].Body
}

func (s *memStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.ops {
		if o == op {
			n++
		}
	}
	return n
}

func (s *memStore) mutations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

// recordingNotifier keeps every notification.
type recordingNotifier struct {
	mu      sync.Mutex
	jobs    []domain.Job
	batches []domain.BatchJob
}

func (n *recordingNotifier) NotifyJobStatus(ctx context.Context, job *domain.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, *job)
	return nil
}

func (n *recordingNotifier) NotifyBatchCompleted(ctx context.Context, batch *domain.BatchJob) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, *batch.Clone())
	return nil
}

func (n *recordingNotifier) jobStatuses(jobID string) []domain.JobStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.JobStatus
	for _, j := range n.jobs {
		if j.ID == jobID {
			out = append(out, j.Status)
		}
	}
	return out
}

func (n *recordingNotifier) batchCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.batches)
}

// fakeAnalyzer returns a scripted result and records requests.
type fakeAnalyzer struct {
	mu       sync.Mutex
	result   vision.AnalysisResult
	requests []vision.AnalysisRequest
	hook     func(call int)
}

func (a *fakeAnalyzer) Name() string { return "fake" }

func (a *fakeAnalyzer) Analyze(ctx context.Context, req vision.AnalysisRequest) vision.AnalysisResult {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	call := len(a.requests)
	hook := a.hook
	a.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return a.result
}

func (a *fakeAnalyzer) HealthCheck(ctx context.Context) error { return nil }

type fakeEditor struct {
	mu       sync.Mutex
	result   vision.EditResult
	requests []vision.EditRequest
}

func (e *fakeEditor) Name() string { return "fake" }

func (e *fakeEditor) Edit(ctx context.Context, req vision.EditRequest) vision.EditResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	return e.result
}

func (e *fakeEditor) HealthCheck(ctx context.Context) error { return nil }

// logBuffer collects log lines from concurrent deliveries.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	logs     *logBuffer
	jobs     *repo.MemoryJobs
	batches  *repo.MemoryBatches
	store    *memStore
	notifier *recordingNotifier
	analyzer *fakeAnalyzer
	editor   *fakeEditor
	orch     *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		logs:     &logBuffer{},
		jobs:     repo.NewMemoryJobs(),
		batches:  repo.NewMemoryBatches(),
		store:    newMemStore(),
		notifier: &recordingNotifier{},
		analyzer: &fakeAnalyzer{result: vision.AnalysisResult{Success: true, Data: &vision.Analysis{
			Description: "A cat on a sofa",
			Issues:      []string{"underexposed"},
		}}},
		editor: &fakeEditor{result: vision.EditResult{Success: true, EditedImageURL: editedURL}},
	}
	orch, err := New(Options{
		Jobs:          h.jobs,
		Batches:       h.batches,
		Store:         h.store,
		Providers:     &vision.Registry{Analyzer: h.analyzer, Editor: h.editor},
		Notifier:      h.notifier,
		Logger:        zerolog.New(h.logs),
		DefaultPrompt: defaultWords,
	})
	require.NoError(t, err)
	h.orch = orch
	return h
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 20), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadKey(jobID string) string {
	return "uploads/u1/" + jobID + "/1700000000-cat.jpg"
}

func body(key string) string {
	return fmt.Sprintf(`{"bucket":%q,"key":%q}`, testBucket, key)
}

// seedJob creates a QUEUED job and its uploaded object.
func (h *harness) seedJob(t *testing.T, jobID, batchID, prompt string) *domain.Job {
	t.Helper()
	job, err := domain.CreateJobEntity(domain.JobInput{
		ID:              jobID,
		UserID:          "u1",
		FileName:        "cat.jpg",
		UploadObjectKey: uploadKey(jobID),
		Prompt:          prompt,
		BatchJobID:      batchID,
	}, testNow)
	require.NoError(t, err)
	_, err = h.jobs.Create(context.Background(), job)
	require.NoError(t, err)
	require.NoError(t, h.store.Put(context.Background(), uploadKey(jobID), testPNG(t), storage.PutOptions{ContentType: "image/png"}))
	return job
}

func (h *harness) seedBatch(t *testing.T, batchID string, jobIDs ...string) {
	t.Helper()
	batch, err := domain.CreateBatchJobEntity(domain.BatchInput{ID: batchID, UserID: "u1", SharedPrompt: "Warm tones", JobIDs: jobIDs}, testNow)
	require.NoError(t, err)
	_, err = h.batches.Create(context.Background(), batch)
	require.NoError(t, err)
	for _, id := range jobIDs {
		h.seedJob(t, id, batchID, "Warm tones")
	}
}

func (h *harness) job(t *testing.T, id string) *domain.Job {
	t.Helper()
	job, err := h.jobs.FindByID(context.Background(), id)
	require.NoError(t, err)
	return job
}

func (h *harness) batch(t *testing.T, id string) *domain.BatchJob {
	t.Helper()
	batch, err := h.batches.FindByID(context.Background(), id)
	require.NoError(t, err)
	return batch
}

func sortedKeys(m map[string]storage.Object) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
