package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxPromptLength bounds user supplied prompts, in runes.
	MaxPromptLength = 2000
	// MaxBatchSize bounds the number of files in one batch.
	MaxBatchSize = 20
	// DefaultJobTTL is used when no expiry window is supplied.
	DefaultJobTTL = 7 * 24 * time.Hour
)

// allowedTransitions is the directed status graph. FAILED is reachable from
// every non-terminal state; terminal states have no outgoing edges.
var allowedTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusEditing, JobStatusFailed},
	JobStatusEditing:    {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to JobStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition is the outcome of a successful job state machine step: the new
// status plus the fields the repository must merge.
type Transition struct {
	Status  JobStatus
	Updates JobUpdates
}

// JobInput holds the construction parameters of a job.
type JobInput struct {
	ID              string
	UserID          string
	FileName        string
	UploadObjectKey string
	Prompt          string
	BatchJobID      string
	TTL             time.Duration
}

// CreateJobEntity validates input and returns a new QUEUED job.
func CreateJobEntity(in JobInput, now time.Time) (*Job, error) {
	if err := validateKeySegment("jobId", in.ID); err != nil {
		return nil, err
	}
	if err := validateKeySegment("userId", in.UserID); err != nil {
		return nil, err
	}
	if err := validateFileName(in.FileName); err != nil {
		return nil, err
	}
	if err := validatePrompt("prompt", in.Prompt); err != nil {
		return nil, err
	}
	ttl, err := resolveTTL(in.TTL)
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Job{
		ID:              in.ID,
		UserID:          in.UserID,
		Status:          JobStatusQueued,
		FileName:        in.FileName,
		UploadObjectKey: in.UploadObjectKey,
		Prompt:          strings.TrimSpace(in.Prompt),
		BatchJobID:      in.BatchJobID,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}, nil
}

// BatchInput holds the construction parameters of a batch.
type BatchInput struct {
	ID           string
	UserID       string
	SharedPrompt string
	JobIDs       []string
	TTL          time.Duration
}

// CreateBatchJobEntity validates input and returns a new batch. The total
// count is fixed to the number of child job ids.
func CreateBatchJobEntity(in BatchInput, now time.Time) (*BatchJob, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, &ValidationError{Field: "batchJobId", Reason: "is required"}
	}
	if err := validateKeySegment("userId", in.UserID); err != nil {
		return nil, err
	}
	if len(in.JobIDs) == 0 {
		return nil, &ValidationError{Field: "files", Reason: "must contain at least one file"}
	}
	if len(in.JobIDs) > MaxBatchSize {
		return nil, &ValidationError{Field: "files", Reason: fmt.Sprintf("must contain at most %d files", MaxBatchSize)}
	}
	seen := make(map[string]struct{}, len(in.JobIDs))
	for _, id := range in.JobIDs {
		if strings.TrimSpace(id) == "" {
			return nil, &ValidationError{Field: "jobIds", Reason: "must not contain empty ids"}
		}
		if _, dup := seen[id]; dup {
			return nil, &ValidationError{Field: "jobIds", Reason: "must be unique"}
		}
		seen[id] = struct{}{}
	}
	if err := validatePrompt("sharedPrompt", in.SharedPrompt); err != nil {
		return nil, err
	}
	ttl, err := resolveTTL(in.TTL)
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &BatchJob{
		ID:           in.ID,
		UserID:       in.UserID,
		SharedPrompt: strings.TrimSpace(in.SharedPrompt),
		TotalCount:   len(in.JobIDs),
		Status:       JobStatusProcessing,
		JobIDs:       append([]string(nil), in.JobIDs...),
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}, nil
}

// TransitionToProcessing moves a QUEUED job to PROCESSING and records the
// object key of the upload being worked on.
func TransitionToProcessing(job *Job, tempObjectKey string) (Transition, error) {
	if err := requireTransition(job, JobStatusProcessing); err != nil {
		return Transition{}, err
	}
	if strings.TrimSpace(tempObjectKey) == "" {
		return Transition{}, &ValidationError{Field: "tempObjectKey", Reason: "is required"}
	}
	return Transition{
		Status:  JobStatusProcessing,
		Updates: JobUpdates{TempObjectKey: stringPtr(tempObjectKey)},
	}, nil
}

// TransitionToEditing moves a PROCESSING job to EDITING.
func TransitionToEditing(job *Job) (Transition, error) {
	if err := requireTransition(job, JobStatusEditing); err != nil {
		return Transition{}, err
	}
	return Transition{Status: JobStatusEditing}, nil
}

// TransitionToCompleted moves an EDITING job to COMPLETED with its final key.
func TransitionToCompleted(job *Job, finalObjectKey string) (Transition, error) {
	if err := requireTransition(job, JobStatusCompleted); err != nil {
		return Transition{}, err
	}
	if strings.TrimSpace(finalObjectKey) == "" {
		return Transition{}, &ValidationError{Field: "finalObjectKey", Reason: "is required"}
	}
	return Transition{
		Status:  JobStatusCompleted,
		Updates: JobUpdates{FinalObjectKey: stringPtr(finalObjectKey), Error: stringPtr("")},
	}, nil
}

// TransitionToFailed moves any non-terminal job to FAILED.
func TransitionToFailed(job *Job, message string) (Transition, error) {
	if err := requireTransition(job, JobStatusFailed); err != nil {
		return Transition{}, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "job failed"
	}
	return Transition{
		Status:  JobStatusFailed,
		Updates: JobUpdates{Error: stringPtr(message), FinalObjectKey: stringPtr("")},
	}, nil
}

func requireTransition(job *Job, to JobStatus) error {
	if job == nil {
		return &ValidationError{Field: "job", Reason: "is required"}
	}
	if !CanTransition(job.Status, to) {
		return &InvalidStateTransitionError{Entity: "job", ID: job.ID, From: job.Status, To: to}
	}
	return nil
}

// validateKeySegment rejects identifiers that cannot form one segment of an
// object key.
func validateKeySegment(field, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	if strings.ContainsAny(trimmed, `/\`) || trimmed == "." || trimmed == ".." {
		return &ValidationError{Field: field, Reason: "must not contain path separators"}
	}
	return nil
}

func validateFileName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return &ValidationError{Field: "fileName", Reason: "is required"}
	}
	if strings.ContainsAny(trimmed, `/\`) || trimmed == "." || trimmed == ".." {
		return &ValidationError{Field: "fileName", Reason: "must not contain path separators"}
	}
	return nil
}

func validatePrompt(field, prompt string) error {
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be at most %d characters", MaxPromptLength)}
	}
	return nil
}

func resolveTTL(ttl time.Duration) (time.Duration, error) {
	if ttl == 0 {
		return DefaultJobTTL, nil
	}
	if ttl < 0 {
		return 0, &ValidationError{Field: "ttl", Reason: "must be positive"}
	}
	return ttl, nil
}
