package domain

import (
	"fmt"
	"time"
)

// JobStatus enumerates job and batch lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusEditing    JobStatus = "EDITING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusEditing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

func (s JobStatus) String() string { return string(s) }

// ParseJobStatus converts a stored status, rejecting unknown values.
func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return status, nil
}

// Job is one unit of work transforming a single uploaded photo.
type Job struct {
	ID              string
	UserID          string
	Status          JobStatus
	FileName        string
	UploadObjectKey string
	TempObjectKey   string
	FinalObjectKey  string
	Error           string
	Prompt          string
	BatchJobID      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Clone returns a copy that can be mutated without touching the snapshot.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	return &cp
}

// JobUpdates carries the optional fields merged by an UpdateStatus call.
// Nil pointers leave the stored value untouched.
type JobUpdates struct {
	TempObjectKey  *string
	FinalObjectKey *string
	Error          *string
}

// Apply merges the updates into job in place.
func (u JobUpdates) Apply(job *Job) {
	if u.TempObjectKey != nil {
		job.TempObjectKey = *u.TempObjectKey
	}
	if u.FinalObjectKey != nil {
		job.FinalObjectKey = *u.FinalObjectKey
	}
	if u.Error != nil {
		job.Error = *u.Error
	}
}

// BatchJob tracks several jobs submitted together under a shared prompt.
type BatchJob struct {
	ID             string
	UserID         string
	SharedPrompt   string
	TotalCount     int
	CompletedCount int
	Status         JobStatus
	JobIDs         []string
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      time.Time
}

// Clone returns a deep copy of the batch snapshot.
func (b *BatchJob) Clone() *BatchJob {
	if b == nil {
		return nil
	}
	cp := *b
	cp.JobIDs = append([]string(nil), b.JobIDs...)
	return &cp
}

// BatchUpdates carries the optional fields merged by a batch UpdateStatus call.
type BatchUpdates struct {
	CompletedCount *int
	Error          *string
}

// Apply merges the updates into batch in place.
func (u BatchUpdates) Apply(batch *BatchJob) {
	if u.CompletedCount != nil {
		batch.CompletedCount = *u.CompletedCount
	}
	if u.Error != nil {
		batch.Error = *u.Error
	}
}

func stringPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
