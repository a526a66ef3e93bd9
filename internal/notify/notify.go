// Package notify publishes job and batch status changes to subscribers.
package notify

import (
	"context"
	"fmt"
	"time"

	"photoflow/internal/domain"
)

// Event types carried in Message.Type.
const (
	EventJobStatus      = "job.status"
	EventBatchCompleted = "batch.completed"
)

// Message is the payload every driver publishes.
type Message struct {
	Type           string           `json:"type"`
	UserID         string           `json:"userId"`
	JobID          string           `json:"jobId,omitempty"`
	BatchJobID     string           `json:"batchJobId,omitempty"`
	Status         domain.JobStatus `json:"status"`
	FinalObjectKey string           `json:"finalObjectKey,omitempty"`
	CompletedCount int              `json:"completedCount,omitempty"`
	TotalCount     int              `json:"totalCount,omitempty"`
	Error          string           `json:"error,omitempty"`
	Message        string           `json:"message"`
	OccurredAt     time.Time        `json:"occurredAt"`
}

// Notifier is the outbound port used by the worker.
type Notifier interface {
	NotifyJobStatus(ctx context.Context, job *domain.Job) error
	NotifyBatchCompleted(ctx context.Context, batch *domain.BatchJob) error
}

// JobMessage builds the message for a job's current state.
func JobMessage(job *domain.Job, at time.Time) Message {
	return Message{
		Type:           EventJobStatus,
		UserID:         job.UserID,
		JobID:          job.ID,
		BatchJobID:     job.BatchJobID,
		Status:         job.Status,
		FinalObjectKey: job.FinalObjectKey,
		Error:          job.Error,
		Message:        jobText(job),
		OccurredAt:     at.UTC(),
	}
}

// BatchMessage builds the message for a closed batch.
func BatchMessage(batch *domain.BatchJob, at time.Time) Message {
	return Message{
		Type:           EventBatchCompleted,
		UserID:         batch.UserID,
		BatchJobID:     batch.ID,
		Status:         batch.Status,
		CompletedCount: batch.CompletedCount,
		TotalCount:     batch.TotalCount,
		Error:          batch.Error,
		Message:        batchText(batch),
		OccurredAt:     at.UTC(),
	}
}

func jobText(job *domain.Job) string {
	switch job.Status {
	case domain.JobStatusQueued:
		return "Your photo is queued"
	case domain.JobStatusProcessing:
		return "Your photo is being analyzed"
	case domain.JobStatusEditing:
		return "Your photo is being edited"
	case domain.JobStatusCompleted:
		return "Your photo is ready"
	case domain.JobStatusFailed:
		if job.Error == "" {
			return "Processing failed"
		}
		return "Processing failed: " + job.Error
	}
	return "Your photo status changed to " + job.Status.String()
}

func batchText(batch *domain.BatchJob) string {
	if batch.Status == domain.JobStatusFailed {
		if batch.Error == "" {
			return fmt.Sprintf("Batch failed after %d of %d photos", batch.CompletedCount, batch.TotalCount)
		}
		return fmt.Sprintf("Batch failed after %d of %d photos: %s", batch.CompletedCount, batch.TotalCount, batch.Error)
	}
	return fmt.Sprintf("Batch complete: %d of %d photos", batch.CompletedCount, batch.TotalCount)
}

// subject is a short ASCII title for transports that show one, such as
// SNS email subscriptions.
func (m Message) subject() string {
	switch {
	case m.Type == EventBatchCompleted && m.Status == domain.JobStatusFailed:
		return "Photo batch failed"
	case m.Type == EventBatchCompleted:
		return "Photo batch complete"
	case m.Status == domain.JobStatusCompleted:
		return "Photo ready"
	case m.Status == domain.JobStatusFailed:
		return "Photo processing failed"
	}
	return "Photo update"
}
