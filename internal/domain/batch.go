package domain

import (
	"fmt"
	"strings"
)

// BatchProgress is the derived state of a batch after a completion delta.
type BatchProgress struct {
	CompletedCount int
	Status         JobStatus
}

// Completed reports whether the progress closes the batch.
func (p BatchProgress) Completed() bool {
	return p.Status == JobStatusCompleted
}

// Updates returns the repository updates that persist p.
func (p BatchProgress) Updates() BatchUpdates {
	return BatchUpdates{CompletedCount: intPtr(p.CompletedCount)}
}

// CalculateBatchProgress returns the incremented completed count and the
// resulting status. The status becomes COMPLETED exactly when the count
// reaches the total; otherwise it is left untouched. An increment past the
// total is a logic error and is reported with ErrBatchOverflow instead of
// being clamped.
func CalculateBatchProgress(batch *BatchJob, delta int) (BatchProgress, error) {
	if batch == nil {
		return BatchProgress{}, &ValidationError{Field: "batch", Reason: "is required"}
	}
	if delta <= 0 {
		return BatchProgress{}, &ValidationError{Field: "delta", Reason: "must be positive"}
	}
	next := batch.CompletedCount + delta
	if batch.Status.Terminal() {
		return BatchProgress{}, &InvalidStateTransitionError{
			Entity: "batch",
			ID:     batch.ID,
			From:   batch.Status,
			To:     progressStatus(batch, next),
		}
	}
	if next > batch.TotalCount {
		return BatchProgress{}, fmt.Errorf("batch %s: %d + %d > %d: %w",
			batch.ID, batch.CompletedCount, delta, batch.TotalCount, ErrBatchOverflow)
	}
	return BatchProgress{CompletedCount: next, Status: progressStatus(batch, next)}, nil
}

func progressStatus(batch *BatchJob, completed int) JobStatus {
	if completed >= batch.TotalCount {
		return JobStatusCompleted
	}
	return batch.Status
}

// BatchTransition is the outcome of a batch status change other than progress.
type BatchTransition struct {
	Status  JobStatus
	Updates BatchUpdates
}

// FailBatch marks a non-terminal batch FAILED because one of its children
// could not be processed.
func FailBatch(batch *BatchJob, message string) (BatchTransition, error) {
	if batch == nil {
		return BatchTransition{}, &ValidationError{Field: "batch", Reason: "is required"}
	}
	if batch.Status.Terminal() {
		return BatchTransition{}, &InvalidStateTransitionError{
			Entity: "batch",
			ID:     batch.ID,
			From:   batch.Status,
			To:     JobStatusFailed,
		}
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "batch failed"
	}
	return BatchTransition{
		Status:  JobStatusFailed,
		Updates: BatchUpdates{Error: stringPtr(message)},
	}, nil
}
