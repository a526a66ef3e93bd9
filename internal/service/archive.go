package service

import (
	"context"
	"fmt"

	"photoflow/internal/domain"
	"photoflow/pkg/zip"
)

// BatchArchive collects the final photos of a batch owned by userID. Jobs
// that have not completed are skipped.
func (s *Service) BatchArchive(ctx context.Context, userID, batchID string) ([]zip.Entry, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.UserID != userID {
		return nil, &domain.NotFoundError{Entity: "batch", ID: batchID}
	}
	children, err := s.jobs.FindByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	entries := make([]zip.Entry, 0, len(children))
	for _, job := range children {
		if job.Status != domain.JobStatusCompleted || job.FinalObjectKey == "" {
			continue
		}
		obj, err := s.store.Get(ctx, job.FinalObjectKey)
		if err != nil {
			return nil, fmt.Errorf("load result of job %s: %w", job.ID, err)
		}
		entries = append(entries, zip.Entry{Name: job.FileName, Modified: job.UpdatedAt, Data: obj.Body})
	}
	if len(entries) == 0 {
		return nil, &domain.ValidationError{Field: "batchJobId", Reason: "has no completed photos yet"}
	}
	s.logger.Debug().Str("batch_id", batchID).Int("photos", len(entries)).Msg("service: batch archive built")
	return entries, nil
}
