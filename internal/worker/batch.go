package worker

import (
	"context"
	"fmt"

	"photoflow/internal/domain"
	"photoflow/internal/infra"
	"photoflow/internal/notify"
)

// BatchAggregator advances a batch as its children finish.
//
// Increments read the batch, compute the new count and write it back.
// Writes are existence-guarded only, so two children finishing at the same
// time can both write N+1 and one increment is lost.
type BatchAggregator struct {
	batches  domain.BatchJobRepository
	notifier notify.Notifier
	logger   infra.Logger
}

func NewBatchAggregator(batches domain.BatchJobRepository, notifier notify.Notifier, logger infra.Logger) *BatchAggregator {
	return &BatchAggregator{batches: batches, notifier: notifier, logger: infra.Component(logger, "batch")}
}

// IncrementBatchProgress counts one more finished child. When the count
// reaches the total the batch is COMPLETED and a batch notification is sent.
func (a *BatchAggregator) IncrementBatchProgress(ctx context.Context, batchID string) (*domain.BatchJob, error) {
	batch, err := a.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	progress, err := domain.CalculateBatchProgress(batch, 1)
	if err != nil {
		return nil, err
	}
	updated, err := a.batches.UpdateStatus(ctx, batchID, progress.Status, progress.Updates())
	if err != nil {
		return nil, err
	}
	log := a.logger.With().
		Str("batch_job_id", batchID).
		Int("completed", updated.CompletedCount).
		Int("total", updated.TotalCount).
		Logger()
	if !progress.Completed() {
		log.Debug().Msg("batch: progress")
		return updated, nil
	}
	log.Info().Msg("batch: completed")
	if err := a.notifier.NotifyBatchCompleted(ctx, updated); err != nil {
		log.Warn().Err(err).Msg("batch: notify failed")
	}
	return updated, nil
}

// FailBatch closes a batch as FAILED because a child could not be processed.
func (a *BatchAggregator) FailBatch(ctx context.Context, batchID, reason string) (*domain.BatchJob, error) {
	batch, err := a.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	tr, err := domain.FailBatch(batch, reason)
	if err != nil {
		return nil, err
	}
	updated, err := a.batches.UpdateStatus(ctx, batchID, tr.Status, tr.Updates)
	if err != nil {
		return nil, fmt.Errorf("fail batch %s: %w", batchID, err)
	}
	a.logger.Warn().Str("batch_job_id", batchID).Str("reason", reason).Msg("batch: failed")
	if err := a.notifier.NotifyBatchCompleted(ctx, updated); err != nil {
		a.logger.Warn().Err(err).Str("batch_job_id", batchID).Msg("batch: notify failed")
	}
	return updated, nil
}
