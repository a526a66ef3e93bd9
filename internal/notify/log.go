package notify

import (
	"context"
	"time"

	"photoflow/internal/domain"
	"photoflow/internal/infra"
)

// LogNotifier writes notifications to the structured log. It is the local
// development driver.
type LogNotifier struct {
	logger infra.Logger
	now    func() time.Time
}

func NewLogNotifier(logger infra.Logger) *LogNotifier {
	return &LogNotifier{logger: infra.Component(logger, "notify"), now: time.Now}
}

func (n *LogNotifier) NotifyJobStatus(ctx context.Context, job *domain.Job) error {
	n.emit(JobMessage(job, n.now()))
	return nil
}

func (n *LogNotifier) NotifyBatchCompleted(ctx context.Context, batch *domain.BatchJob) error {
	n.emit(BatchMessage(batch, n.now()))
	return nil
}

func (n *LogNotifier) emit(msg Message) {
	evt := n.logger.Info().
		Str("type", msg.Type).
		Str("user_id", msg.UserID).
		Str("status", msg.Status.String())
	if msg.JobID != "" {
		evt = evt.Str("job_id", msg.JobID)
	}
	if msg.BatchJobID != "" {
		evt = evt.Str("batch_job_id", msg.BatchJobID)
	}
	if msg.FinalObjectKey != "" {
		evt = evt.Str("final_key", msg.FinalObjectKey)
	}
	if msg.Error != "" {
		evt = evt.Str("error", msg.Error)
	}
	evt.Str("message", msg.Message).Msg("notification")
}

var _ Notifier = (*LogNotifier)(nil)
