package queue

import (
	"context"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"photoflow/internal/infra"
)

// LambdaHandler adapts handle to an SQS event source mapping with
// ReportBatchItemFailures enabled. Records are handled in order and only the
// failed ones are returned for redelivery.
func LambdaHandler(handle Handler, logger infra.Logger) func(context.Context, events.SQSEvent) (events.SQSEventResponse, error) {
	log := infra.Component(logger, "lambda")
	return func(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
		var resp events.SQSEventResponse
		for _, rec := range evt.Records {
			count, _ := strconv.Atoi(rec.Attributes["ApproximateReceiveCount"])
			msg := Message{ID: rec.MessageId, Body: rec.Body, ReceiveCount: count}
			if err := handle(ctx, msg); err != nil {
				log.Warn().Err(err).Str("message_id", rec.MessageId).Int("receive_count", count).Msg("lambda: record failed")
				resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
			}
		}
		return resp, nil
	}
}
