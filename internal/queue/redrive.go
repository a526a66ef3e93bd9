package queue

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"golang.org/x/sync/errgroup"

	"photoflow/internal/infra"
)

// Redriver moves messages from a dead-letter queue back to its source queue.
type Redriver struct {
	api         SQSAPI
	deadLetter  string
	destination string
	concurrency int
	log         infra.Logger
}

func NewRedriver(api SQSAPI, deadLetterURL, destinationURL string, logger infra.Logger) *Redriver {
	return &Redriver{
		api:         api,
		deadLetter:  deadLetterURL,
		destination: destinationURL,
		concurrency: 5,
		log:         infra.Component(logger, "redrive"),
	}
}

// Redrive moves up to max messages and returns how many were moved. A
// message is deleted from the dead-letter queue only after it was sent.
// It stops early when the dead-letter queue is empty.
func (r *Redriver) Redrive(ctx context.Context, max int) (int, error) {
	var moved int64
	for int(moved) < max {
		batch := int32(min(10, max-int(moved)))
		out, err := r.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(r.deadLetter),
			MaxNumberOfMessages: batch,
			WaitTimeSeconds:     1,
		})
		if err != nil {
			return int(moved), fmt.Errorf("redrive: receive: %w", err)
		}
		if len(out.Messages) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for _, m := range out.Messages {
			g.Go(func() error {
				if err := r.move(gctx, m); err != nil {
					return err
				}
				atomic.AddInt64(&moved, 1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return int(atomic.LoadInt64(&moved)), err
		}
	}
	r.log.Info().Int64("moved", moved).Msg("redrive finished")
	return int(moved), nil
}

func (r *Redriver) move(ctx context.Context, m types.Message) error {
	_, err := r.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(r.destination),
		MessageBody: m.Body,
	})
	if err != nil {
		return fmt.Errorf("redrive: send %s: %w", aws.ToString(m.MessageId), err)
	}
	_, err = r.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(r.deadLetter),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		return fmt.Errorf("redrive: delete %s: %w", aws.ToString(m.MessageId), err)
	}
	r.log.Debug().Str("message_id", aws.ToString(m.MessageId)).Msg("message redriven")
	return nil
}
