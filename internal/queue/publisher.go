package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Sender is the subset of the SQS client used by Publisher.
type Sender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher enqueues upload events for stores that cannot emit bucket
// notifications themselves.
type Publisher struct {
	api      Sender
	queueURL string
}

func NewPublisher(api Sender, queueURL string) *Publisher {
	return &Publisher{api: api, queueURL: queueURL}
}

func (p *Publisher) Publish(ctx context.Context, evt UploadEvent) error {
	if evt.Bucket == "" || evt.Key == "" {
		return fmt.Errorf("queue: publish: %w", ErrMalformedMessage)
	}
	body, err := EncodeMessage(evt)
	if err != nil {
		return fmt.Errorf("queue: encode: %w", err)
	}
	_, err = p.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("queue: send: %w", err)
	}
	return nil
}
