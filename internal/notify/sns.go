package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"photoflow/internal/domain"
)

// SNSAPI is the subset of the SNS client used by SNSNotifier.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes messages to a topic. userId and status are copied
// into message attributes so subscriptions can filter on them.
type SNSNotifier struct {
	api      SNSAPI
	topicARN string
	now      func() time.Time
}

func NewSNSNotifier(api SNSAPI, topicARN string) *SNSNotifier {
	return &SNSNotifier{api: api, topicARN: topicARN, now: time.Now}
}

func (n *SNSNotifier) NotifyJobStatus(ctx context.Context, job *domain.Job) error {
	return n.publish(ctx, JobMessage(job, n.now()))
}

func (n *SNSNotifier) NotifyBatchCompleted(ctx context.Context, batch *domain.BatchJob) error {
	return n.publish(ctx, BatchMessage(batch, n.now()))
}

func (n *SNSNotifier) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: encode message: %w", err)
	}
	_, err = n.api.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(msg.subject()),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"userId": stringAttribute(msg.UserID),
			"status": stringAttribute(msg.Status.String()),
			"type":   stringAttribute(msg.Type),
		},
	})
	if err != nil {
		return fmt.Errorf("notify: sns publish: %w", err)
	}
	return nil
}

func stringAttribute(v string) snstypes.MessageAttributeValue {
	return snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

var _ Notifier = (*SNSNotifier)(nil)
