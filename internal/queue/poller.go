package queue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"photoflow/internal/infra"
)

// SQSAPI is the subset of the SQS client used by Poller and Redriver.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Message is one delivery handed to a Handler.
type Message struct {
	ID           string
	Body         string
	ReceiveCount int
}

// Handler processes one message. A nil return acknowledges it; an error
// leaves it on the queue for redelivery.
type Handler func(ctx context.Context, msg Message) error

// PollerOptions configures NewPoller.
type PollerOptions struct {
	QueueURL          string
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
	MaxMessages       int32
	// Backoff is the pause after a failed receive call.
	Backoff time.Duration
	Logger  infra.Logger
}

// Poller long-polls an SQS queue and handles messages one at a time.
type Poller struct {
	api  SQSAPI
	opts PollerOptions
	log  infra.Logger
}

func NewPoller(api SQSAPI, opts PollerOptions) *Poller {
	if opts.WaitTime <= 0 || opts.WaitTime > 20*time.Second {
		opts.WaitTime = 20 * time.Second
	}
	if opts.MaxMessages <= 0 || opts.MaxMessages > 10 {
		opts.MaxMessages = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	return &Poller{api: api, opts: opts, log: infra.Component(opts.Logger, "poller")}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context, handle Handler) error {
	p.log.Info().Str("queue", p.opts.QueueURL).Msg("poller started")
	for {
		if ctx.Err() != nil {
			p.log.Info().Msg("poller stopped")
			return nil
		}
		n, err := p.PollOnce(ctx, handle)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			p.log.Error().Err(err).Msg("receive failed")
			select {
			case <-ctx.Done():
			case <-time.After(p.opts.Backoff):
			}
			continue
		}
		p.log.Debug().Int("messages", n).Msg("poll")
	}
}

// PollOnce performs one receive call and handles what it returns. It
// reports the number of messages received.
func (p *Poller) PollOnce(ctx context.Context, handle Handler) (int, error) {
	in := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(p.opts.QueueURL),
		MaxNumberOfMessages: p.opts.MaxMessages,
		WaitTimeSeconds:     int32(p.opts.WaitTime / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	}
	if p.opts.VisibilityTimeout > 0 {
		in.VisibilityTimeout = int32(p.opts.VisibilityTimeout / time.Second)
	}
	out, err := p.api.ReceiveMessage(ctx, in)
	if err != nil {
		return 0, err
	}
	for _, m := range out.Messages {
		p.dispatch(ctx, m, handle)
	}
	return len(out.Messages), nil
}

func (p *Poller) dispatch(ctx context.Context, m types.Message, handle Handler) {
	msg := Message{
		ID:           aws.ToString(m.MessageId),
		Body:         aws.ToString(m.Body),
		ReceiveCount: receiveCount(m),
	}
	log := p.log.With().Str("message_id", msg.ID).Int("receive_count", msg.ReceiveCount).Logger()

	if err := handle(ctx, msg); err != nil {
		log.Warn().Err(err).Msg("message left for redelivery")
		return
	}
	_, err := p.api.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(p.opts.QueueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		log.Error().Err(err).Msg("delete message failed")
		return
	}
	log.Debug().Msg("message acknowledged")
}

func receiveCount(m types.Message) int {
	raw := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
