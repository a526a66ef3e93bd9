package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"photoflow/internal/domain"
)

// Publisher is the subset of the go-redis client used by RedisNotifier.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier publishes messages on a pub/sub channel. Messages are also
// published on a per-user channel "<channel>:<userId>".
type RedisNotifier struct {
	client  Publisher
	channel string
	now     func() time.Time
}

func NewRedisNotifier(client Publisher, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, now: time.Now}
}

func (n *RedisNotifier) NotifyJobStatus(ctx context.Context, job *domain.Job) error {
	return n.publish(ctx, JobMessage(job, n.now()))
}

func (n *RedisNotifier) NotifyBatchCompleted(ctx context.Context, batch *domain.BatchJob) error {
	return n.publish(ctx, BatchMessage(batch, n.now()))
}

func (n *RedisNotifier) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: encode message: %w", err)
	}
	for _, ch := range []string{n.channel, n.channel + ":" + msg.UserID} {
		if err := n.client.Publish(ctx, ch, body).Err(); err != nil {
			return fmt.Errorf("notify: redis publish %s: %w", ch, err)
		}
	}
	return nil
}

var _ Notifier = (*RedisNotifier)(nil)
