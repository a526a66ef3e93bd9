package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherRoundTrip(t *testing.T) {
	api := newFakeSQS()
	pub := NewPublisher(api, "main")

	evt := UploadEvent{Bucket: "local", Key: "uploads/u1/j1/1700000000-cat.jpg"}
	require.NoError(t, pub.Publish(context.Background(), evt))
	require.Equal(t, 1, api.depth("main"))

	api.mu.Lock()
	body := aws.ToString(api.queues["main"][0].Body)
	api.mu.Unlock()
	got, err := ParseMessage(body)
	require.NoError(t, err)
	assert.Equal(t, evt, got)
}

func TestPublisherErrors(t *testing.T) {
	api := newFakeSQS()
	pub := NewPublisher(api, "main")

	err := pub.Publish(context.Background(), UploadEvent{Bucket: "local"})
	require.ErrorIs(t, err, ErrMalformedMessage)

	api.sendErr = errors.New("throttled")
	err = pub.Publish(context.Background(), UploadEvent{Bucket: "local", Key: "uploads/u1/j1/1-a.jpg"})
	require.ErrorContains(t, err, "throttled")
	assert.Zero(t, api.depth("main"))
}
