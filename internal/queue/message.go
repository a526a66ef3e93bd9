// Package queue reads upload notifications from SQS and moves dead-lettered
// messages back for another attempt.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrMalformedMessage is returned when a body is neither an upload
	// envelope nor an S3 event notification.
	ErrMalformedMessage = errors.New("queue: malformed message")
	// ErrTestEvent marks the s3:TestEvent S3 sends when a notification is
	// configured. It carries no upload and should be acknowledged.
	ErrTestEvent = errors.New("queue: s3 test event")
)

// UploadEvent identifies one uploaded object.
type UploadEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

type s3Notification struct {
	Event   string `json:"Event"`
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// ParseMessage decodes a queue body. It accepts the {"bucket","key"}
// envelope and the S3 event notification format, whose keys arrive
// URL-encoded with '+' for spaces.
func ParseMessage(body string) (UploadEvent, error) {
	raw := []byte(strings.TrimSpace(body))
	if len(raw) == 0 {
		return UploadEvent{}, fmt.Errorf("%w: empty body", ErrMalformedMessage)
	}

	var envelope UploadEvent
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return UploadEvent{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if envelope.Bucket != "" && envelope.Key != "" {
		return envelope, nil
	}

	var note s3Notification
	if err := json.Unmarshal(raw, &note); err != nil {
		return UploadEvent{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if note.Event == "s3:TestEvent" {
		return UploadEvent{}, ErrTestEvent
	}
	switch len(note.Records) {
	case 0:
		return UploadEvent{}, fmt.Errorf("%w: bucket and key are required", ErrMalformedMessage)
	case 1:
	default:
		return UploadEvent{}, fmt.Errorf("%w: %d records in one message", ErrMalformedMessage, len(note.Records))
	}
	rec := note.Records[0]
	key, err := url.QueryUnescape(rec.S3.Object.Key)
	if err != nil {
		return UploadEvent{}, fmt.Errorf("%w: decode key: %v", ErrMalformedMessage, err)
	}
	if rec.S3.Bucket.Name == "" || key == "" {
		return UploadEvent{}, fmt.Errorf("%w: bucket and key are required", ErrMalformedMessage)
	}
	return UploadEvent{Bucket: rec.S3.Bucket.Name, Key: key}, nil
}

// EncodeMessage renders the envelope format.
func EncodeMessage(evt UploadEvent) (string, error) {
	raw, err := json.Marshal(evt)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
