// internal/services/stream_notifier.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamNotifier appends each message to a Redis stream so downstream
// consumers (SMS gateways, analytics) can pick it up.
type StreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamNotifier(client *redis.Client, stream string, maxLen int64) *StreamNotifier {
	return &StreamNotifier{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

func (n *StreamNotifier) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("failed to encode stream data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			"communication_id": msg.CommunicationID.String(),
			"subject_kind":     string(msg.SubjectKind),
			"subject_id":       msg.SubjectID.String(),
			"kind":             msg.Kind,
			"recipient":        msg.Recipient,
			"data":             string(data),
			"timestamp":        time.Now().Unix(),
		},
	}
	if n.maxLen > 0 {
		args.MaxLen = n.maxLen
		args.Approx = true
	}

	if err := n.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", n.stream, err)
	}
	return nil
}
