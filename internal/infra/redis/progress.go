package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

const progressChannel = "bulkops:progress"

// ProgressEvent is published for UIs following a long-running operation.
type ProgressEvent struct {
	OperationID string    `json:"operation_id"`
	Percent     int       `json:"percent"`
	Label       string    `json:"label"`
	Timestamp   time.Time `json:"timestamp"`
}

// ProgressPublisher fans out operation progress over Redis pub/sub.
// Publishing is fire-and-forget: a slow or dead subscriber never stalls
// the executor.
type ProgressPublisher struct {
	client *Client
}

// NewProgressPublisher creates a progress publisher.
func NewProgressPublisher(client *Client) *ProgressPublisher {
	return &ProgressPublisher{client: client}
}

// Publish sends one progress event.
func (p *ProgressPublisher) Publish(ctx context.Context, operationID string, percent int, label string) {
	payload, err := json.Marshal(ProgressEvent{
		OperationID: operationID,
		Percent:     percent,
		Label:       label,
		Timestamp:   time.Now(),
	})
	if err != nil {
		return
	}
	if err := p.client.rdb.Publish(ctx, progressChannel, payload).Err(); err != nil {
		slog.Debug("Failed to publish progress event", "operation", operationID, "error", err)
	}
}
