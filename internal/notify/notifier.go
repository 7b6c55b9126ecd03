// Package notify delivers recall notices to borrowers.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kaizen2025/bulkops/internal/metrics"
)

// Notice is one recall message for one borrower.
type Notice struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Delivery reports the outcome of a send attempt.
type Delivery struct {
	Delivered bool
	MessageID string
}

// Notifier sends recall notices. Used only by the recall action.
type Notifier interface {
	SendRecall(ctx context.Context, notice Notice) (*Delivery, error)
}

// -----------------------------------------------------------------------------
// Webhook notifier
// -----------------------------------------------------------------------------

// WebhookNotifier posts notices to an external mail gateway.
type WebhookNotifier struct {
	endpoint string
	client   *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(endpoint string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// SendRecall posts the notice and treats any non-2xx status as a
// failed delivery.
func (n *WebhookNotifier) SendRecall(ctx context.Context, notice Notice) (*Delivery, error) {
	payload, err := json.Marshal(notice)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notice: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to deliver recall notice: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.NotificationsTotal.WithLabelValues("rejected").Inc()
		return &Delivery{Delivered: false}, nil
	}

	metrics.NotificationsTotal.WithLabelValues("delivered").Inc()
	return &Delivery{
		Delivered: true,
		MessageID: uuid.NewString(),
	}, nil
}

// -----------------------------------------------------------------------------
// Nop notifier
// -----------------------------------------------------------------------------

// NopNotifier reports every notice as delivered. Used when no mail
// gateway is configured.
type NopNotifier struct{}

func (NopNotifier) SendRecall(ctx context.Context, notice Notice) (*Delivery, error) {
	metrics.NotificationsTotal.WithLabelValues("delivered").Inc()
	return &Delivery{
		Delivered: true,
		MessageID: uuid.NewString(),
	}, nil
}
