package respond

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"trendguard/internal/logger"
	"trendguard/pkg/models"
)

// WebhookConfig configures the HTTP notifier.
type WebhookConfig struct {
	URL       string
	Timeout   time.Duration
	Headers   map[string]string
	PerMinute int
}

// WebhookNotifier posts notify actions to a moderation-team webhook, rate
// limited like the log notifier.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebhookNotifier creates an HTTP notifier.
func NewWebhookNotifier(cfg WebhookConfig) (*WebhookNotifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	return &WebhookNotifier{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}, nil
}

type webhookPayload struct {
	ContentID string                `json:"content_id"`
	Action    models.ResponseAction `json:"action"`
	SentAt    time.Time             `json:"sent_at"`
}

// Notify posts one notification. Over-limit notifications are dropped with a
// warning rather than blocking a response worker.
func (n *WebhookNotifier) Notify(ctx context.Context, contentID string, action models.ResponseAction) error {
	if !n.limiter.Allow() {
		logger.Warnf("notification rate limit exceeded, dropping webhook notify for content %s", contentID)
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		ContentID: contentID,
		Action:    action,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status %s", resp.Status)
	}
	return nil
}
