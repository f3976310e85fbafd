// Package notify delivers best-effort scan notifications. Delivery
// failures are the caller's to log and never anyone's to propagate.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type Notification struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, userID string, n Notification) error
}

// New returns a webhook notifier when a URL is configured, otherwise
// a log-only notifier.
func New(webhookURL string, log *zap.SugaredLogger) Notifier {
	if webhookURL != "" {
		return NewWebhookNotifier(webhookURL, log)
	}
	return &LogNotifier{log: log}
}

// LogNotifier writes notifications to the service log.
type LogNotifier struct {
	log *zap.SugaredLogger
}

func (n *LogNotifier) Notify(_ context.Context, userID string, msg Notification) error {
	n.log.Infow("notification", "user", userID, "type", msg.Type, "title", msg.Title, "message", msg.Message)
	return nil
}

// WebhookNotifier forwards notifications to an external delivery
// service (email/websocket fan-out lives behind it).
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	log        *zap.SugaredLogger
}

func NewWebhookNotifier(url string, log *zap.SugaredLogger) *WebhookNotifier {
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

type webhookPayload struct {
	UserID string `json:"userId"`
	Notification
}

func (n *WebhookNotifier) Notify(ctx context.Context, userID string, msg Notification) error {
	body, err := json.Marshal(webhookPayload{UserID: userID, Notification: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification delivery rejected (status %d)", resp.StatusCode)
	}
	return nil
}
