package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookConfig holds configuration for the webhook alerter.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// WebhookAlerter posts alerts as JSON to an HTTP endpoint. Works with
// Slack-compatible incoming webhooks and generic collectors.
type WebhookAlerter struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhookAlerter creates a new webhook alerter.
func NewWebhookAlerter(cfg WebhookConfig) *WebhookAlerter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookAlerter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the name of the alerter.
func (w *WebhookAlerter) Name() string {
	return "webhook"
}

type webhookPayload struct {
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Alert posts the alert to the configured endpoint.
func (w *WebhookAlerter) Alert(ctx context.Context, severity Severity, message string, fields ...any) error {
	payload := webhookPayload{
		Severity:  severity.String(),
		Message:   message,
		Details:   FormatFields(fields...),
		Timestamp: time.Now().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
