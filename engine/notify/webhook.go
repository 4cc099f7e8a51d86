package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/compozy/orderetl/pkg/config"
	"github.com/compozy/orderetl/pkg/logger"
	"github.com/go-resty/resty/v2"
)

const defaultWebhookTimeout = 10 * time.Second

type webhookPayload struct {
	RunID   string `json:"run_id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Status  string `json:"status"`
}

// Webhook posts the report as JSON.
type Webhook struct {
	client *resty.Client
	url    string
}

func NewWebhook(cfg *config.WebhookConfig) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("notify: webhook url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	client.AddRetryCondition(retryCondition)
	return &Webhook{client: client, url: cfg.URL}, nil
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == 429 || code >= 500
}

func (w *Webhook) Notify(ctx context.Context, msg Message) error {
	status := "failure"
	if msg.Success {
		status = "success"
	}
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{RunID: msg.RunID, Subject: msg.Subject, Body: msg.Body, Status: status}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("post webhook: unexpected status %d", resp.StatusCode())
	}
	logger.FromContext(ctx).Info("Notification sent", "driver", "webhook", "subject", msg.Subject)
	return nil
}
