package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// LinkSender delivers a set-password link to a tenant.
type LinkSender interface {
	SendPasswordLink(ctx context.Context, email, link string) error
}

// LogLinkSender only logs the link; used when no delivery hook is configured.
type LogLinkSender struct {
	logger *zap.SugaredLogger
}

func NewLogLinkSender(logger *zap.SugaredLogger) *LogLinkSender {
	return &LogLinkSender{logger: logger}
}

func (l *LogLinkSender) SendPasswordLink(_ context.Context, email, link string) error {
	l.logger.Infow("password creation link issued", "email", email)
	l.logger.Debugw("password creation link", "email", email, "link", link)
	return nil
}

// WebhookLinkSender POSTs {"email", "link"} to an external endpoint (mail
// relay, chat hook) which does the actual delivery.
type WebhookLinkSender struct {
	client *resty.Client
	url    string
	logger *zap.SugaredLogger
}

type linkPayload struct {
	Email string `json:"email"`
	Link  string `json:"link"`
	Type  string `json:"type"`
}

func NewWebhookLinkSender(url string, logger *zap.SugaredLogger) *WebhookLinkSender {
	client := resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json")
	return &WebhookLinkSender{client: client, url: url, logger: logger}
}

func (s *WebhookLinkSender) SendPasswordLink(ctx context.Context, email, link string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(linkPayload{Email: email, Link: link, Type: "set_password"}).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	if resp.IsError() {
		s.logger.Warnw("password link webhook rejected", "status", resp.StatusCode(), "email", email)
		return fmt.Errorf("webhook returned %d", resp.StatusCode())
	}
	s.logger.Debugw("password link delivered", "email", email, "status", resp.StatusCode())
	return nil
}

// NewLinkSender picks the webhook sender when a URL is configured.
func NewLinkSender(cfg Config, logger *zap.SugaredLogger) LinkSender {
	if cfg.WebhookURL != "" {
		return NewWebhookLinkSender(cfg.WebhookURL, logger)
	}
	return NewLogLinkSender(logger)
}
