// Package notifier posts scale events to a Slack incoming webhook. A failed
// notification is logged and dropped; it never fails the scaling cycle.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const postTimeout = 10 * time.Second

// Slack posts messages to a Slack incoming webhook URL.
type Slack struct {
	logger     *slog.Logger
	webhookURL string
	client     *http.Client
}

// NewSlack creates a Slack webhook notifier.
func NewSlack(logger *slog.Logger, webhookURL string) *Slack {
	return &Slack{
		logger:     logger,
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: postTimeout,
		},
	}
}

type payload struct {
	Text string `json:"text"`
}

// Notify posts the message to the webhook.
func (s *Slack) Notify(ctx context.Context, message string) {
	body, err := json.Marshal(payload{Text: message})
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal notification payload", "reason", err)

		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		s.logger.ErrorContext(ctx, "build notification request", "reason", err)

		return
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WarnContext(ctx, "notification post failed", "reason", err)

		return
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.WarnContext(ctx, "notification rejected",
			"reason", fmt.Errorf("unexpected status %d", resp.StatusCode),
		)

		return
	}

	s.logger.DebugContext(ctx, "notification posted", "message", message)
}

// Noop discards notifications. Used when no webhook is configured.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(context.Context, string) {}
