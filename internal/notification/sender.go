package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	core "github.com/frahmantamala/tutor-billing/internal"
)

// WebhookSender POSTs each notification to the configured transport
// URL, typically an internal delivery service that turns it into
// email or push.
type WebhookSender struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWebhookSender(cfg core.NotificationConfig, logger *slog.Logger) *WebhookSender {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		url:        cfg.TransportURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (s *WebhookSender) Send(ctx context.Context, notification *Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build transport request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transport request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("transport returned status %d", resp.StatusCode)
	}

	s.logger.Debug("notification forwarded",
		"notification_id", notification.ID,
		"notif_type", notification.NotifType)
	return nil
}
