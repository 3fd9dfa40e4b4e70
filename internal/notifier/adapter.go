package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Receipt is the adapter's proof of delivery.
type Receipt struct {
	DeliveredAt time.Time `json:"delivered_at"`
	ProviderRef string    `json:"provider_ref,omitempty"`
}

// Adapter is the contract a channel transport must satisfy. Adapters
// must be safely retryable; idempotency across retries is the
// dispatcher's responsibility, not the adapter's.
type Adapter interface {
	Name() string
	Send(ctx context.Context, msg FormattedMessage) (Receipt, error)
}

// WebhookAdapter delivers messages as JSON over HTTP POST. The target
// URL is resolved from an environment variable so credentials stay out
// of config files.
type WebhookAdapter struct {
	log    zerolog.Logger
	name   string
	urlEnv string
	client *http.Client
}

// NewWebhookAdapter creates a webhook adapter for one channel.
func NewWebhookAdapter(log zerolog.Logger, name, urlEnv string, timeout time.Duration) *WebhookAdapter {
	return &WebhookAdapter{
		log:    log.With().Str("channel", name).Logger(),
		name:   name,
		urlEnv: urlEnv,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the channel name this adapter serves.
func (a *WebhookAdapter) Name() string { return a.name }

// Send posts the formatted message to the configured endpoint.
func (a *WebhookAdapter) Send(ctx context.Context, msg FormattedMessage) (Receipt, error) {
	url := os.Getenv(a.urlEnv)
	if url == "" {
		return Receipt{}, fmt.Errorf("channel %s: %s is not set", a.name, a.urlEnv)
	}

	payload, err := json.Marshal(map[string]string{
		"title": msg.Title,
		"body":  msg.Body,
		"color": msg.Color,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Receipt{}, fmt.Errorf("webhook error: %d - %s", resp.StatusCode, string(body))
	}

	return Receipt{
		DeliveredAt: time.Now(),
		ProviderRef: resp.Header.Get("X-Request-Id"),
	}, nil
}

// LogAdapter writes messages to the log instead of an external
// transport. Used for channels without a configured endpoint.
type LogAdapter struct {
	log  zerolog.Logger
	name string
}

// NewLogAdapter creates a log-only adapter for one channel.
func NewLogAdapter(log zerolog.Logger, name string) *LogAdapter {
	return &LogAdapter{
		log:  log.With().Str("channel", name).Logger(),
		name: name,
	}
}

// Name returns the channel name this adapter serves.
func (a *LogAdapter) Name() string { return a.name }

// Send logs the message and reports success.
func (a *LogAdapter) Send(_ context.Context, msg FormattedMessage) (Receipt, error) {
	a.log.Info().
		Str("title", msg.Title).
		Str("body", msg.Body).
		Msg("notification (log channel)")
	return Receipt{DeliveredAt: time.Now()}, nil
}
