package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Client executes remediation actions against the hosting platform's
// operations endpoint. It satisfies the recovery strategy interfaces:
// cache invalidation, service restart, fallback activation, and
// connection pool reset.
//
// The endpoint is read from PLATFORM_URL. Without it the client runs in
// log-only mode: actions are logged and reported successful, which keeps
// local development working without a platform behind it.
type Client struct {
	log    zerolog.Logger
	url    string
	client *http.Client
}

type actionRequest struct {
	Operation string `json:"operation"`
	Target    string `json:"target"`
}

// NewClient creates a platform client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		log:    log.With().Str("component", "platform").Logger(),
		url:    os.Getenv("PLATFORM_URL"),
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Invalidate drops a cached entry by key.
func (c *Client) Invalidate(ctx context.Context, key string) error {
	return c.execute(ctx, "cache_invalidate", key)
}

// RequestRestart asks the platform to restart a named service.
func (c *Client) RequestRestart(ctx context.Context, service string) error {
	return c.execute(ctx, "service_restart", service)
}

// Activate switches a resource to its static fallback form.
func (c *Client) Activate(ctx context.Context, resource string) error {
	return c.execute(ctx, "fallback_activate", resource)
}

// Reset recycles a named connection pool.
func (c *Client) Reset(ctx context.Context, pool string) error {
	return c.execute(ctx, "connection_reset", pool)
}

func (c *Client) execute(ctx context.Context, operation, target string) error {
	if c.url == "" {
		c.log.Info().
			Str("operation", operation).
			Str("target", target).
			Msg("no platform endpoint configured, action logged only")
		return nil
	}

	payload, err := json.Marshal(actionRequest{Operation: operation, Target: target})
	if err != nil {
		return fmt.Errorf("marshaling action: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/actions", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building action request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing %s on %s: %w", operation, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("platform rejected %s on %s: status %d", operation, target, resp.StatusCode)
	}

	c.log.Info().
		Str("operation", operation).
		Str("target", target).
		Msg("platform action executed")
	return nil
}
