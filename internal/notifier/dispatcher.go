package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pulseguard/pulseguard/internal/audit"
	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/metrics"
	"github.com/pulseguard/pulseguard/internal/ratelimit"
	"github.com/pulseguard/pulseguard/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrDeliveryExhausted is returned when a message could not be
// delivered on any channel, including fallbacks.
var ErrDeliveryExhausted = errors.New("all delivery channels exhausted")

// Delivery outcomes recorded on the alert's notification log.
const (
	OutcomeSent        = "sent"
	OutcomeFailed      = "failed"
	OutcomeRateLimited = "rate_limited"
	OutcomeFallback    = "fallback"
	OutcomeSkipped     = "skipped"
)

// maxBackoff caps the exponential backoff between send retries.
const maxBackoff = 10 * time.Second

// DeliveryResult is the outcome of attempting one channel.
type DeliveryResult struct {
	Channel  string  `json:"channel"`
	Outcome  string  `json:"outcome"`
	OK       bool    `json:"ok"`
	Attempts int     `json:"attempts"`
	Receipt  Receipt `json:"receipt,omitempty"`
	Detail   string  `json:"detail,omitempty"`
}

// Options tune a delivery request.
type Options struct {
	// BackoffBase is the first retry delay; doubles per attempt. Default 1s.
	BackoffBase time.Duration
}

// Recorder appends delivery outcomes to an alert's notification log.
type Recorder interface {
	AppendNotification(alertID string, rec types.NotificationRecord)
}

// Dispatcher formats and sends alerts through channel adapters,
// applying rate limiting, bounded retries, and ordered fallback.
type Dispatcher struct {
	log      zerolog.Logger
	cfg      config.ChannelsConfig
	adapters map[string]Adapter
	limiter  *ratelimit.Limiter
	recorder Recorder
	audit    *audit.Writer
	metrics  *metrics.Metrics
}

// NewDispatcher creates a dispatcher over the given channel adapters.
func NewDispatcher(log zerolog.Logger, cfg config.ChannelsConfig, adapters map[string]Adapter, limiter *ratelimit.Limiter, recorder Recorder, auditWriter *audit.Writer, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		log:      log.With().Str("component", "notifier").Logger(),
		cfg:      cfg,
		adapters: adapters,
		limiter:  limiter,
		recorder: recorder,
		audit:    auditWriter,
		metrics:  m,
	}
}

// BuildAdapters constructs the adapter for each configured channel.
func BuildAdapters(log zerolog.Logger, cfg config.ChannelsConfig) map[string]Adapter {
	adapters := make(map[string]Adapter, len(cfg.Channels))
	for name, ch := range cfg.Channels {
		switch ch.Type {
		case "webhook":
			adapters[name] = NewWebhookAdapter(log, name, ch.URLEnv, ch.Timeout.Std())
		default:
			adapters[name] = NewLogAdapter(log, name)
		}
	}
	return adapters
}

// Deliver attempts the message on every requested channel concurrently.
// Channels are independent; no ordering is guaranteed between them.
func (d *Dispatcher) Deliver(ctx context.Context, channels []string, msg Message, opts Options) []DeliveryResult {
	results := make([]DeliveryResult, len(channels))

	g, gctx := errgroup.WithContext(ctx)
	for i, channel := range channels {
		i, channel := i, channel
		g.Go(func() error {
			results[i] = d.deliverOne(gctx, channel, msg, opts, false)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// DeliverWithFallback tries the primary channel, then walks the
// configured fallback order sequentially, skipping channels already
// tried, stopping at the first success.
func (d *Dispatcher) DeliverWithFallback(ctx context.Context, primary string, msg Message, opts Options) ([]DeliveryResult, error) {
	tried := map[string]bool{primary: true}
	results := []DeliveryResult{d.deliverOne(ctx, primary, msg, opts, false)}
	if results[0].OK {
		return results, nil
	}

	for _, channel := range d.cfg.FallbackOrder {
		if tried[channel] {
			continue
		}
		tried[channel] = true

		res := d.deliverOne(ctx, channel, msg, opts, true)
		results = append(results, res)
		if res.OK {
			return results, nil
		}
	}

	// Never silently dropped: exhaustion is a critical meta-event.
	d.log.Error().
		Str("alert_id", msg.AlertID).
		Str("primary", primary).
		Int("channels_tried", len(results)).
		Msg("delivery exhausted on all channels")
	d.audit.Record(ctx, audit.Record{
		Kind:   "delivery",
		RefID:  msg.AlertID,
		Detail: "delivery exhausted on all channels",
		Fields: map[string]string{"primary": primary},
	})
	return results, ErrDeliveryExhausted
}

// SendDirect sends to a single channel bypassing rate limiting, retry,
// and fallback. Used for pipeline failure notifications that must not
// recurse into the pipeline.
func (d *Dispatcher) SendDirect(ctx context.Context, channel string, msg Message) error {
	adapter, ok := d.adapters[channel]
	if !ok {
		return fmt.Errorf("unknown channel %s", channel)
	}
	_, err := adapter.Send(ctx, Format(msg))
	return err
}

// deliverOne runs the full per-channel pipeline: admission, formatting,
// bounded retries with exponential backoff, and outcome recording.
func (d *Dispatcher) deliverOne(ctx context.Context, channel string, msg Message, opts Options, viaFallback bool) DeliveryResult {
	cfg, ok := d.cfg.Channels[channel]
	if !ok || !cfg.Enabled {
		d.log.Debug().Str("channel", channel).Msg("channel disabled or unknown, skipping")
		res := DeliveryResult{Channel: channel, Outcome: OutcomeSkipped, Detail: "channel disabled"}
		d.record(ctx, msg, res)
		return res
	}
	if !priorityAllowed(cfg, msg.Severity) {
		d.log.Debug().
			Str("channel", channel).
			Str("severity", string(msg.Severity)).
			Msg("severity filtered, skipping")
		res := DeliveryResult{Channel: channel, Outcome: OutcomeSkipped, Detail: "severity filtered"}
		d.record(ctx, msg, res)
		return res
	}

	// Admission check happens before the adapter is ever touched.
	if !d.limiter.Allow(channel) {
		res := DeliveryResult{Channel: channel, Outcome: OutcomeRateLimited, Detail: "rate limit reached"}
		d.record(ctx, msg, res)
		return res
	}

	adapter, ok := d.adapters[channel]
	if !ok {
		res := DeliveryResult{Channel: channel, Outcome: OutcomeFailed, Detail: "no adapter"}
		d.record(ctx, msg, res)
		return res
	}

	formatted := Format(msg)

	backoff := opts.BackoffBase
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.RetryAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout.Std())
		receipt, err := adapter.Send(attemptCtx, formatted)
		cancel()

		if err == nil {
			outcome := OutcomeSent
			if viaFallback {
				outcome = OutcomeFallback
			}
			res := DeliveryResult{
				Channel:  channel,
				Outcome:  outcome,
				OK:       true,
				Attempts: attempt,
				Receipt:  receipt,
			}
			d.record(ctx, msg, res)
			d.log.Info().
				Str("channel", channel).
				Str("alert_id", msg.AlertID).
				Int("attempts", attempt).
				Msg("notification sent")
			return res
		}

		lastErr = err
		d.log.Warn().
			Err(err).
			Str("channel", channel).
			Int("attempt", attempt).
			Msg("send failed")

		if attempt < cfg.RetryAttempts {
			select {
			case <-ctx.Done():
				res := DeliveryResult{Channel: channel, Outcome: OutcomeFailed, Attempts: attempt, Detail: ctx.Err().Error()}
				d.record(ctx, msg, res)
				return res
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	res := DeliveryResult{
		Channel:  channel,
		Outcome:  OutcomeFailed,
		Attempts: cfg.RetryAttempts,
		Detail:   lastErr.Error(),
	}
	d.record(ctx, msg, res)
	return res
}

// record appends the outcome to the alert's notification log and the
// audit trail. A send that succeeds after the caller moved on is still
// recorded, never re-sent.
func (d *Dispatcher) record(ctx context.Context, msg Message, res DeliveryResult) {
	d.metrics.DeliveriesTotal.WithLabelValues(res.Channel, res.Outcome).Inc()

	if msg.AlertID != "" && d.recorder != nil {
		d.recorder.AppendNotification(msg.AlertID, types.NotificationRecord{
			Channel:   res.Channel,
			Timestamp: time.Now(),
			Outcome:   res.Outcome,
			Attempts:  res.Attempts,
			Detail:    res.Detail,
		})
	}

	d.audit.Record(ctx, audit.Record{
		Kind:  "delivery",
		RefID: msg.AlertID,
		Fields: map[string]string{
			"channel": res.Channel,
			"outcome": res.Outcome,
		},
	})
}

// priorityAllowed checks the channel's severity filter.
func priorityAllowed(cfg config.ChannelConfig, severity types.Severity) bool {
	if len(cfg.PriorityFilter) == 0 {
		return true
	}
	for _, s := range cfg.PriorityFilter {
		if s == string(severity) {
			return true
		}
	}
	return false
}
