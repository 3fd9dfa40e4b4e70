package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pulseguard/pulseguard/internal/audit"
	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/metrics"
	"github.com/pulseguard/pulseguard/internal/ratelimit"
	"github.com/pulseguard/pulseguard/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedAdapter fails a fixed number of sends before succeeding.
type scriptedAdapter struct {
	mu       sync.Mutex
	name     string
	failures int
	calls    int
}

func (a *scriptedAdapter) Name() string { return a.name }

func (a *scriptedAdapter) Send(_ context.Context, _ FormattedMessage) (Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.calls <= a.failures {
		return Receipt{}, errors.New("transport error")
	}
	return Receipt{DeliveredAt: time.Now()}, nil
}

func (a *scriptedAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type recordedNotifications struct {
	mu      sync.Mutex
	records []types.NotificationRecord
}

func (r *recordedNotifications) AppendNotification(_ string, rec types.NotificationRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recordedNotifications) all() []types.NotificationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.NotificationRecord(nil), r.records...)
}

func testChannelsConfig() config.ChannelsConfig {
	return config.ChannelsConfig{
		Channels: map[string]config.ChannelConfig{
			"slack": {Type: "log", Enabled: true, RetryAttempts: 3, Timeout: config.Duration(time.Second),
				RateLimit: config.RateLimitConfig{Capacity: 30, Window: config.Duration(time.Minute)}},
			"email": {Type: "log", Enabled: true, RetryAttempts: 2, Timeout: config.Duration(time.Second),
				RateLimit: config.RateLimitConfig{Capacity: 30, Window: config.Duration(time.Minute)}},
			"pager": {Type: "log", Enabled: true, RetryAttempts: 1, Timeout: config.Duration(time.Second),
				PriorityFilter: []string{"critical", "high"},
				RateLimit:      config.RateLimitConfig{Capacity: 30, Window: config.Duration(time.Minute)}},
			"dark": {Type: "log", Enabled: false, RetryAttempts: 1, Timeout: config.Duration(time.Second)},
		},
		Routes:        map[string][]string{"default": {"slack"}},
		FallbackOrder: []string{"slack", "email"},
	}
}

type dispatcherHarness struct {
	dispatcher *Dispatcher
	adapters   map[string]*scriptedAdapter
	recorder   *recordedNotifications
	limiter    *ratelimit.Limiter
}

func newDispatcherHarness(t *testing.T, cfg config.ChannelsConfig, windows map[string]ratelimit.Window) *dispatcherHarness {
	t.Helper()
	log := zerolog.Nop()

	scripted := map[string]*scriptedAdapter{}
	adapters := map[string]Adapter{}
	for name := range cfg.Channels {
		a := &scriptedAdapter{name: name}
		scripted[name] = a
		adapters[name] = a
	}

	limiter := ratelimit.NewLimiter(log, windows)
	recorder := &recordedNotifications{}
	d := NewDispatcher(log, cfg, adapters, limiter, recorder,
		audit.NewWriter(log, audit.NewRingStore(100)),
		metrics.New(prometheus.NewRegistry()))

	return &dispatcherHarness{dispatcher: d, adapters: scripted, recorder: recorder, limiter: limiter}
}

func testMessage() Message {
	return Message{
		AlertID:  "a1",
		Title:    "CACHE_STALE",
		Body:     "cached dosage table expired",
		Severity: types.SeverityMedium,
		Category: types.CategoryPerformance,
	}
}

func TestDeliverRetriesUntilSuccess(t *testing.T) {
	h := newDispatcherHarness(t, testChannelsConfig(), nil)
	h.adapters["slack"].failures = 2

	results := h.dispatcher.Deliver(context.Background(), []string{"slack"}, testMessage(), Options{BackoffBase: time.Millisecond})
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)
	assert.Equal(t, OutcomeSent, results[0].Outcome)
	assert.Equal(t, 3, results[0].Attempts)

	records := h.recorder.all()
	require.Len(t, records, 1)
	assert.Equal(t, OutcomeSent, records[0].Outcome)
	assert.Equal(t, 3, records[0].Attempts)
}

func TestDeliverExhaustsRetries(t *testing.T) {
	h := newDispatcherHarness(t, testChannelsConfig(), nil)
	h.adapters["slack"].failures = 10

	results := h.dispatcher.Deliver(context.Background(), []string{"slack"}, testMessage(), Options{BackoffBase: time.Millisecond})
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Equal(t, OutcomeFailed, results[0].Outcome)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Equal(t, 3, h.adapters["slack"].callCount())
}

func TestDeliverRateLimitedBeforeAdapter(t *testing.T) {
	h := newDispatcherHarness(t, testChannelsConfig(), map[string]ratelimit.Window{
		"slack": {Capacity: 1, Duration: time.Minute},
	})

	first := h.dispatcher.Deliver(context.Background(), []string{"slack"}, testMessage(), Options{BackoffBase: time.Millisecond})
	require.True(t, first[0].OK)

	second := h.dispatcher.Deliver(context.Background(), []string{"slack"}, testMessage(), Options{BackoffBase: time.Millisecond})
	assert.Equal(t, OutcomeRateLimited, second[0].Outcome)
	assert.False(t, second[0].OK)
	// The adapter was never touched for the rejected send
	assert.Equal(t, 1, h.adapters["slack"].callCount())

	// The rejection still lands on the notification log
	records := h.recorder.all()
	require.Len(t, records, 2)
	assert.Equal(t, OutcomeRateLimited, records[1].Outcome)
}

func TestDeliverSeverityFiltered(t *testing.T) {
	h := newDispatcherHarness(t, testChannelsConfig(), nil)

	results := h.dispatcher.Deliver(context.Background(), []string{"pager"}, testMessage(), Options{BackoffBase: time.Millisecond})
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Equal(t, 0, h.adapters["pager"].callCount())

	critical := testMessage()
	critical.Severity = types.SeverityCritical
	results = h.dispatcher.Deliver(context.Background(), []string{"pager"}, critical, Options{BackoffBase: time.Millisecond})
	assert.True(t, results[0].OK)
}

func TestDeliverDisabledChannelSkipped(t *testing.T) {
	h := newDispatcherHarness(t, testChannelsConfig(), nil)

	results := h.dispatcher.Deliver(context.Background(), []string{"dark"}, testMessage(), Options{})
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Equal(t, 0, h.adapters["dark"].callCount())
}

func TestDeliverWithFallbackWalksOrder(t *testing.T) {
	h := newDispatcherHarness(t, testChannelsConfig(), nil)
	h.adapters["slack"].failures = 10

	results, err := h.dispatcher.DeliverWithFallback(context.Background(), "slack", testMessage(), Options{BackoffBase: time.Millisecond})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, OutcomeFailed, results[0].Outcome)
	assert.Equal(t, OutcomeFallback, results[1].Outcome)
	assert.True(t, results[1].OK)
	assert.Equal(t, "email", results[1].Channel)
}

func TestDeliverWithFallbackSkipsPrimaryInOrder(t *testing.T) {
	h := newDispatcherHarness(t, testChannelsConfig(), nil)

	// Primary succeeds immediately; the fallback order is never walked
	results, err := h.dispatcher.DeliverWithFallback(context.Background(), "slack", testMessage(), Options{BackoffBase: time.Millisecond})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, h.adapters["email"].callCount())
}

func TestDeliverWithFallbackExhaustion(t *testing.T) {
	h := newDispatcherHarness(t, testChannelsConfig(), nil)
	h.adapters["slack"].failures = 10
	h.adapters["email"].failures = 10

	results, err := h.dispatcher.DeliverWithFallback(context.Background(), "slack", testMessage(), Options{BackoffBase: time.Millisecond})
	assert.ErrorIs(t, err, ErrDeliveryExhausted)
	assert.Len(t, results, 2)
	for _, res := range results {
		assert.False(t, res.OK)
	}
}

func TestSkippedDeliveriesAreRecorded(t *testing.T) {
	h := newDispatcherHarness(t, testChannelsConfig(), nil)

	h.dispatcher.Deliver(context.Background(), []string{"dark"}, testMessage(), Options{})
	h.dispatcher.Deliver(context.Background(), []string{"pager"}, testMessage(), Options{})

	// Both skips land on the notification log with their reasons
	records := h.recorder.all()
	require.Len(t, records, 2)
	assert.Equal(t, OutcomeSkipped, records[0].Outcome)
	assert.Equal(t, "dark", records[0].Channel)
	assert.Equal(t, "channel disabled", records[0].Detail)
	assert.Equal(t, OutcomeSkipped, records[1].Outcome)
	assert.Equal(t, "pager", records[1].Channel)
	assert.Equal(t, "severity filtered", records[1].Detail)
}

func TestBuildAdaptersByChannelType(t *testing.T) {
	cfg := config.ChannelsConfig{
		Channels: map[string]config.ChannelConfig{
			"slack":     {Type: "webhook", URLEnv: "SLACK_WEBHOOK_URL", Timeout: config.Duration(5 * time.Second)},
			"audit-log": {Type: "log"},
		},
	}

	adapters := BuildAdapters(zerolog.Nop(), cfg)
	require.Len(t, adapters, 2)
	assert.IsType(t, &WebhookAdapter{}, adapters["slack"])
	assert.IsType(t, &LogAdapter{}, adapters["audit-log"])
}

func TestSendDirectBypassesRateLimit(t *testing.T) {
	h := newDispatcherHarness(t, testChannelsConfig(), map[string]ratelimit.Window{
		"slack": {Capacity: 1, Duration: time.Minute},
	})

	// Exhaust the channel's window, then send direct anyway
	first := h.dispatcher.Deliver(context.Background(), []string{"slack"}, testMessage(), Options{BackoffBase: time.Millisecond})
	require.True(t, first[0].OK)

	err := h.dispatcher.SendDirect(context.Background(), "slack", testMessage())
	require.NoError(t, err)
	assert.Equal(t, 2, h.adapters["slack"].callCount())
}

func TestSendDirectUnknownChannel(t *testing.T) {
	h := newDispatcherHarness(t, testChannelsConfig(), nil)
	err := h.dispatcher.SendDirect(context.Background(), "nonexistent", testMessage())
	assert.Error(t, err)
}
