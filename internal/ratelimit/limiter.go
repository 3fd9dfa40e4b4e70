package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Window defines a sliding-window admission limit for one channel.
type Window struct {
	Capacity int
	Duration time.Duration
}

// channelState holds one channel's timestamp history behind its own
// mutex so unrelated channels never contend on a shared lock.
type channelState struct {
	mu      sync.Mutex
	history []time.Time
}

// Limiter performs per-channel sliding-window admission control.
// Check-then-add is atomic per channel.
type Limiter struct {
	log      zerolog.Logger
	windows  map[string]Window
	mu       sync.RWMutex
	channels map[string]*channelState
}

// NewLimiter creates a limiter with the given per-channel windows.
// Channels without a configured window are never limited.
func NewLimiter(log zerolog.Logger, windows map[string]Window) *Limiter {
	return &Limiter{
		log:      log.With().Str("component", "ratelimit").Logger(),
		windows:  windows,
		channels: make(map[string]*channelState),
	}
}

// get returns the state for a channel, creating it on first access.
func (l *Limiter) get(channel string) *channelState {
	l.mu.RLock()
	c, ok := l.channels[channel]
	l.mu.RUnlock()
	if ok {
		return c
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok = l.channels[channel]; ok {
		return c
	}
	c = &channelState{}
	l.channels[channel] = c
	return c
}

// Allow reports whether a send on the channel is admitted. Admitted
// sends consume a slot in the channel's window.
func (l *Limiter) Allow(channel string) bool {
	window, ok := l.windows[channel]
	if !ok || window.Capacity <= 0 {
		return true
	}

	c := l.get(channel)
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window.Duration)

	// Prune entries that have left the window
	pruned := make([]time.Time, 0, len(c.history)+1)
	for _, ts := range c.history {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= window.Capacity {
		c.history = pruned
		l.log.Warn().
			Str("channel", channel).
			Int("capacity", window.Capacity).
			Msg("rate limit reached")
		return false
	}

	c.history = append(pruned, now)
	return true
}

// Remaining returns how many sends the channel can still admit in the
// current window. Channels without a window report -1.
func (l *Limiter) Remaining(channel string) int {
	window, ok := l.windows[channel]
	if !ok || window.Capacity <= 0 {
		return -1
	}

	c := l.get(channel)
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-window.Duration)
	used := 0
	for _, ts := range c.history {
		if ts.After(cutoff) {
			used++
		}
	}
	if used > window.Capacity {
		used = window.Capacity
	}
	return window.Capacity - used
}
