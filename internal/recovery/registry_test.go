package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/pulseguard/pulseguard/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookupUnknownType(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	_, err := r.Lookup("NOT_REGISTERED")
	assert.ErrorIs(t, err, ErrNoStrategy)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register("CACHE_STALE", NewFunc("cache_refresh", func(ctx context.Context, fault types.Fault) error {
		return nil
	}))

	s, err := r.Lookup("CACHE_STALE")
	require.NoError(t, err)
	assert.Equal(t, "cache_refresh", s.Name())
	assert.NoError(t, s.Attempt(context.Background(), types.Fault{Type: "CACHE_STALE"}))
}

func TestRegistryRebindReplaces(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register("X", NewFunc("first", func(ctx context.Context, fault types.Fault) error { return nil }))
	r.Register("X", NewFunc("second", func(ctx context.Context, fault types.Fault) error { return nil }))

	s, err := r.Lookup("X")
	require.NoError(t, err)
	assert.Equal(t, "second", s.Name())
}

type fakeRestarter struct {
	services []string
	err      error
}

func (f *fakeRestarter) RequestRestart(_ context.Context, service string) error {
	f.services = append(f.services, service)
	return f.err
}

func TestServiceRestartReadsTargetFromContext(t *testing.T) {
	restarter := &fakeRestarter{}
	s := ServiceRestart(restarter)

	err := s.Attempt(context.Background(), types.Fault{
		Type:    "SERVICE_DOWN",
		Context: map[string]string{"service": "renderer"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"renderer"}, restarter.services)
}

func TestServiceRestartRequiresTarget(t *testing.T) {
	s := ServiceRestart(&fakeRestarter{})

	err := s.Attempt(context.Background(), types.Fault{Type: "SERVICE_DOWN"})
	assert.Error(t, err)
}

type fakeCache struct {
	keys []string
	err  error
}

func (f *fakeCache) Invalidate(_ context.Context, key string) error {
	f.keys = append(f.keys, key)
	return f.err
}

func TestCacheRefreshFallsBackToFaultType(t *testing.T) {
	cache := &fakeCache{}
	s := CacheRefresh(cache)

	require.NoError(t, s.Attempt(context.Background(), types.Fault{Type: "CACHE_STALE"}))
	require.NoError(t, s.Attempt(context.Background(), types.Fault{
		Type:    "CACHE_STALE",
		Context: map[string]string{"cache_key": "dosage-table"},
	}))
	assert.Equal(t, []string{"CACHE_STALE", "dosage-table"}, cache.keys)
}

func TestStrategyErrorPropagates(t *testing.T) {
	cache := &fakeCache{err: errors.New("backend unavailable")}
	s := CacheRefresh(cache)

	err := s.Attempt(context.Background(), types.Fault{Type: "CACHE_STALE"})
	assert.Error(t, err)
}
