package recovery

import (
	"context"
	"fmt"

	"github.com/pulseguard/pulseguard/internal/types"
)

// CacheInvalidator invalidates a cached entry by key.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// CacheRefresh returns a strategy that drops the cached entry named in
// the fault context so the next read recomputes it. Safe to repeat.
func CacheRefresh(cache CacheInvalidator) Strategy {
	return NewFunc("cache_refresh", func(ctx context.Context, fault types.Fault) error {
		key := fault.Context["cache_key"]
		if key == "" {
			key = fault.Type
		}
		return cache.Invalidate(ctx, key)
	})
}

// ServiceRestarter requests a restart of a named service. The request
// must be idempotent on the receiving side.
type ServiceRestarter interface {
	RequestRestart(ctx context.Context, service string) error
}

// ServiceRestart returns a strategy that asks the platform to restart
// the service named in the fault context.
func ServiceRestart(restarter ServiceRestarter) Strategy {
	return NewFunc("service_restart", func(ctx context.Context, fault types.Fault) error {
		service := fault.Context["service"]
		if service == "" {
			return fmt.Errorf("fault %s: no service named in context", fault.Type)
		}
		return restarter.RequestRestart(ctx, service)
	})
}

// FallbackActivator switches a resource to its degraded fallback form.
type FallbackActivator interface {
	Activate(ctx context.Context, resource string) error
}

// FallbackContent returns a strategy that switches the affected
// resource to static fallback content.
func FallbackContent(activator FallbackActivator) Strategy {
	return NewFunc("fallback_content", func(ctx context.Context, fault types.Fault) error {
		resource := fault.Context["resource"]
		if resource == "" {
			resource = "default"
		}
		return activator.Activate(ctx, resource)
	})
}

// ConnectionResetter drops and re-establishes a pooled connection.
type ConnectionResetter interface {
	Reset(ctx context.Context, pool string) error
}

// ConnectionReset returns a strategy that recycles the connection pool
// named in the fault context.
func ConnectionReset(resetter ConnectionResetter) Strategy {
	return NewFunc("connection_reset", func(ctx context.Context, fault types.Fault) error {
		pool := fault.Context["pool"]
		if pool == "" {
			pool = "default"
		}
		return resetter.Reset(ctx, pool)
	})
}
