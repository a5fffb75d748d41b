package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// MetadataKey is the huma operation metadata key holding an EndpointConfig.
const MetadataKey = "rateLimit"

// LimitConfig allows Max requests per Window.
type LimitConfig struct {
	Window time.Duration
	Max    int64
}

// EndpointConfig overrides the default limits of one operation.
// FailOpen lets requests through when the limit store cannot be reached.
type EndpointConfig struct {
	Limits   []LimitConfig
	Disabled bool
	FailOpen bool
}

// FailsOpen reports whether op lets requests through on limiter errors.
func FailsOpen(op *huma.Operation) bool {
	if op == nil {
		return false
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)

	return ok && cfg.FailOpen
}

// Exceeded describes the limit a request ran into.
type Exceeded struct {
	Limit LimitConfig
	Count int64
}

func (e *Exceeded) String() string {
	return fmt.Sprintf("%d/%d requests in %s", e.Count, e.Limit.Max, e.Limit.Window)
}

// Limiter applies sliding-window limits per client key.
type Limiter struct {
	store    Store
	defaults []LimitConfig
}

// NewLimiter creates a limiter applying defaults to operations without
// their own configuration.
func NewLimiter(store Store, defaults ...LimitConfig) *Limiter {
	return &Limiter{store: store, defaults: defaults}
}

// Allow records a request of clientKey against every limit of op. It returns
// the first exceeded limit, or nil when the request is allowed.
func (l *Limiter) Allow(ctx context.Context, clientKey string, op *huma.Operation) (*Exceeded, error) {
	cfg := l.configFor(op)
	if cfg.Disabled {
		return nil, nil
	}

	path := ""
	if op != nil {
		path = op.Path
	}

	for _, limit := range cfg.Limits {
		// Requests to the same route template share counters.
		key := fmt.Sprintf("%s:%s:%d", clientKey, path, limit.Window.Milliseconds())

		count, err := l.store.Record(ctx, key, limit.Window)
		if err != nil {
			return nil, err
		}

		if count > limit.Max {
			return &Exceeded{Limit: limit, Count: count}, nil
		}
	}

	return nil, nil
}

func (l *Limiter) configFor(op *huma.Operation) EndpointConfig {
	if op != nil {
		if cfg, ok := op.Metadata[MetadataKey].(EndpointConfig); ok {
			if cfg.Disabled || len(cfg.Limits) > 0 {
				return cfg
			}
		}
	}

	return EndpointConfig{Limits: l.defaults}
}
