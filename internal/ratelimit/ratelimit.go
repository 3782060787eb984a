// Package ratelimit implements fixed-window counters used to throttle login
// attempts. The memory limiter serves a single instance, the redis limiter
// shares counters between instances.
package ratelimit

import (
	"context"
	"time"
)

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}
