// Package ratelimit provides sliding-window request counting keyed by an
// arbitrary string, typically "<action>:<actor>:<source-ip>".
package ratelimit

import (
	"context"
	"time"
)

// Result reports the outcome of a counted attempt.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Counter records one attempt for key and reports whether it stays within
// limit for the trailing window. The increment-and-compare must be atomic per
// key so concurrent bursts cannot slip past the cap.
type Counter interface {
	CheckAndIncrement(ctx context.Context, key string, window time.Duration, limit int) (Result, error)
}
