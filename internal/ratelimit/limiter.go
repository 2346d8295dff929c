package ratelimit

import "context"

// RateLimiter bounds gateway charge throughput per scope. The sweep worker
// pool is sized by gateway rate limits, not by attempt count.
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}
