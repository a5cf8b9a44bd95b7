package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/emperorhan/recycle-trace/internal/metrics"
	"golang.org/x/time/rate"
)

// Limiter paces calls to one JSON-RPC endpoint with a token bucket.
type Limiter struct {
	limiter  *rate.Limiter
	endpoint string
}

// NewLimiter allows rps calls per second with the given burst. A non-positive
// rps disables limiting.
func NewLimiter(rps float64, burst int, endpoint string) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiter:  rate.NewLimiter(limit, burst),
		endpoint: endpoint,
	}
}

// Wait blocks until a token is available or ctx is done. Exactly one token is
// consumed per successful call; a cancelled wait returns its reservation.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	metrics.RPCRateLimitWaits.WithLabelValues(l.endpoint).Inc()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}
