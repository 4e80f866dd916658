package fetcher

import (
	"context"
	"math"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter keeps one token bucket per host. A nil or disabled limiter
// never blocks.
type HostLimiter struct {
	rps float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHostLimiter(rps float64) *HostLimiter {
	if rps <= 0 {
		return nil
	}
	return &HostLimiter{rps: rps, limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until host may be requested again or ctx is done.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	l.mu.Lock()
	lim, ok := l.limiters[host]
	if !ok {
		burst := int(math.Max(1, math.Floor(l.rps)))
		lim = rate.NewLimiter(rate.Limit(l.rps), burst)
		l.limiters[host] = lim
	}
	l.mu.Unlock()

	return lim.Wait(ctx)
}
