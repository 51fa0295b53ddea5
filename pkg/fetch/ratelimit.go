package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter spaces out requests to the same host. Each host gets its own
// token bucket with burst 1 so the first request goes out immediately.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	delay    time.Duration
	log      *logrus.Entry
}

// NewRateLimiter creates a RateLimiter. A delay <= 0 disables limiting.
func NewRateLimiter(delay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
		log:      log,
	}
}

func (rl *RateLimiter) limiterFor(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(rl.delay), 1)
		rl.limiters[host] = l
	}
	return l
}

// Wait blocks until a request to host may be sent or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl == nil || rl.delay <= 0 {
		return nil
	}
	l := rl.limiterFor(host)
	if r := l.Reserve(); r.OK() {
		if d := r.Delay(); d > 0 {
			rl.log.WithFields(logrus.Fields{"host": host, "sleep": d}).Debug("Rate limit applying sleep")
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				r.Cancel()
				return ctx.Err()
			}
		}
	}
	return nil
}
