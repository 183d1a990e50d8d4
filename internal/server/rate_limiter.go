package server

import (
	"time"

	"golang.org/x/time/rate"
)

// noticeInterval bounds how often a throttled client is told about it.
const noticeInterval = time.Second

// rateLimiter is a per-connection token bucket holding burst tokens and
// refilling burst tokens every interval.
type rateLimiter struct {
	frames  *rate.Limiter
	notices *rate.Limiter
}

func newRateLimiter(burst int, interval time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	perSecond := rate.Limit(float64(burst) / interval.Seconds())
	return &rateLimiter{
		frames:  rate.NewLimiter(perSecond, burst),
		notices: rate.NewLimiter(rate.Every(noticeInterval), 1),
	}
}

func (rl *rateLimiter) allow() bool {
	return rl.frames.Allow()
}

// notify reports whether a rate-limit notice may be sent now.
func (rl *rateLimiter) notify() bool {
	return rl.notices.Allow()
}
