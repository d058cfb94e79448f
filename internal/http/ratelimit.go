package httpapi

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL   = 10 * time.Minute
	limiterPruneSize = 4096
)

// clientLimiter is a token bucket per client id.
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	now      func() time.Time
	logger   *zap.Logger
}

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(perSecond float64, burst int, logger *zap.Logger) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
		logger:   logger,
	}
}

func (c *clientLimiter) allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.limiters) >= limiterPruneSize {
		for k, e := range c.limiters {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(c.limiters, k)
			}
		}
	}
	e, ok := c.limiters[key]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(c.rate, c.burst)}
		c.limiters[key] = e
	}
	e.lastSeen = now
	return e.l.AllowN(now, 1)
}

// wrap must run inside the client middleware so the client id is known.
func (c *clientLimiter) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := clientIDFrom(r)
		if !c.allow(clientID) {
			c.logger.Info("Upload rate limit exceeded", zap.String("client_id", clientID), zap.String("path", r.URL.Path))
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, Fail("too many uploads, retry shortly"))
			return
		}
		next(w, r)
	}
}
