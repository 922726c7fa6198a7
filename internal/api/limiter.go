package api

import (
	"sync"

	"xstation/internal/config"

	"golang.org/x/time/rate"
)

const defaultBurst = 5

// bucketKey separates a client's polling from its mutations: a dashboard
// polling /timers must not use up the tokens of "end booking".
type bucketKey struct {
	client string
	scope  string
}

// scopeLimiter hands out one token bucket per client and permission scope.
// A zero RPS disables limiting.
type scopeLimiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[bucketKey]*rate.Limiter
}

func newScopeLimiter(cfg config.APIRateLimitConfig) *scopeLimiter {
	if cfg.RPS <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &scopeLimiter{
		rps:     rate.Limit(cfg.RPS),
		burst:   burst,
		buckets: make(map[bucketKey]*rate.Limiter),
	}
}

// allow takes a token from the client's bucket for scope.
func (l *scopeLimiter) allow(client, scope string) bool {
	if l == nil {
		return true
	}
	return l.bucket(client, scope).Allow()
}

func (l *scopeLimiter) bucket(client, scope string) *rate.Limiter {
	key := bucketKey{client: client, scope: scope}

	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.buckets[key]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.buckets[key] = lim
	}
	return lim
}
