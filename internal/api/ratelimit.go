package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter keeps one token bucket per client address.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

func newClientLimiter(limit rate.Limit, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		clients: make(map[string]*rate.Limiter),
		limit:   limit,
		burst:   burst,
		now:     time.Now,
	}
}

// perMinute converts a requests-per-minute budget into a refill rate.
func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / time.Minute.Seconds())
}

// everyWindow refills n tokens over window.
func everyWindow(window time.Duration, n int) rate.Limit {
	if n < 1 || window <= 0 {
		return rate.Inf
	}
	return rate.Every(window / time.Duration(n))
}

func (l *clientLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getLocked(key)
}

func (l *clientLimiter) getLocked(key string) *rate.Limiter {
	lim, ok := l.clients[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.clients[key] = lim
	}
	return lim
}

// allow takes one token for key and reports whether one was available.
func (l *clientLimiter) allow(key string) bool {
	return l.get(key).AllowN(l.now(), 1)
}

// reserve takes one token for key before the guarded work starts and
// reports false when none is free. A refused call changes nothing. refund
// gives the token back and may be called after later reservations.
func (l *clientLimiter) reserve(key string) (refund func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim := l.getLocked(key)
	now := l.now()
	if lim.TokensAt(now) < 1 {
		return nil, false
	}
	r := lim.ReserveN(now, 1)
	return func() { r.CancelAt(now) }, true
}

// sweep drops buckets that have refilled completely.
func (l *clientLimiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, lim := range l.clients {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.clients, key)
		}
	}
}

func (l *clientLimiter) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// run sweeps every interval until ctx is cancelled.
func (l *clientLimiter) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// clientIP is the limiter key for r. Forwarding headers are not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
