// ratelimit.go — Per-client token buckets for export and share.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 3 * time.Minute

type rateClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	perMin int
	burst  int

	mu      sync.Mutex
	clients map[string]*rateClient
}

func newRateLimiter(perMin, burst int) *rateLimiter {
	return &rateLimiter{
		perMin:  perMin,
		burst:   burst,
		clients: make(map[string]*rateClient),
	}
}

// allow spends one token of key's bucket.
func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	c, ok := rl.clients[key]
	if !ok {
		// perMin spread over 60 seconds
		c = &rateClient{limiter: rate.NewLimiter(rate.Limit(rl.perMin)/60.0, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = time.Now()
	limiter := c.limiter
	rl.mu.Unlock()
	return limiter.Allow()
}

func (rl *rateLimiter) prune(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, c := range rl.clients {
		if now.Sub(c.lastSeen) > limiterIdle {
			delete(rl.clients, key)
		}
	}
}

// run drops idle buckets until ctx is done.
func (rl *rateLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			rl.prune(now)
		case <-ctx.Done():
			return
		}
	}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientKey(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "export rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey is the peer IP; RealIP has already applied proxy headers.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
