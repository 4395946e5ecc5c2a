package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/flarepoly/game-engine/internal/metrics"
)

// limiterIdle is how long a client's bucket is kept after its last request.
// An idle bucket has refilled long before this, so dropping it loses nothing.
const limiterIdle = 10 * time.Minute

type client struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client-IP token bucket. Clients poll the state, so
// the default allows a steady 10 req/s with bursts of 20.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second per IP
// with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

func (l *RateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdle {
		l.sweep(now)
	}
	c, ok := l.clients[ip]
	if !ok {
		c = &client{lim: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.lim
}

// sweep drops buckets idle for longer than limiterIdle. Caller holds mu.
func (l *RateLimiter) sweep(now time.Time) {
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > limiterIdle {
			delete(l.clients, ip)
		}
	}
	l.lastSweep = now
}

// Middleware rejects requests over the client's budget with 429. Run it
// after middleware.RealIP so proxied clients get their own bucket.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.get(clientIP(r)).Allow() {
			metrics.RateLimited.Inc()
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded", Kind: "rate_limit"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
