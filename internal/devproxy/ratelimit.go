package devproxy

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client IP and forgets clients
// idle for longer than idleTTL.
type ipRateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*clientBucket
}

// newIPRateLimiter builds a limiter from the rate_limit_* settings. A zero
// burst defaults to twice the rate.
func newIPRateLimiter(cfg Config) *ipRateLimiter {
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 2 * cfg.RateLimitRPS
	}
	idle := cfg.RateLimitIdleTTL
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &ipRateLimiter{
		limit:   rate.Limit(cfg.RateLimitRPS),
		burst:   burst,
		idleTTL: idle,
		now:     time.Now,
		clients: make(map[string]*clientBucket),
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	b, ok := l.clients[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// sweep drops idle clients and returns how many were removed.
func (l *ipRateLimiter) sweep() int {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for ip, b := range l.clients {
		if b.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
			removed++
		}
	}
	return removed
}

// run sweeps every half idleTTL until stop is closed.
func (l *ipRateLimiter) run(stop <-chan struct{}) {
	ticker := time.NewTicker(l.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-stop:
			return
		}
	}
}

// retryAfter is the whole number of seconds until one token refills.
func (l *ipRateLimiter) retryAfter() string {
	if l.limit <= 0 {
		return "1"
	}
	secs := math.Ceil(1 / float64(l.limit))
	return strconv.Itoa(int(math.Max(secs, 1)))
}

// middleware rejects requests over the client's rate with 429.
func (l *ipRateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			proxyRateLimitedTotal.Inc()
			c.Header("Retry-After", l.retryAfter())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
