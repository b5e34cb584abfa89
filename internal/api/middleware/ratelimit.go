package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitParams is the limiter configuration, re-read on every request so
// config reloads take effect without a restart.
type RateLimitParams struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// ipLimiter keeps one token bucket per client IP, with idle eviction so the
// map doesn't grow with every scanner that probes the port.
type ipLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucketEntry
	rps      rate.Limit
	burst    int
	lastSeen time.Duration
}

type bucketEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	l := &ipLimiter{
		buckets:  make(map[string]*bucketEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		lastSeen: 10 * time.Minute,
	}
	go l.evictLoop()
	return l
}

// reconfigure applies changed limits to existing buckets.
func (l *ipLimiter) reconfigure(rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rps == rate.Limit(rps) && l.burst == burst {
		return
	}
	l.rps = rate.Limit(rps)
	l.burst = burst
	for _, entry := range l.buckets {
		entry.limiter.SetLimit(l.rps)
		entry.limiter.SetBurst(l.burst)
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	entry, ok := l.buckets[ip]
	if !ok {
		entry = &bucketEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[ip] = entry
	}
	entry.seen = time.Now()
	l.mu.Unlock()
	return entry.limiter.Allow()
}

func (l *ipLimiter) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-l.lastSeen)
		l.mu.Lock()
		for ip, entry := range l.buckets {
			if entry.seen.Before(cutoff) {
				delete(l.buckets, ip)
			}
		}
		l.mu.Unlock()
	}
}

// RateLimit rejects clients over their per-IP budget with the JSON shape
// rate-limited API clients expect (error.type rate_limit_error, 429).
// params is consulted per request, so a reloaded config can retune or
// enable/disable the limiter on the fly.
func RateLimit(params func() RateLimitParams) gin.HandlerFunc {
	p := params()
	limiter := newIPLimiter(p.RPS, p.Burst)
	return func(c *gin.Context) {
		p := params()
		if !p.Enabled {
			c.Next()
			return
		}
		limiter.reconfigure(p.RPS, p.Burst)
		if !limiter.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"type":    "rate_limit_error",
					"message": "rate limit exceeded, slow down",
				},
			})
			return
		}
		c.Next()
	}
}
