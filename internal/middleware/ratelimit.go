package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter throttles callers per client IP with a token bucket each.
// Buckets idle for longer than the eviction window are dropped so the map
// does not grow with every address that ever hit the API.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	evictAge time.Duration

	mu      sync.Mutex
	buckets map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter for the given requests-per-minute
// budget. A non-positive budget disables throttling.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
		evictAge: 5 * time.Minute,
		buckets:  make(map[string]*clientBucket),
	}
}

// Handler returns the gin middleware enforcing the budget. A nil receiver
// yields a pass-through handler.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if !r.bucketFor(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) bucketFor(key string) *rate.Limiter {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.buckets[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	limiter := rate.NewLimiter(r.limit, r.burst)
	r.buckets[key] = &clientBucket{limiter: limiter, lastSeen: now}
	r.evictIdleLocked(now)
	return limiter
}

func (r *RateLimiter) evictIdleLocked(now time.Time) {
	for key, entry := range r.buckets {
		if now.Sub(entry.lastSeen) > r.evictAge {
			delete(r.buckets, key)
		}
	}
}
