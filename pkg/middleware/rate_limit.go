package middleware

import (
	"net/http"
	"sync"

	"github.com/debtdesk/backoffice/pkg/httputil"
	"github.com/debtdesk/backoffice/pkg/metrics"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// rateLimitKey prefers the authenticated actor so agents sharing an office
// NAT do not throttle each other; anonymous requests are keyed by client IP.
func rateLimitKey(c *gin.Context) string {
	if actor := httputil.Actor(c); actor != "" {
		return "user:" + actor
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

type limiterSet struct {
	mu    sync.Mutex
	rps   float64
	burst int
	byKey map[string]*rate.Limiter
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.byKey[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.rps), s.burst)
		s.byKey[key] = lim
	}
	return lim
}

// RateLimitMiddleware returns a Gin middleware enforcing an in-memory token bucket per key.
// rps = allowed events per second, burst = maximum tokens in bucket.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	set := &limiterSet{rps: rps, burst: burst, byKey: map[string]*rate.Limiter{}}
	return func(c *gin.Context) {
		if !set.get(rateLimitKey(c)).Allow() {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
