package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/primebank/primebank-web/pkg/metrics"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c *gin.Context) string

// ClientIPKey buckets requests by client IP.
func ClientIPKey(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// LoginKey buckets login attempts by client IP and submitted email, so one
// address hammering many accounts and many addresses hammering one account
// are both limited.
func LoginKey(c *gin.Context) string {
	email := strings.ToLower(strings.TrimSpace(c.PostForm("email")))
	if email == "" {
		return ClientIPKey(c)
	}
	return ClientIPKey(c) + ":email:" + email
}

// limiterStore is a per-middleware set of token buckets.
type limiterStore struct {
	m     sync.Map // map[string]*rate.Limiter
	rps   float64
	burst int
}

// get returns (and lazily creates) the token-bucket limiter for key
func (s *limiterStore) get(key string) *rate.Limiter {
	if v, ok := s.m.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := s.m.LoadOrStore(key, rate.NewLimiter(rate.Limit(s.rps), s.burst))
	return v.(*rate.Limiter)
}

// RateLimitMiddleware returns a Gin middleware enforcing a token-bucket per-key limit.
// rps = allowed events per second, burst = maximum tokens in bucket. A nil key
// buckets by client IP.
func RateLimitMiddleware(rps float64, burst int, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ClientIPKey
	}
	store := &limiterStore{rps: rps, burst: burst}
	return func(c *gin.Context) {
		lim := store.get(key(c))
		if !lim.Allow() {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts, try again shortly"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
