package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"
)

// maxVisitors bounds the number of buckets kept in memory. The least
// recently seen client loses its bucket first and starts over with a full one.
const maxVisitors = 10000

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByClientIP keys buckets by client address. The service has no user
// accounts, so the caller's IP is the only stable identity.
func KeyByClientIP() keyFunc {
	return func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	}
}

// RateLimiter is a process-local, per-key token-bucket limiter built on
// golang.org/x/time/rate, with buckets held in an LRU cache. A non-positive
// rate disables limiting. It is safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	visitors *lru.Cache
}

// NewRateLimiter constructs a RateLimiter with the given tokens-per-second
// and burst size, keyed by keyFn. A burst <= 0 is coerced to 1.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return newRateLimiter(rps, burst, keyFn, maxVisitors)
}

func newRateLimiter(rps float64, burst int, keyFn keyFunc, size int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	cache, err := lru.New(size)
	if err != nil {
		panic(err) // only for size <= 0
	}
	return &RateLimiter{rps: rate.Limit(rps), burst: burst, keyFn: keyFn, visitors: cache}
}

// limiter returns the bucket for key, creating it if absent.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := rl.visitors.Get(key); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	if prev, ok, _ := rl.visitors.PeekOrAdd(key, lim); ok {
		return prev.(*rate.Limiter)
	}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay that should not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns a Gin middleware that enforces the per-key limits. Denied
// requests get 429 with the shared error body and a Retry-After of the
// seconds until a token is available.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rps <= 0 || IsRateBypass(c) || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		now := time.Now()
		res := rl.limiter(rl.keyFn(c)).ReserveN(now, 1)
		delay := res.DelayFrom(now)
		if res.OK() && delay == 0 {
			c.Next()
			return
		}
		res.CancelAt(now)

		c.Header("Retry-After", retryAfter(delay))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfter renders d as whole seconds, at least 1.
func retryAfter(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 || d == rate.InfDuration {
		secs = 1
	}
	return strconv.Itoa(secs)
}
