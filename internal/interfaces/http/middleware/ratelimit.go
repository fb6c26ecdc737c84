package middleware

import (
	"strconv"
	"time"

	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
)

// RateLimiter is a fixed-window limiter. Each key gets limit requests per
// window; counters expire with their window.
type RateLimiter struct {
	counts *gocache.Cache
	limit  int
	window time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counts: gocache.New(window, window*2),
		limit:  limit,
		window: window,
	}
}

// Allow counts a request for key and reports whether it is within the limit,
// together with the requests left in the current window
func (rl *RateLimiter) Allow(key string) (bool, int) {
	// only the first request of a window creates the counter
	_ = rl.counts.Add(key, 0, rl.window)
	n, err := rl.counts.IncrementInt(key, 1)
	if err != nil {
		// window expired between Add and Increment
		rl.counts.Set(key, 1, rl.window)
		n = 1
	}
	return n <= rl.limit, max(rl.limit-n, 0)
}

// Remaining returns the number of remaining requests for key
func (rl *RateLimiter) Remaining(key string) int {
	v, ok := rl.counts.Get(key)
	if !ok {
		return rl.limit
	}
	return max(rl.limit-v.(int), 0)
}

// Limit returns the requests allowed per window
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

// RateLimitKey keys authenticated requests by agency and sub-account so one
// tenant cannot starve the others. Anonymous requests are keyed by client IP.
func RateLimitKey(c *gin.Context) string {
	if caller, ok := GetCaller(c); ok {
		return "scope:" + caller.Scope.String()
	}
	return "ip:" + c.ClientIP()
}

// RateLimit returns a rate limiting middleware keyed by RateLimitKey
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, RateLimitKey)
}

// RateLimitByKey returns a rate limiting middleware with custom key extractor
func RateLimitByKey(limiter *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining := limiter.Allow(keyFunc(c))

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(limiter.window.Seconds())))
			c.Set(dto.ErrorCodeContextKey, dto.ErrCodeRateLimited)
			c.AbortWithStatusJSON(dto.GetHTTPStatus(dto.ErrCodeRateLimited), dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited,
				"Too many requests. Please try again later.",
				c.GetString(RequestIDKey),
			))
			return
		}
		c.Next()
	}
}
