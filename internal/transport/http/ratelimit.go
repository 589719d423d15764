package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// rateLimiter counts requests per client key in fixed one-minute windows.
type rateLimiter struct {
	mu     sync.Mutex
	limit  int
	counts map[string]int
	reset  *time.Ticker
}

func newRateLimiter(limit int) *rateLimiter {
	if limit <= 0 {
		return &rateLimiter{limit: 0}
	}
	return &rateLimiter{
		limit:  limit,
		counts: make(map[string]int),
		reset:  time.NewTicker(time.Minute),
	}
}

func (r *rateLimiter) allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
	return r.counts[key] <= r.limit
}

func (r *rateLimiter) clear() {
	r.mu.Lock()
	clear(r.counts)
	r.mu.Unlock()
}

func (r *rateLimiter) startReset(stop <-chan struct{}) {
	if r == nil || r.reset == nil {
		return
	}
	go func() {
		for {
			select {
			case <-r.reset.C:
				r.clear()
			case <-stop:
				r.reset.Stop()
				return
			}
		}
	}()
}

// middleware rejects callers over the limit with 429.
func (r *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
