package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const limiterCacheSize = 10000

// RateLimit 按客户端 IP 限流，perMinute <= 0 时不限制
func RateLimit(perMinute float64, burst int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}

	limiters, _ := lru.New[string, *rate.Limiter](limiterCacheSize)
	var mu sync.Mutex

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		limiter, ok := limiters.Get(ip)
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(perMinute/60), burst)
			limiters.Add(ip, limiter)
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too_many_requests"})
			return
		}
		c.Next()
	}
}
