// Package httpx は gin 用の共通ミドルウェアを提供します。
package httpx

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig はレート制限のパラメーターです。
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*limiterEntry
	rate        rate.Limit
	burst       int
	lastCleanup time.Time
}

func (rl *rateLimiter) get(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// 5分以上使われていないキーは破棄する
	if now.Sub(rl.lastCleanup) > 5*time.Minute {
		for k, e := range rl.limiters {
			if now.Sub(e.lastSeen) > 5*time.Minute {
				delete(rl.limiters, k)
			}
		}
		rl.lastCleanup = now
	}

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// RateLimit はクライアントIPごとのトークンバケットで制限するミドルウェアを返します。
// 安全なメソッド（GET など）は対象外です。
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	rl := &rateLimiter{
		limiters:    make(map[string]*limiterEntry),
		rate:        rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}

	return func(c *gin.Context) {
		if IsSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		limiter := rl.get(c.ClientIP(), time.Now())
		reservation := limiter.Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			seconds := int(delay.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.String(http.StatusTooManyRequests, "Too Many Requests")
			c.Abort()
			return
		}

		c.Next()
	}
}

// IsSafeMethod は状態を変更しない HTTP メソッドかどうかを返します。
func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
