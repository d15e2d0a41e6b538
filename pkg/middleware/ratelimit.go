package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	BurstSize         int
	SkipPaths         []string
	CleanupInterval   time.Duration
	MaxIdleTime       time.Duration
	KeyGenerator      KeyGenerator
}

// KeyGenerator picks the bucket a request is charged to
type KeyGenerator func(*gin.Context) string

// DefaultRateLimitConfig returns default rate limiting configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 60,
		BurstSize:         10,
		SkipPaths:         []string{"/health", "/metrics"},
		CleanupInterval:   5 * time.Minute,
		MaxIdleTime:       30 * time.Minute,
		KeyGenerator:      OperatorKeyGenerator,
	}
}

// ClientIPKeyGenerator keys by client IP
func ClientIPKeyGenerator(c *gin.Context) string {
	return "ip:" + GetClientIP(c)
}

// OperatorKeyGenerator keys by operator, falling back to client IP
func OperatorKeyGenerator(c *gin.Context) string {
	if id := OperatorID(c); id != "" {
		return "operator:" + id
	}
	return ClientIPKeyGenerator(c)
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimit provides per-key token bucket limiting
type RateLimit struct {
	config RateLimitConfig
	logger Logger
	limit  rate.Limit

	mu       sync.Mutex
	limiters map[string]*limiterEntry
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimit creates a new rate limiting middleware
func NewRateLimit(config RateLimitConfig, logger Logger) *RateLimit {
	defaults := DefaultRateLimitConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if config.BurstSize <= 0 {
		config.BurstSize = defaults.BurstSize
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = defaults.KeyGenerator
	}
	if config.MaxIdleTime <= 0 {
		config.MaxIdleTime = defaults.MaxIdleTime
	}

	rl := &RateLimit{
		config:   config,
		logger:   orDefault(logger),
		limit:    rate.Limit(float64(config.RequestsPerMinute) / 60.0),
		limiters: make(map[string]*limiterEntry),
		stopCh:   make(chan struct{}),
	}

	if config.Enabled && config.CleanupInterval > 0 {
		go rl.cleanupLoop()
	}

	return rl
}

// Middleware returns the Gin rate limiting middleware
func (rl *RateLimit) Middleware() gin.HandlerFunc {
	if !rl.config.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if rl.shouldSkipPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		key := rl.config.KeyGenerator(c)
		limiter := rl.limiterFor(key)

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerMinute))
		c.Header("X-RateLimit-Burst", strconv.Itoa(rl.config.BurstSize))

		now := time.Now()
		if !limiter.AllowN(now, 1) {
			retryAfter := rl.retryAfter(limiter, now)
			rl.logger.Warn("Rate limit exceeded", "key", key, "path", c.Request.URL.Path)
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		remaining := int(math.Floor(limiter.TokensAt(now)))
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}

// retryAfter is the whole seconds until one token is available again
func (rl *RateLimit) retryAfter(limiter *rate.Limiter, now time.Time) int {
	missing := 1 - limiter.TokensAt(now)
	if missing <= 0 || rl.limit <= 0 {
		return 1
	}
	return int(math.Ceil(missing / float64(rl.limit)))
}

func (rl *RateLimit) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.config.BurstSize)}
		rl.limiters[key] = entry
	}
	entry.lastAccess = time.Now()
	return entry.limiter
}

func (rl *RateLimit) shouldSkipPath(path string) bool {
	for _, skipPath := range rl.config.SkipPaths {
		if path == skipPath {
			return true
		}
	}
	return false
}

// Cleanup drops limiters idle longer than maxIdle and returns how many went
func (rl *RateLimit) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxIdle)
	for key, entry := range rl.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimit) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := rl.Cleanup(rl.config.MaxIdleTime); removed > 0 {
				rl.logger.Debug("Cleaned up idle rate limiters", "count", removed)
			}
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup loop
func (rl *RateLimit) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// ActiveKeys returns how many buckets are tracked
func (rl *RateLimit) ActiveKeys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
