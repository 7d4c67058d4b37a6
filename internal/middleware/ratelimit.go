// ratelimit.go provides Gin middleware that enforces per-client token-bucket rate limits,
// returning 429 responses when the configured requests-per-minute threshold is exceeded.
// Limits are kept in process memory, or in Redis when instances share a budget.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Name distinguishes limiter buckets that share a backing store
	Name string
	// RequestsPerMinute is the sustained number of requests allowed per minute
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
	// CleanupInterval is how often idle in-memory buckets are dropped
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns the general API limit
func DefaultRateLimitConfig(requestsPerMinute, burst int) RateLimitConfig {
	return RateLimitConfig{
		Name:              "api",
		RequestsPerMinute: requestsPerMinute,
		BurstSize:         burst,
		CleanupInterval:   5 * time.Minute,
	}
}

// LoginRateLimitConfig returns the stricter limit for the login endpoint
func LoginRateLimitConfig(requestsPerMinute int) RateLimitConfig {
	burst := requestsPerMinute / 2
	if burst < 1 {
		burst = 1
	}
	return RateLimitConfig{
		Name:              "login",
		RequestsPerMinute: requestsPerMinute,
		BurstSize:         burst,
		CleanupInterval:   5 * time.Minute,
	}
}

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Limit() int
}

type memoryBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory
type MemoryLimiter struct {
	config  RateLimitConfig
	entries map[string]*memoryBucket
	mu      sync.Mutex
	stopCh  chan struct{}
	stopped sync.Once
}

// NewMemoryLimiter creates a new in-memory limiter with the given config
func NewMemoryLimiter(config RateLimitConfig) *MemoryLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &MemoryLimiter{
		config:  config,
		entries: make(map[string]*memoryBucket),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// cleanup periodically removes idle buckets
func (rl *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, entry := range rl.entries {
				if now.Sub(entry.lastSeen) > 10*time.Minute {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *MemoryLimiter) Stop() {
	rl.stopped.Do(func() { close(rl.stopCh) })
}

// Limit returns the configured requests per minute
func (rl *MemoryLimiter) Limit() int {
	return rl.config.RequestsPerMinute
}

// Allow consumes one token from key's bucket
func (rl *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, ok := rl.entries[key]
	if !ok {
		perSecond := rate.Limit(float64(rl.config.RequestsPerMinute) / 60.0)
		entry = &memoryBucket{limiter: rate.NewLimiter(perSecond, rl.config.BurstSize)}
		rl.entries[key] = entry
	}
	entry.lastSeen = now

	r := entry.limiter.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: time.Minute}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	return Decision{
		Allowed:   true,
		Remaining: int(math.Max(0, math.Floor(entry.limiter.TokensAt(now)))),
	}, nil
}

// RedisLimiter shares buckets between instances using the GCRA limiter in redis_rate
type RedisLimiter struct {
	config  RateLimitConfig
	limiter *redis_rate.Limiter
}

// NewRedisLimiter creates a limiter backed by client
func NewRedisLimiter(client *redis.Client, config RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{config: config, limiter: redis_rate.NewLimiter(client)}
}

// Limit returns the configured requests per minute
func (rl *RedisLimiter) Limit() int {
	return rl.config.RequestsPerMinute
}

// Allow consumes one token from key's shared bucket
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := rl.limiter.Allow(ctx, rl.config.Name+":"+key, redis_rate.Limit{
		Rate:   rl.config.RequestsPerMinute,
		Burst:  rl.config.BurstSize,
		Period: time.Minute,
	})
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}, nil
}

// RateLimitMiddleware creates a Gin middleware that rate limits requests. A
// limiter backend error fails open so a Redis outage does not take the API down.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		d, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			retry := int(math.Ceil(d.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}

// getRateLimitKey determines the key to use for rate limiting
// Priority: user_id > IP address
func getRateLimitKey(c *gin.Context) string {
	if id := CurrentUserID(c); id != nil {
		return "user:" + strconv.FormatInt(*id, 10)
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
