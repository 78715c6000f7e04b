package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"wallet-ledger/pkg/logger"
	"wallet-ledger/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Rejection reasons passed to OnReject.
const (
	RejectRateLimit = "rate_limit"
	RejectInFlight  = "in_flight"
)

// RateLimiter applies a token bucket per caller (user id, else client IP).
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	idle     time.Duration

	OnReject func(reason string)
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(perSecond, burst int) *RateLimiter {
	if burst <= 0 {
		burst = perSecond
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		idle:     10 * time.Minute,
	}
}

func (rl *RateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Sweep drops limiters idle for longer than the idle window.
func (rl *RateLimiter) Sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, e := range rl.limiters {
		if now.Sub(e.lastSeen) > rl.idle {
			delete(rl.limiters, k)
		}
	}
}

// StartSweeper runs Sweep every interval until ctx is done.
func (rl *RateLimiter) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.Sweep(now)
			}
		}
	}()
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString("user_id")
		if key == "" {
			key = c.ClientIP()
		}
		if !rl.allow(key, time.Now()) {
			if rl.OnReject != nil {
				rl.OnReject(RejectRateLimit)
			}
			logger.FromGin(c).Warn("rate limit exceeded", "key", key, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// Slots is a distributed counting semaphore keyed by caller.
type Slots interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisSlots caps concurrent money-moving requests per user across replicas.
type RedisSlots struct {
	rdb   redis.Scripter
	limit int
	ttl   time.Duration
}

func NewRedisSlots(rdb redis.Scripter, limit int, ttl time.Duration) *RedisSlots {
	return &RedisSlots{rdb: rdb, limit: limit, ttl: ttl}
}

func (s *RedisSlots) Acquire(ctx context.Context, key string) (bool, error) {
	return utils.AcquireInFlight(ctx, s.rdb, utils.InFlightKey(key), s.limit, s.ttl)
}

func (s *RedisSlots) Release(ctx context.Context, key string) error {
	return utils.ReleaseInFlight(ctx, s.rdb, utils.InFlightKey(key))
}

// InFlight rejects a caller's request with 429 while they already hold every
// slot. If the slot store is unavailable the request proceeds; row locks in
// the ledger still serialize money movement.
func InFlight(slots Slots, onReject func(reason string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if slots == nil || userID == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		ok, err := slots.Acquire(ctx, userID)
		if err != nil {
			logger.FromGin(c).Warn("in-flight check unavailable", "err", err)
			c.Next()
			return
		}
		if !ok {
			if onReject != nil {
				onReject(RejectInFlight)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many concurrent requests"})
			return
		}
		defer func() {
			// Release even if the client went away.
			if err := slots.Release(context.WithoutCancel(ctx), userID); err != nil {
				logger.FromGin(c).Warn("in-flight release failed", "err", err)
			}
		}()

		c.Next()
	}
}
