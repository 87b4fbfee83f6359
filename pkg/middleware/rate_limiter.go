package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/anoirbs/hotel-sub000/pkg/logger"
	"github.com/anoirbs/hotel-sub000/pkg/response"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
)

const tokenBucketScript = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local data = redis.call("HMGET", key, "tokens", "last_update")
local tokens = tonumber(data[1]) or burst
local last_update = tonumber(data[2]) or now

local elapsed = math.max(0, now - last_update)
tokens = math.min(burst, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_update", now)
redis.call("EXPIRE", key, 60)
return {allowed, math.floor(tokens)}
`

// ScriptRunner is satisfied by *redis.Client from pkg/redis
type ScriptRunner interface {
	EvalScript(ctx context.Context, name, script string, keys []string, args ...interface{}) *goredis.Cmd
}

// RateLimitConfig configures RateLimiter
type RateLimitConfig struct {
	Redis             ScriptRunner
	RequestsPerSecond int
	BurstSize         int
	KeyPrefix         string
	Logger            *logger.Logger
	// OnLimited runs for every rejected request
	OnLimited func(ctx context.Context, key string)
	// Now is overridable for tests
	Now func() time.Time
}

// RedisRateLimiter is a distributed token bucket
type RedisRateLimiter struct {
	cfg RateLimitConfig
}

// NewRedisRateLimiter creates a limiter
func NewRedisRateLimiter(cfg RateLimitConfig) *RedisRateLimiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ratelimit:"
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = cfg.RequestsPerSecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Get()
	}
	return &RedisRateLimiter{cfg: cfg}
}

// Allow takes one token for key
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, int64, error) {
	now := float64(rl.cfg.Now().UnixNano()) / 1e9

	values, err := rl.cfg.Redis.EvalScript(ctx, "token_bucket", tokenBucketScript,
		[]string{rl.cfg.KeyPrefix + key},
		rl.cfg.RequestsPerSecond, rl.cfg.BurstSize, strconv.FormatFloat(now, 'f', 6, 64),
	).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit reply length: %d", len(values))
	}
	return values[0] == 1, values[1], nil
}

// Middleware limits per authenticated user, or per client IP for anonymous callers
func (rl *RedisRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.StartSpan(c.Request.Context(), "middleware.rate_limiter")
		defer span.End()

		key := "ip:" + c.ClientIP()
		if userID, ok := GetUserID(c); ok {
			key = "user:" + userID
		}
		span.SetAttributes(attribute.String("rate_limit.key", key))

		allowed, remaining, err := rl.Allow(ctx, key)
		if err != nil {
			rl.cfg.Logger.WarnContext(ctx, "rate limiter unavailable, allowing request", zap.Error(err))
			span.SetAttributes(attribute.Bool("rate_limit.fail_open", true))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.cfg.RequestsPerSecond))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !allowed {
			span.SetStatus(codes.Error, "rate limit exceeded")
			if rl.cfg.OnLimited != nil {
				rl.cfg.OnLimited(ctx, key)
			}
			c.Header("Retry-After", "1")
			response.Abort(c, http.StatusTooManyRequests, response.CodeRateLimited,
				"rate limit exceeded, retry after 1 second")
			return
		}

		c.Next()
	}
}
