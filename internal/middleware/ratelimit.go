package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/iliyamo/slot-reservation/internal/config"
	"github.com/iliyamo/slot-reservation/internal/logger"
)

// tokenBucketScript refills continuously at refill/interval tokens per ms
// and returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[2])
local per_ms = tonumber(ARGV[3]) / math.max(1, tonumber(ARGV[4]))
local now = tonumber(ARGV[1])

local tokens = tonumber(redis.call('HGET', KEYS[1], 't'))
local seen = tonumber(redis.call('HGET', KEYS[1], 'at'))
if tokens == nil or seen == nil then
	tokens, seen = capacity, now
end
tokens = math.min(capacity, tokens + math.max(0, now - seen) * per_ms)

local allowed, retry = 0, 0
if tokens >= 1 then
	allowed, tokens = 1, tokens - 1
else
	retry = math.ceil((1 - tokens) / per_ms)
end

redis.call('HSET', KEYS[1], 't', tostring(tokens), 'at', now)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[5]))
return { allowed, math.floor(tokens), retry }
`)

type decision struct {
	allowed   bool
	remaining int64
	retry     time.Duration
}

// localBuckets is the in-process limiter used when Redis is absent or
// failing. Limits then hold per instance only.
type localBuckets struct {
	cfg config.RateLimitConfig
	mu  sync.Mutex
	m   map[string]*localEntry
}

type localEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLocalBuckets(cfg config.RateLimitConfig) *localBuckets {
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	return &localBuckets{cfg: cfg, m: map[string]*localEntry{}}
}

func (b *localBuckets) take(key string, now time.Time) decision {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.m[key]
	if !ok {
		every := rate.Every(b.cfg.RefillInterval / time.Duration(b.cfg.RefillTokens))
		e = &localEntry{lim: rate.NewLimiter(every, b.cfg.Capacity)}
		b.m[key] = e
		if len(b.m) > 10000 {
			b.evict(now)
		}
	}
	e.seen = now
	r := e.lim.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return decision{retry: d}
	}
	return decision{allowed: true, remaining: int64(e.lim.TokensAt(now))}
}

func (b *localBuckets) evict(now time.Time) {
	for k, e := range b.m {
		if now.Sub(e.seen) > b.cfg.TTL {
			delete(b.m, k)
		}
	}
}

// NewTokenBucket limits requests per key with a token bucket kept in Redis.
// When rdb is nil or a Redis call fails the in-process buckets decide.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *logger.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if log == nil {
		log = logger.Discard()
	}
	local := newLocalBuckets(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			now := time.Now()

			d, err := redisTake(c, rdb, cfg, key, now)
			if err != nil {
				if cfg.Debug {
					log.Warn("rate limit redis unavailable", "key", key, "error", err)
				}
				d = local.take(key, now)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if !d.allowed {
				secs := int(math.Ceil(d.retry.Seconds()))
				h.Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "rate limit exceeded",
					"code":        "TOO_MANY_REQUESTS",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

func redisTake(c echo.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string, now time.Time) (decision, error) {
	if rdb == nil {
		return decision{}, fmt.Errorf("no redis client")
	}
	vals, err := tokenBucketScript.Run(c.Request().Context(), rdb, []string{key},
		now.UnixMilli(), cfg.Capacity, cfg.RefillTokens, cfg.RefillInterval.Milliseconds(), int64(cfg.TTL/time.Second),
	).Result()
	if err != nil {
		return decision{}, err
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 3 {
		return decision{}, fmt.Errorf("unexpected script result %#v", vals)
	}
	return decision{
		allowed:   asInt64(arr[0]) == 1,
		remaining: asInt64(arr[1]),
		retry:     time.Duration(asInt64(arr[2])) * time.Millisecond,
	}, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := identityKey(c)
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}
