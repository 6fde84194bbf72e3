package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"pivot/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy says what a limited route does when Redis cannot be reached.
type FailPolicy int

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = iota
	// FailClosed answers 503.
	FailClosed
)

var errNoRedis = errors.New("rate limiter has no redis client")

// Rule allows Limit requests per subject in each Window.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// RateLimiter counts requests per rule and subject in fixed windows. Each
// window has its own Redis key, so a counter never outlives its window.
// Limits only apply in production-like environments.
type RateLimiter struct {
	rdb     *redis.Client
	enabled bool
	now     func() time.Time
}

// NewRateLimiter returns a limiter for env. rdb may be nil.
func NewRateLimiter(rdb *redis.Client, env string) *RateLimiter {
	enabled := true
	switch env {
	case "", "test", "development":
		enabled = false
	}
	return &RateLimiter{rdb: rdb, enabled: enabled, now: time.Now}
}

// Allow counts one request by subject against rule and reports how many
// remain in the current window.
func (l *RateLimiter) Allow(ctx context.Context, rule Rule, subject string) (remaining int, ok bool, err error) {
	if !l.enabled {
		return rule.Limit, true, nil
	}
	if l.rdb == nil {
		return 0, false, errNoRedis
	}

	bucket := l.now().UnixNano() / int64(rule.Window)
	key := fmt.Sprintf("pivot:rl:%s:%s:%d", rule.Name, subject, bucket)

	var incr *redis.IntCmd
	_, err = l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.Expire(ctx, key, rule.Window)
		return nil
	})
	if err != nil {
		observability.RedisErrorRate.WithLabelValues("ratelimit").Inc()
		return 0, false, err
	}
	count := int(incr.Val())
	if count > rule.Limit {
		return 0, false, nil
	}
	return rule.Limit - count, true, nil
}

// Handler enforces rule on a route. Signed-in users are counted by id and
// guests by IP.
func (l *RateLimiter) Handler(rule Rule, policy FailPolicy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject := "ip:" + c.IP()
		if uid, ok := c.Locals("userID").(uint); ok {
			subject = "user:" + strconv.FormatUint(uint64(uid), 10)
		}

		remaining, ok, err := l.Allow(c.UserContext(), rule, subject)
		if err != nil {
			Logger.WarnContext(c.UserContext(), "rate limit store unavailable",
				slog.String("rule", rule.Name),
				slog.String("error", err.Error()),
			)
			if policy == FailClosed {
				return fiber.NewError(fiber.StatusServiceUnavailable, "Service temporarily unavailable.")
			}
			return c.Next()
		}

		if l.enabled {
			c.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}
		if !ok {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(rule.Window.Seconds())))
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many attempts, try again later.")
		}
		return c.Next()
	}
}
