// Package cache provides the Redis client and the page cache.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"pivot/internal/middleware"
	"pivot/internal/observability"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// errorCounter feeds failed commands into RedisErrorRate. A cache miss
// (redis.Nil) is not a failure.
type errorCounter struct{}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return count(cmd.Name(), next(ctx, cmd))
	}
}

func (errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		return count("pipeline", next(ctx, cmds))
	}
}

func count(op string, err error) error {
	if err != nil && !errors.Is(err, redis.Nil) {
		observability.RedisErrorRate.WithLabelValues(op).Inc()
	}
	return err
}

// NewRedisClient builds a client from "host:port" or a redis:// URL, with
// error counting and tracing hooks. It does not dial.
func NewRedisClient(addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	client.AddHook(errorCounter{})
	if err := redisotel.InstrumentTracing(client); err != nil {
		middleware.Logger.Warn("redis tracing unavailable", slog.String("error", err.Error()))
	}
	return client, nil
}

// InitRedis returns a connected client, or nil when addr is empty, invalid
// or unreachable. Callers then fall back to the in-memory page cache and
// the rate limiter fails open.
func InitRedis(addr string) *redis.Client {
	if strings.TrimSpace(addr) == "" {
		middleware.Logger.Info("REDIS_URL not set; page cache runs in memory")
		return nil
	}
	log := middleware.Logger.With(slog.String("redis", redactURL(addr)))

	client, err := NewRedisClient(addr)
	if err != nil {
		log.Warn("invalid REDIS_URL; continuing without redis", slog.String("error", err.Error()))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable; continuing without redis", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	log.Info("redis connected")
	return client
}

// redactURL hides the password of a redis:// URL for logging.
func redactURL(addr string) string {
	scheme, rest, ok := strings.Cut(addr, "://")
	if !ok {
		return addr
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return addr
	}
	if user, _, hasPass := strings.Cut(creds, ":"); hasPass {
		return scheme + "://" + user + ":xxxxx@" + host
	}
	return addr
}
