package cache

import (
	"context"
	"log/slog"
	"time"

	"pivot/internal/middleware"
	"pivot/internal/observability"
)

// Aside returns the cached value for key or, on a miss, calls render and
// stores its result for ttl. Cache errors are logged and treated as a miss;
// only render errors are returned. The bool reports a cache hit.
func Aside(ctx context.Context, pc PageCache, page, key string, ttl time.Duration, render func() ([]byte, error)) ([]byte, bool, error) {
	if pc == nil || ttl <= 0 {
		b, err := render()
		return b, false, err
	}

	b, found, err := pc.Get(ctx, key)
	switch {
	case err != nil:
		observability.PageCacheLookups.WithLabelValues(page, "error").Inc()
		middleware.Logger.WarnContext(ctx, "page cache read failed",
			slog.String("key", key), slog.String("error", err.Error()))
	case found:
		observability.PageCacheLookups.WithLabelValues(page, "hit").Inc()
		return b, true, nil
	default:
		observability.PageCacheLookups.WithLabelValues(page, "miss").Inc()
	}

	b, err = render()
	if err != nil {
		return nil, false, err
	}
	if err := pc.Set(ctx, key, b, ttl); err != nil {
		middleware.Logger.WarnContext(ctx, "page cache write failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}
	return b, false, nil
}
